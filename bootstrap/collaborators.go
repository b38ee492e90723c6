package bootstrap

import (
	"context"
	"fmt"
	"time"

	"argus/config"
	"argus/core"
	"argus/feedback"
	"argus/soar"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

// Collaborators holds the response side of the pipeline and the
// connections it owns
type Collaborators struct {
	Containment  soar.Containment
	Blocklist    soar.BlocklistReader
	Orchestrator soar.Orchestrator
	Feedback     soar.FeedbackSubmitter
	Store        feedback.LifecycleStore

	redis *core.RedisCache
	nats  *nats.Conn
}

// InitCollaborators builds every configured collaborator. Unconfigured ones
// stay nil and the dispatcher skips them.
func InitCollaborators(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*Collaborators, error) {
	c := &Collaborators{}
	if err := c.initContainment(ctx, cfg, sugar); err != nil {
		c.Close(sugar)
		return nil, err
	}
	if err := c.initOrchestration(cfg, sugar); err != nil {
		c.Close(sugar)
		return nil, err
	}
	if err := c.initFeedback(ctx, cfg, sugar); err != nil {
		c.Close(sugar)
		return nil, err
	}
	return c, nil
}

func (c *Collaborators) initContainment(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) error {
	var members soar.MultiContainment

	if cfg.Containment.File.Enabled {
		blocklist, err := soar.NewFileBlocklist(cfg.Containment.File.Path, sugar)
		if err != nil {
			return fmt.Errorf("failed to open blocklist: %w", err)
		}
		members = append(members, blocklist)
		c.Blocklist = blocklist
		sugar.Infow("File blocklist enabled", "path", cfg.Containment.File.Path)
	}

	if cfg.Containment.Redis.Enabled {
		rc := cfg.Containment.Redis
		c.redis = core.NewRedisCache(rc.Addr, rc.Password, rc.DB, rc.PoolSize, sugar)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := c.redis.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("redis blocklist unavailable:\n%s", ClassifyConnectionError("Redis", err, rc.Addr))
		}
		blocklist := soar.NewRedisBlocklist(c.redis, rc.TTL, sugar)
		members = append(members, blocklist)
		// the shared blocklist is the authoritative view when both exist
		c.Blocklist = blocklist
		sugar.Infow("Redis blocklist enabled", "addr", rc.Addr, "ttl", rc.TTL)
	}

	if cfg.Containment.MISP.Enabled {
		mc := cfg.Containment.MISP
		exporter, err := soar.NewMISPExporter(soar.MISPConfig{
			URL:    mc.URL,
			APIKey: mc.APIKey,
			HTTP:   httpConfig(mc.WebhookConfig),
		}, sugar)
		if err != nil {
			return err
		}
		members = append(members, exporter)
		sugar.Infow("MISP export enabled", "url", mc.URL)
	}

	switch len(members) {
	case 0:
		sugar.Warn("No containment configured; high severity alerts will not block addresses")
	case 1:
		c.Containment = members[0]
	default:
		c.Containment = members
	}
	return nil
}

func (c *Collaborators) initOrchestration(cfg *config.Config, sugar *zap.SugaredLogger) error {
	var members soar.MultiOrchestrator

	if cfg.Orchestration.Shuffle.Enabled {
		sc := cfg.Orchestration.Shuffle
		shuffle, err := soar.NewShuffleOrchestrator(soar.ShuffleConfig{
			WebhookURL: sc.WebhookURL,
			HTTP:       httpConfig(sc.WebhookConfig),
		}, sugar)
		if err != nil {
			return err
		}
		members = append(members, shuffle)
		sugar.Infow("Shuffle orchestration enabled", "url", sc.WebhookURL)
	}

	if cfg.Orchestration.NATS.Enabled {
		nc := cfg.Orchestration.NATS
		conn, err := soar.ConnectNATS(soar.NATSConfig{
			URL:           nc.URL,
			SubjectPrefix: nc.SubjectPrefix,
			MaxReconnects: nc.MaxReconnects,
			ReconnectWait: nc.ReconnectWait,
		}, sugar)
		if err != nil {
			return fmt.Errorf("alert bus unavailable:\n%s", ClassifyConnectionError("NATS", err, nc.URL))
		}
		c.nats = conn
		members = append(members, soar.NewNATSPublisher(conn, nc.SubjectPrefix, sugar))
		sugar.Infow("NATS alert publishing enabled", "url", nc.URL, "subject_prefix", nc.SubjectPrefix)
	}

	switch len(members) {
	case 0:
	case 1:
		c.Orchestrator = members[0]
	default:
		c.Orchestrator = members
	}
	return nil
}

func (c *Collaborators) initFeedback(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) error {
	if !cfg.Feedback.Enabled {
		return nil
	}
	store, err := InitFeedbackStore(cfg, sugar)
	if err != nil {
		return err
	}
	c.Store = store

	reviewer, err := feedback.NewReviewer(ctx, store, sugar)
	if err != nil {
		return err
	}
	c.Feedback = reviewer
	return nil
}

// InitFeedbackStore opens the configured candidate rule store. The CLI uses
// it directly for review commands.
func InitFeedbackStore(cfg *config.Config, sugar *zap.SugaredLogger) (feedback.LifecycleStore, error) {
	fc := cfg.Feedback
	switch fc.Backend {
	case config.FeedbackBackendSQLite:
		store, err := feedback.NewSQLiteStore(fc.SQLitePath, cfg.Rules.Dir, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to open rule review database %s: %w", fc.SQLitePath, err)
		}
		sugar.Infow("Rule review store ready", "backend", fc.Backend, "path", fc.SQLitePath)
		return store, nil
	default:
		store, err := feedback.NewDirectoryStore(fc.PendingDir, fc.RejectedDir, cfg.Rules.Dir, sugar)
		if err != nil {
			return nil, err
		}
		sugar.Infow("Rule review store ready", "backend", config.FeedbackBackendDirectory, "pending_dir", fc.PendingDir)
		return store, nil
	}
}

// Close releases stores and connections
func (c *Collaborators) Close(sugar *zap.SugaredLogger) {
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			sugar.Errorw("Failed to close rule review store", "error", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			sugar.Errorw("Failed to close Redis connection", "error", err)
		}
	}
	if c.nats != nil {
		if err := c.nats.Drain(); err != nil {
			sugar.Errorw("Failed to drain NATS connection", "error", err)
		}
	}
}

func httpConfig(w config.WebhookConfig) soar.HTTPConfig {
	return soar.HTTPConfig{
		Timeout:            w.Timeout,
		InsecureSkipVerify: w.InsecureSkipVerify,
		RateLimit:          w.RateLimit,
		Burst:              w.Burst,
	}
}
