package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"argus/api"
	"argus/config"
	"argus/core"
	"argus/detect"
	"argus/ingest"
	"argus/ml"
	"argus/soar"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

const (
	dispatchDrainTimeout = 10 * time.Second
	apiShutdownTimeout   = 5 * time.Second
)

// App represents the Argus service with all its components
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Detection
	Rules    *detect.RuleStore
	Scorer   *ml.AnomalyScorer
	Pipeline *Pipeline

	// Response
	Collaborators *Collaborators
	Dispatcher    *soar.AsyncDispatcher
	History       *api.AlertHistory

	// Sources
	Collector *ingest.Collector
	Kafka     *ingest.KafkaSource

	APIServer *api.API

	closeLog     func()
	cancel       context.CancelFunc
	serviceWg    sync.WaitGroup
	shutdownOnce sync.Once
}

// NewApp loads configuration from configFile (or the default search path),
// initializes logging and builds every component
func NewApp(ctx context.Context, configFile string) (*App, error) {
	cfg, err := InitConfig(configFile)
	if err != nil {
		return nil, err
	}
	logger, sugar, closeLog, err := InitLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logConfigSummary(cfg, sugar)

	app, err := Build(ctx, cfg, logger)
	if err != nil {
		closeLog()
		return nil, err
	}
	app.closeLog = closeLog
	return app, nil
}

// Build wires an App from an already loaded configuration
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sugar := logger.Sugar()
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Sugar:    sugar,
		closeLog: func() {},
	}

	sugar.Info("Argus starting...")

	sugar.Info("Running pre-flight checks...")
	if err := EnsureDirectories(DataDirectories(cfg), sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	rules, err := InitRules(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Rules = rules

	scorer, err := InitScorer(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Scorer = scorer

	collaborators, err := InitCollaborators(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Collaborators = collaborators

	containmentSeverity, err := core.ParseSeverity(cfg.Engine.ContainmentSeverity)
	if err != nil {
		collaborators.Close(sugar)
		return nil, err
	}
	router := soar.NewDispatcher(soar.DispatcherConfig{
		Containment:         collaborators.Containment,
		Orchestrator:        collaborators.Orchestrator,
		Feedback:            collaborators.Feedback,
		ContainmentSeverity: &containmentSeverity,
		Timeout:             cfg.Engine.CollaboratorTimeout,
		Logger:              sugar,
	})
	app.Dispatcher = soar.NewAsyncDispatcher(router, cfg.Engine.DispatchWorkers, cfg.Engine.DispatchQueueSize, sugar)
	app.History = api.NewAlertHistory(cfg.Engine.HistorySize)

	pipeline, err := InitPipeline(cfg, rules, scorer, []detect.AlertDispatcher{app.History, app.Dispatcher}, sugar)
	if err != nil {
		collaborators.Close(sugar)
		return nil, err
	}
	app.Pipeline = pipeline

	if cfg.Collector.Enabled {
		parser, err := ingest.LoadParser(cfg.Parser.PatternsFile, cfg.Parser.MatchTimeout, sugar)
		if err != nil {
			collaborators.Close(sugar)
			return nil, fmt.Errorf("failed to load parser patterns: %w", err)
		}
		app.Collector = ingest.NewCollector(ingest.CollectorConfig{
			Paths:         cfg.Collector.LogPaths,
			FromBeginning: cfg.Collector.FromBeginning,
			Poll:          cfg.Collector.Poll,
		}, parser, pipeline.Detector, sugar)
	}

	if cfg.Kafka.Enabled {
		reader, err := ingest.NewKafkaReader(ingest.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		if err != nil {
			collaborators.Close(sugar)
			return nil, err
		}
		app.Kafka = ingest.NewKafkaSource(reader, pipeline.Detector, cfg.Kafka.Source, sugar)
	}

	if cfg.API.Enabled {
		sources := api.Sources{
			Alerts:    app.History,
			Blocklist: collaborators.Blocklist,
			Rules:     rules,
			Counts:    pipeline.Coordinator,
		}
		if collaborators.Store != nil {
			sources.Pending = collaborators.Store
		}
		app.APIServer = api.NewAPI(api.Config{
			Addr:              cfg.API.Addr,
			RequestsPerSecond: cfg.API.RateLimit.RequestsPerSecond,
			Burst:             cfg.API.RateLimit.Burst,
		}, sources, sugar)
	}

	sugar.Infow("Argus initialized", "rules", rules.Len(), "anomaly_scoring", scorer != nil)
	return app, nil
}

// Start starts consumers first and sources last, so nothing is produced
// before it can be handled
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.Dispatcher.Start(ctx)
	a.Pipeline.Start(ctx, a.Config)

	if a.APIServer != nil {
		a.serviceWg.Add(1)
		go func() {
			defer a.serviceWg.Done()
			defer goroutine.Recover("status-api", a.Sugar)
			if err := a.APIServer.Start(); err != nil {
				a.Sugar.Errorw("Status API failed", "addr", a.Config.API.Addr, "error", err)
			}
		}()
	}

	if a.Collector != nil {
		if err := a.Collector.Start(ctx); err != nil {
			return fmt.Errorf("failed to start log collector: %w", err)
		}
	}
	if a.Kafka != nil {
		a.Kafka.Start(ctx)
	}

	a.Sugar.Info("Argus running")
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	sig := <-c
	a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
}

// Shutdown stops every component in dependency order. It is safe to call
// more than once and after a failed Start.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.Sugar.Info("Shutting down...")

	a.Sugar.Info("Phase 1: Stopping event sources...")
	if a.Collector != nil {
		a.Collector.Stop()
	}
	if a.Kafka != nil {
		if err := a.Kafka.Stop(); err != nil {
			a.Sugar.Errorw("Failed to close Kafka reader", "error", err)
		}
	}

	a.Sugar.Info("Phase 2: Draining detection pipeline...")
	if a.Pipeline != nil {
		a.Pipeline.Detector.Stop(a.Config.Engine.DrainTimeout)
		a.Pipeline.Window.Stop()
	}

	a.Sugar.Info("Phase 3: Closing coordinator...")
	if a.Pipeline != nil {
		a.Pipeline.Coordinator.Close()
		ingested, alerts := a.Pipeline.Coordinator.Counts()
		a.Sugar.Infow("Pipeline totals", "events", ingested, "alerts", alerts)
	}

	a.Sugar.Info("Phase 4: Stopping alert dispatch...")
	if a.Dispatcher != nil {
		a.Dispatcher.Stop(dispatchDrainTimeout)
	}

	a.Sugar.Info("Phase 5: Saving anomaly training snapshot...")
	a.saveSnapshot()

	a.Sugar.Info("Phase 6: Stopping status API...")
	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop status API", "error", err)
		}
		cancel()
	}
	a.serviceWg.Wait()

	a.Sugar.Info("Phase 7: Closing stores and connections...")
	if a.Collaborators != nil {
		a.Collaborators.Close(a.Sugar)
	}
	if a.cancel != nil {
		a.cancel()
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
	a.closeLog()
}

func (a *App) saveSnapshot() {
	if a.Scorer == nil || a.Config.ML.SnapshotPath == "" {
		return
	}
	a.Scorer.Wait()
	snap := a.Scorer.Snapshot()
	if err := ml.SaveSnapshot(a.Config.ML.SnapshotPath, snap); err != nil {
		a.Sugar.Errorw("Failed to save training snapshot", "path", a.Config.ML.SnapshotPath, "error", err)
		return
	}
	a.Sugar.Infow("Training snapshot saved", "path", a.Config.ML.SnapshotPath, "vectors", len(snap.Vectors))
}
