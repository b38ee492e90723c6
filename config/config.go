// Package config loads service configuration from defaults, an optional
// config.yaml, a .env file and ARGUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"argus/core"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "ARGUS"

// Feedback store backends
const (
	FeedbackBackendDirectory = "directory"
	FeedbackBackendSQLite    = "sqlite"
)

// EngineConfig tunes the detection pipeline
type EngineConfig struct {
	BufferSize          int           `mapstructure:"buffer_size"`
	DrainTimeout        time.Duration `mapstructure:"drain_timeout"`
	MaxWindowKeys       int           `mapstructure:"max_window_keys"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	CollaboratorTimeout time.Duration `mapstructure:"collaborator_timeout"`
	ContainmentSeverity string        `mapstructure:"containment_severity"`
	DispatchWorkers     int           `mapstructure:"dispatch_workers"`
	DispatchQueueSize   int           `mapstructure:"dispatch_queue_size"`
	HistorySize         int           `mapstructure:"history_size"`
}

// RulesConfig locates the active rule set
type RulesConfig struct {
	Dir string `mapstructure:"dir"`
}

// MLConfig configures the anomaly scorer
type MLConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Algorithm       string  `mapstructure:"algorithm"`
	LowWatermark    int     `mapstructure:"low_watermark"`
	HighWatermark   int     `mapstructure:"high_watermark"`
	AsyncRetrain    bool    `mapstructure:"async_retrain"`
	Contamination   float64 `mapstructure:"contamination"`
	Neighbors       int     `mapstructure:"neighbors"`
	NumTrees        int     `mapstructure:"num_trees"`
	SubsampleSize   int     `mapstructure:"subsample_size"`
	Seed            int64   `mapstructure:"seed"`
	AnomalySeverity string  `mapstructure:"anomaly_severity"`
	SnapshotPath    string  `mapstructure:"snapshot_path"`
}

// CollectorConfig lists the log files to follow
type CollectorConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	LogPaths      []string `mapstructure:"log_paths"`
	FromBeginning bool     `mapstructure:"from_beginning"`
	Poll          bool     `mapstructure:"poll"`
}

// ParserConfig locates the line patterns
type ParserConfig struct {
	PatternsFile string        `mapstructure:"patterns_file"`
	MatchTimeout time.Duration `mapstructure:"match_timeout"`
}

// KafkaConfig configures the optional event bus consumer
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
	Source  string   `mapstructure:"source"`
}

// WebhookConfig holds the resilience settings shared by outbound HTTP collaborators
type WebhookConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	RateLimit          float64       `mapstructure:"rate_limit"`
	Burst              int           `mapstructure:"burst"`
}

// ContainmentConfig selects where blocked addresses go
type ContainmentConfig struct {
	File struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"file"`
	Redis struct {
		Enabled  bool          `mapstructure:"enabled"`
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		PoolSize int           `mapstructure:"pool_size"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`
	MISP struct {
		WebhookConfig `mapstructure:",squash"`

		Enabled bool   `mapstructure:"enabled"`
		URL     string `mapstructure:"url"`
		APIKey  string `mapstructure:"api_key"`
	} `mapstructure:"misp"`
}

// OrchestrationConfig selects where playbook triggers go
type OrchestrationConfig struct {
	Shuffle struct {
		WebhookConfig `mapstructure:",squash"`

		Enabled    bool   `mapstructure:"enabled"`
		WebhookURL string `mapstructure:"webhook_url"`
	} `mapstructure:"shuffle"`
	NATS struct {
		Enabled       bool          `mapstructure:"enabled"`
		URL           string        `mapstructure:"url"`
		SubjectPrefix string        `mapstructure:"subject_prefix"`
		MaxReconnects int           `mapstructure:"max_reconnects"`
		ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	} `mapstructure:"nats"`
}

// FeedbackConfig configures candidate rule review
type FeedbackConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Backend     string `mapstructure:"backend"`
	PendingDir  string `mapstructure:"pending_dir"`
	RejectedDir string `mapstructure:"rejected_dir"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

// APIConfig configures the status server
type APIConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	RateLimit struct {
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Config holds all configuration for the Argus service
type Config struct {
	Engine        EngineConfig        `mapstructure:"engine"`
	Rules         RulesConfig         `mapstructure:"rules"`
	ML            MLConfig            `mapstructure:"ml"`
	Collector     CollectorConfig     `mapstructure:"collector"`
	Parser        ParserConfig        `mapstructure:"parser"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Containment   ContainmentConfig   `mapstructure:"containment"`
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Feedback      FeedbackConfig      `mapstructure:"feedback"`
	API           APIConfig           `mapstructure:"api"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

func setDefaults() {
	viper.SetDefault("engine.buffer_size", 1000)
	viper.SetDefault("engine.drain_timeout", 30*time.Second)
	viper.SetDefault("engine.max_window_keys", 100000)
	viper.SetDefault("engine.sweep_interval", 30*time.Second)
	viper.SetDefault("engine.collaborator_timeout", 5*time.Second)
	viper.SetDefault("engine.containment_severity", "high")
	viper.SetDefault("engine.dispatch_workers", 4)
	viper.SetDefault("engine.dispatch_queue_size", 1000)
	viper.SetDefault("engine.history_size", 1000)

	viper.SetDefault("rules.dir", "rules")

	viper.SetDefault("ml.enabled", true)
	viper.SetDefault("ml.algorithm", "knn")
	viper.SetDefault("ml.low_watermark", 10)
	viper.SetDefault("ml.high_watermark", 20)
	viper.SetDefault("ml.async_retrain", false)
	viper.SetDefault("ml.contamination", 0.1)
	viper.SetDefault("ml.neighbors", 5)
	viper.SetDefault("ml.num_trees", 100)
	viper.SetDefault("ml.subsample_size", 256)
	viper.SetDefault("ml.seed", 42)
	viper.SetDefault("ml.anomaly_severity", "info")
	viper.SetDefault("ml.snapshot_path", "")

	viper.SetDefault("collector.enabled", true)
	viper.SetDefault("collector.log_paths", []string{"logs/auth.log"})
	viper.SetDefault("collector.from_beginning", false)
	viper.SetDefault("collector.poll", false)

	viper.SetDefault("parser.patterns_file", "")
	viper.SetDefault("parser.match_timeout", 100*time.Millisecond)

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "security-events")
	viper.SetDefault("kafka.group_id", "argus")
	viper.SetDefault("kafka.source", "kafka")

	viper.SetDefault("containment.file.enabled", true)
	viper.SetDefault("containment.file.path", "logs/blocked_ips.txt")
	viper.SetDefault("containment.redis.enabled", false)
	viper.SetDefault("containment.redis.addr", "localhost:6379")
	viper.SetDefault("containment.redis.password", "")
	viper.SetDefault("containment.redis.db", 0)
	viper.SetDefault("containment.redis.pool_size", 10)
	viper.SetDefault("containment.redis.ttl", 24*time.Hour)
	viper.SetDefault("containment.misp.enabled", false)
	viper.SetDefault("containment.misp.url", "")
	viper.SetDefault("containment.misp.api_key", "")
	viper.SetDefault("containment.misp.timeout", 5*time.Second)
	viper.SetDefault("containment.misp.insecure_skip_verify", false)
	viper.SetDefault("containment.misp.rate_limit", 10.0)
	viper.SetDefault("containment.misp.burst", 10)

	viper.SetDefault("orchestration.shuffle.enabled", false)
	viper.SetDefault("orchestration.shuffle.webhook_url", "")
	viper.SetDefault("orchestration.shuffle.timeout", 5*time.Second)
	viper.SetDefault("orchestration.shuffle.insecure_skip_verify", false)
	viper.SetDefault("orchestration.shuffle.rate_limit", 10.0)
	viper.SetDefault("orchestration.shuffle.burst", 10)
	viper.SetDefault("orchestration.nats.enabled", false)
	viper.SetDefault("orchestration.nats.url", "nats://localhost:4222")
	viper.SetDefault("orchestration.nats.subject_prefix", "argus.alerts")
	viper.SetDefault("orchestration.nats.max_reconnects", 60)
	viper.SetDefault("orchestration.nats.reconnect_wait", 2*time.Second)

	viper.SetDefault("feedback.enabled", true)
	viper.SetDefault("feedback.backend", FeedbackBackendDirectory)
	viper.SetDefault("feedback.pending_dir", "rules/pending")
	viper.SetDefault("feedback.rejected_dir", "rules/rejected")
	viper.SetDefault("feedback.sqlite_path", "data/argus.db")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.addr", "127.0.0.1:8081")
	viper.SetDefault("api.rate_limit.requests_per_second", 20.0)
	viper.SetDefault("api.rate_limit.burst", 40)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// shorter names for the settings most often overridden per host
	_ = viper.BindEnv("rules.dir", "ARGUS_RULES_DIR")
	_ = viper.BindEnv("ml.snapshot_path", "ARGUS_SNAPSHOT_PATH")
	_ = viper.BindEnv("logging.level", "ARGUS_LOG_LEVEL")
	_ = viper.BindEnv("containment.misp.api_key", "ARGUS_MISP_API_KEY", "MISP_API_KEY")
	_ = viper.BindEnv("orchestration.shuffle.webhook_url", "ARGUS_SHUFFLE_WEBHOOK_URL", "SHUFFLE_WEBHOOK_URL")
	_ = viper.BindEnv("containment.redis.password", "ARGUS_REDIS_PASSWORD")
}

// LoadConfig reads configuration. configFile, when set, replaces the
// config.yaml search in . and ./config.
func LoadConfig(configFile string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Engine.BufferSize <= 0 {
		return fmt.Errorf("engine buffer_size must be positive")
	}
	if config.Engine.DispatchWorkers <= 0 || config.Engine.DispatchQueueSize <= 0 {
		return fmt.Errorf("engine dispatch_workers and dispatch_queue_size must be positive")
	}
	if config.Engine.CollaboratorTimeout <= 0 {
		return fmt.Errorf("engine collaborator_timeout must be positive")
	}
	if !isSeverity(config.Engine.ContainmentSeverity) {
		return fmt.Errorf("invalid engine containment_severity: %q", config.Engine.ContainmentSeverity)
	}

	if config.Rules.Dir == "" {
		return fmt.Errorf("rules dir cannot be empty")
	}

	if config.ML.Enabled {
		switch config.ML.Algorithm {
		case "knn", "isolation_forest":
		default:
			return fmt.Errorf("invalid ml algorithm: %q (must be knn or isolation_forest)", config.ML.Algorithm)
		}
		if config.ML.LowWatermark < 2 {
			return fmt.Errorf("ml low_watermark must be at least 2")
		}
		if config.ML.HighWatermark <= config.ML.LowWatermark {
			return fmt.Errorf("ml high_watermark (%d) must exceed low_watermark (%d)", config.ML.HighWatermark, config.ML.LowWatermark)
		}
		if config.ML.Contamination <= 0 || config.ML.Contamination >= 0.5 {
			return fmt.Errorf("ml contamination must be in (0, 0.5)")
		}
		if !isSeverity(config.ML.AnomalySeverity) {
			return fmt.Errorf("invalid ml anomaly_severity: %q", config.ML.AnomalySeverity)
		}
	}

	if config.Collector.Enabled && len(config.Collector.LogPaths) == 0 {
		return fmt.Errorf("collector enabled but no log_paths configured")
	}
	if config.Parser.MatchTimeout <= 0 {
		return fmt.Errorf("parser match_timeout must be positive")
	}

	if config.Kafka.Enabled {
		if len(config.Kafka.Brokers) == 0 || config.Kafka.Topic == "" || config.Kafka.GroupID == "" {
			return fmt.Errorf("kafka enabled but brokers, topic or group_id missing")
		}
	}

	if config.Containment.File.Enabled && config.Containment.File.Path == "" {
		return fmt.Errorf("containment file path cannot be empty")
	}
	if config.Containment.Redis.Enabled {
		if _, _, err := net.SplitHostPort(config.Containment.Redis.Addr); err != nil {
			return fmt.Errorf("invalid containment redis addr: %w", err)
		}
		if config.Containment.Redis.TTL <= 0 {
			return fmt.Errorf("containment redis ttl must be positive")
		}
	}
	if config.Containment.MISP.Enabled {
		if err := validateHTTPURL(config.Containment.MISP.URL); err != nil {
			return fmt.Errorf("invalid containment misp url: %w", err)
		}
		if config.Containment.MISP.APIKey == "" {
			return fmt.Errorf("containment misp api_key is required")
		}
	}

	if config.Orchestration.Shuffle.Enabled {
		if err := validateHTTPURL(config.Orchestration.Shuffle.WebhookURL); err != nil {
			return fmt.Errorf("invalid shuffle webhook_url: %w", err)
		}
	}
	if config.Orchestration.NATS.Enabled && config.Orchestration.NATS.URL == "" {
		return fmt.Errorf("nats enabled but url is empty")
	}

	if config.Feedback.Enabled {
		switch config.Feedback.Backend {
		case FeedbackBackendDirectory:
			if config.Feedback.PendingDir == "" || config.Feedback.RejectedDir == "" {
				return fmt.Errorf("feedback pending_dir and rejected_dir are required")
			}
		case FeedbackBackendSQLite:
			if config.Feedback.SQLitePath == "" {
				return fmt.Errorf("feedback sqlite_path is required")
			}
		default:
			return fmt.Errorf("invalid feedback backend: %q (must be directory or sqlite)", config.Feedback.Backend)
		}
	}

	if config.API.Enabled {
		if _, _, err := net.SplitHostPort(config.API.Addr); err != nil {
			return fmt.Errorf("invalid api addr: %w", err)
		}
		if config.API.RateLimit.RequestsPerSecond < 0 || config.API.RateLimit.Burst < 0 {
			return fmt.Errorf("api rate_limit values cannot be negative")
		}
	}

	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", config.Logging.Level)
	}
	return nil
}

func isSeverity(s string) bool {
	_, err := core.ParseSeverity(s)
	return err == nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
