package bootstrap

import (
	"fmt"
	"os"

	"argus/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger with colored console output and,
// when cfg.File is set, a JSON copy of every line in that file. The returned
// func closes the file sink.
func InitLogger(cfg config.LoggingConfig) (*zap.Logger, *zap.SugaredLogger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level),
	}

	closeFn := func() {}
	if cfg.File != "" {
		sink, closeSink, err := zap.Open(cfg.File)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), sink, level))
		closeFn = closeSink
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), closeFn, nil
}

// InitConfig loads the application configuration
func InitConfig(configFile string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func logConfigSummary(cfg *config.Config, sugar *zap.SugaredLogger) {
	if viper.ConfigFileUsed() == "" {
		sugar.Info("No config file found, using defaults and env vars")
	} else {
		sugar.Infow("Config loaded", "file", viper.ConfigFileUsed())
	}
	sugar.Infow("Detection settings",
		"rules_dir", cfg.Rules.Dir,
		"ml_enabled", cfg.ML.Enabled,
		"algorithm", cfg.ML.Algorithm,
		"anomaly_severity", cfg.ML.AnomalySeverity,
		"containment_severity", cfg.Engine.ContainmentSeverity)
	sugar.Infow("Sources",
		"log_paths", cfg.Collector.LogPaths,
		"collector", cfg.Collector.Enabled,
		"kafka", cfg.Kafka.Enabled)
}
