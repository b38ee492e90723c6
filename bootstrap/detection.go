package bootstrap

import (
	"context"
	"fmt"

	"argus/config"
	"argus/core"
	"argus/detect"
	"argus/ml"

	"go.uber.org/zap"
)

// InitRules loads the active rule set
func InitRules(cfg *config.Config, sugar *zap.SugaredLogger) (*detect.RuleStore, error) {
	store, err := detect.LoadRuleStore(cfg.Rules.Dir, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %s: %w", cfg.Rules.Dir, err)
	}
	if store.Len() == 0 {
		sugar.Warnw("No detection rules loaded; only anomaly scoring is active", "dir", cfg.Rules.Dir)
	}
	return store, nil
}

// InitScorer creates the anomaly scorer and restores its training buffer
// from the snapshot, if one exists. Returns nil when ML is disabled.
func InitScorer(cfg *config.Config, sugar *zap.SugaredLogger) (*ml.AnomalyScorer, error) {
	if !cfg.ML.Enabled {
		sugar.Info("Anomaly scoring disabled")
		return nil, nil
	}
	scorer, err := ml.NewAnomalyScorer(ml.ScorerConfig{
		LowWatermark:  cfg.ML.LowWatermark,
		HighWatermark: cfg.ML.HighWatermark,
		AsyncRetrain:  cfg.ML.AsyncRetrain,
		Classifier: ml.ClassifierConfig{
			Algorithm:     cfg.ML.Algorithm,
			Contamination: cfg.ML.Contamination,
			Neighbors:     cfg.ML.Neighbors,
			NumTrees:      cfg.ML.NumTrees,
			SubsampleSize: cfg.ML.SubsampleSize,
			Seed:          cfg.ML.Seed,
		},
		Logger: sugar,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create anomaly scorer: %w", err)
	}

	if cfg.ML.SnapshotPath != "" {
		snap, err := ml.LoadSnapshot(cfg.ML.SnapshotPath)
		if err != nil {
			// a stale or corrupt snapshot only costs a cold start
			sugar.Warnw("Ignoring unreadable training snapshot", "path", cfg.ML.SnapshotPath, "error", err)
		} else {
			scorer.Restore(snap)
		}
	}
	return scorer, nil
}

// Pipeline is the detection core: window, engine, coordinator and the
// single-worker detector feeding it
type Pipeline struct {
	Window      *detect.CorrelationWindow
	Engine      *detect.RuleEngine
	Coordinator *detect.Coordinator
	Detector    *detect.Detector
}

// InitPipeline builds the pipeline around rules and scorer. scorer may be nil.
func InitPipeline(cfg *config.Config, rules *detect.RuleStore, scorer *ml.AnomalyScorer, sinks []detect.AlertDispatcher, sugar *zap.SugaredLogger) (*Pipeline, error) {
	anomalySeverity, err := core.ParseSeverity(cfg.ML.AnomalySeverity)
	if err != nil {
		return nil, err
	}

	window := detect.NewCorrelationWindow(cfg.Engine.MaxWindowKeys, sugar)
	engine := detect.NewRuleEngine(rules, window, sugar)

	coordCfg := detect.CoordinatorConfig{
		Engine:          engine,
		Dispatchers:     sinks,
		AnomalySeverity: anomalySeverity,
		Logger:          sugar,
	}
	if scorer != nil {
		coordCfg.Scorer = scorer
	}
	coordinator := detect.NewCoordinator(coordCfg)

	return &Pipeline{
		Window:      window,
		Engine:      engine,
		Coordinator: coordinator,
		Detector:    detect.NewDetector(coordinator, cfg.Engine.BufferSize, sugar),
	}, nil
}

// Start starts the window janitor and the detector worker
func (p *Pipeline) Start(ctx context.Context, cfg *config.Config) {
	p.Window.StartJanitor(ctx, cfg.Engine.SweepInterval)
	p.Detector.Start(ctx)
}
