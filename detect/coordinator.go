package detect

import (
	"context"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/ml"

	"go.uber.org/zap"
)

// AnomalyScorer is the outlier model as seen by the coordinator
type AnomalyScorer interface {
	Observe(event *core.Event)
	Score(event *core.Event) *ml.Signal
}

// AlertDispatcher receives every alert the coordinator returns. Dispatch
// must not block on collaborator success and must not fail the caller.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert *core.Alert)
}

// CoordinatorConfig holds the coordinator's collaborators
type CoordinatorConfig struct {
	Engine          *RuleEngine
	Scorer          AnomalyScorer
	Dispatchers     []AlertDispatcher
	AnomalySeverity core.Severity
	Logger          *zap.SugaredLogger
	Clock           func() time.Time
}

// Coordinator is the only writer of correlation and model state. Ingest
// calls from any number of goroutines are serialized, so frequency counts
// and retrain decisions always see a consistent view.
type Coordinator struct {
	mu              sync.Mutex
	engine          *RuleEngine
	scorer          AnomalyScorer
	dispatchers     []AlertDispatcher
	anomalySeverity core.Severity
	logger          *zap.SugaredLogger
	clock           func() time.Time
	closed          bool
	ingested        uint64
	alerts          uint64
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Coordinator{
		engine:          cfg.Engine,
		scorer:          cfg.Scorer,
		dispatchers:     cfg.Dispatchers,
		anomalySeverity: cfg.AnomalySeverity,
		logger:          cfg.Logger,
		clock:           cfg.Clock,
	}
}

// Ingest correlates and scores one event. A rule match takes priority over
// an anomaly signal, so at most one alert is returned and dispatched per
// event. Returns core.ErrEngineClosed after Close.
func (c *Coordinator) Ingest(ctx context.Context, event *core.Event) (*core.Alert, error) {
	alert, err := c.correlate(event)
	if err != nil || alert == nil {
		return nil, err
	}

	c.logger.Warnw("Alert generated",
		"kind", alert.Kind,
		"rule_id", alert.RuleID,
		"title", alert.Title(),
		"severity", alert.Severity,
		"ip", alert.Event.IP,
		"user", alert.Event.User)
	metrics.AlertsGenerated.WithLabelValues(string(alert.Kind), alert.Severity.String()).Inc()

	for _, d := range c.dispatchers {
		d.Dispatch(ctx, alert)
	}
	return alert, nil
}

func (c *Coordinator) correlate(event *core.Event) (*core.Alert, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, core.ErrEngineClosed
	}
	if event == nil {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())
	}()
	c.ingested++
	metrics.EventsIngested.WithLabelValues(sourceLabel(event)).Inc()

	var alert *core.Alert
	if c.engine != nil {
		alert = c.engine.Evaluate(event)
	}

	var signal *ml.Signal
	if c.scorer != nil {
		c.scorer.Observe(event)
		signal = c.scorer.Score(event)
	}

	if alert == nil && signal != nil && signal.IsOutlier {
		alert = core.NewAnomalyAlert(event, signal.Confidence, c.anomalySeverity, c.clock())
	}
	if alert != nil {
		c.alerts++
	}
	return alert, nil
}

// Close rejects further ingestion. It returns once any ingest holding the
// state lock has finished.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Counts returns how many events were ingested and how many alerts produced
func (c *Coordinator) Counts() (ingested, alerts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ingested, c.alerts
}

func sourceLabel(event *core.Event) string {
	if event.Source == "" {
		return "unknown"
	}
	return event.Source
}
