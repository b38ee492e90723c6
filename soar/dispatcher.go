package soar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

// DispatcherConfig holds the collaborators an alert is routed to. Any of
// them may be nil, in which case that step is skipped.
type DispatcherConfig struct {
	Containment  Containment
	Orchestrator Orchestrator
	Feedback     FeedbackSubmitter
	// ContainmentSeverity is the lowest severity that triggers containment;
	// nil means high
	ContainmentSeverity *core.Severity
	Timeout             time.Duration
	Logger              *zap.SugaredLogger
}

// Dispatcher calls the collaborators for one alert in a fixed order:
// containment for high and critical alerts, then orchestration, then
// rule-learning feedback. Each call is isolated; a failure, timeout or
// panic in one never stops the next.
type Dispatcher struct {
	containment         Containment
	orchestrator        Orchestrator
	feedback            FeedbackSubmitter
	containmentSeverity core.Severity
	timeout             time.Duration
	logger              *zap.SugaredLogger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCollaboratorTimeout
	}
	containmentSeverity := core.SeverityHigh
	if cfg.ContainmentSeverity != nil {
		containmentSeverity = *cfg.ContainmentSeverity
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		containment:         cfg.Containment,
		orchestrator:        cfg.Orchestrator,
		feedback:            cfg.Feedback,
		containmentSeverity: containmentSeverity,
		timeout:             cfg.Timeout,
		logger:              cfg.Logger,
	}
}

// Dispatch routes alert and logs any collaborator failures
func (d *Dispatcher) Dispatch(ctx context.Context, alert *core.Alert) {
	_ = d.Deliver(ctx, alert)
}

// Deliver routes alert and returns the joined collaborator errors, each
// wrapping core.ErrDispatch. The errors have already been logged.
func (d *Dispatcher) Deliver(ctx context.Context, alert *core.Alert) error {
	if alert == nil {
		return nil
	}
	var errs []error

	if d.containment != nil && alert.Severity.AtLeast(d.containmentSeverity) {
		if ip := alert.IP(); ip == "" {
			d.logger.Warnw("Containment skipped, alert has no source address", "rule_id", alert.RuleID)
			metrics.DispatchResults.WithLabelValues(CollaboratorContainment, "skipped").Inc()
		} else {
			errs = append(errs, d.call(ctx, CollaboratorContainment, alert, func(ctx context.Context) error {
				return d.containment.Block(ctx, ip, alert.Title())
			}))
		}
	}

	if d.orchestrator != nil {
		errs = append(errs, d.call(ctx, CollaboratorOrchestration, alert, func(ctx context.Context) error {
			return d.orchestrator.Trigger(ctx, alert.AlertType(), alert.IP(), alert.Details())
		}))
	}

	if d.feedback != nil {
		errs = append(errs, d.call(ctx, CollaboratorFeedback, alert, func(ctx context.Context) error {
			return d.feedback.SubmitForReview(ctx, alert)
		}))
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) call(ctx context.Context, name string, alert *core.Alert, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// a collaborator that ignores ctx is abandoned at the deadline; its
	// goroutine finishes in the background
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- goroutine.Safely(name, d.logger, core.ErrDispatch, func() error {
			return fn(ctx)
		})
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if !errors.Is(err, core.ErrDispatch) {
			err = fmt.Errorf("%w: %s: %w", core.ErrDispatch, name, err)
		}
		d.logger.Errorw("Collaborator call failed",
			"collaborator", name,
			"alert_id", alert.AlertID,
			"rule_id", alert.RuleID,
			"duration", time.Since(start),
			"error", err)
		metrics.DispatchResults.WithLabelValues(name, "error").Inc()
		return err
	}
	metrics.DispatchResults.WithLabelValues(name, "success").Inc()
	return nil
}
