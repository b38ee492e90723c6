package soar

import (
	"context"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

// AlertHandler handles one alert synchronously
type AlertHandler interface {
	Dispatch(ctx context.Context, alert *core.Alert)
}

// AsyncDispatcher hands alerts to a bounded worker pool so that ingestion
// never waits on collaborators. When the queue is full the alert is
// dropped with a warning.
type AsyncDispatcher struct {
	handler AlertHandler
	queue   chan *core.Alert
	workers int
	logger  *zap.SugaredLogger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
}

// NewAsyncDispatcher creates a dispatcher with the given pool shape
func NewAsyncDispatcher(handler AlertHandler, workers, queueSize int, logger *zap.SugaredLogger) *AsyncDispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &AsyncDispatcher{
		handler: handler,
		queue:   make(chan *core.Alert, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start starts the workers
func (a *AsyncDispatcher) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}
}

func (a *AsyncDispatcher) worker(ctx context.Context) {
	defer a.wg.Done()
	defer goroutine.Recover("alert-dispatch-worker", a.logger)
	for alert := range a.queue {
		a.handler.Dispatch(ctx, alert)
	}
}

// Dispatch enqueues alert without blocking
func (a *AsyncDispatcher) Dispatch(_ context.Context, alert *core.Alert) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		a.logger.Warnw("Dispatcher stopped, dropping alert", "alert_id", alert.AlertID, "rule_id", alert.RuleID)
		metrics.DispatchDropped.Inc()
		return
	}
	select {
	case a.queue <- alert:
	default:
		a.logger.Warnw("Dispatch queue full, dropping alert", "alert_id", alert.AlertID, "rule_id", alert.RuleID)
		metrics.DispatchDropped.Inc()
	}
}

// Stop closes the queue and waits up to timeout for queued alerts to be
// delivered. Collaborator calls still running at the deadline are
// cancelled.
func (a *AsyncDispatcher) Stop(timeout time.Duration) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.queue)
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		a.logger.Warnw("Dispatch drain timed out, cancelling collaborator calls", "queued", len(a.queue))
		if a.cancel != nil {
			a.cancel()
		}
		<-done
	}
	if a.cancel != nil {
		a.cancel()
	}
}
