package detect

import (
	"context"
	"errors"
	"sync"
	"time"

	"argus/core"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

// DefaultDrainTimeout bounds how long Stop waits for queued events
const DefaultDrainTimeout = 30 * time.Second

// Detector feeds events from every source into the coordinator through a
// single buffered channel consumed by one worker
type Detector struct {
	coordinator *Coordinator
	inputCh     chan *core.Event
	wg          sync.WaitGroup
	logger      *zap.SugaredLogger
	stopCh      chan struct{}
	stopOnce    sync.Once
	closeOnce   sync.Once
	mu          sync.RWMutex
	closed      bool
}

// NewDetector creates a new Detector with an input queue of bufferSize
func NewDetector(coordinator *Coordinator, bufferSize int, logger *zap.SugaredLogger) *Detector {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Detector{
		coordinator: coordinator,
		inputCh:     make(chan *core.Event, bufferSize),
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start starts the detector
func (d *Detector) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Submit queues an event, blocking while the queue is full. It is safe to
// call from any number of sources.
func (d *Detector) Submit(ctx context.Context, event *core.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return core.ErrEngineClosed
	}
	select {
	case d.inputCh <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run processes events
func (d *Detector) run(ctx context.Context) {
	defer d.wg.Done()
	defer goroutine.Recover("detector", d.logger)

	d.logger.Info("Detector started - waiting for events")
	count := 0
	for {
		select {
		case <-d.stopCh:
			d.logger.Infow("Detector stop signal received", "events", count)
			return
		case event, ok := <-d.inputCh:
			if !ok {
				d.logger.Infow("Detector drained input queue", "events", count)
				return
			}
			count++
			if _, err := d.coordinator.Ingest(ctx, event); err != nil {
				if errors.Is(err, core.ErrEngineClosed) {
					return
				}
				d.logger.Errorw("Failed to ingest event", "event_id", event.EventID, "error", err)
			}
		}
	}
}

// Stop closes the input queue and waits for queued events to be correlated.
// If draining takes longer than timeout the worker is told to stop early.
func (d *Detector) Stop(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.inputCh)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Detector stopped successfully")
	case <-time.After(timeout):
		d.logger.Warnw("Detector drain timed out, stopping with events still queued", "timeout", timeout, "queued", len(d.inputCh))
		d.stopOnce.Do(func() { close(d.stopCh) })
		<-done
	}
}

// Queued returns the number of events waiting for the worker
func (d *Detector) Queued() int {
	return len(d.inputCh)
}
