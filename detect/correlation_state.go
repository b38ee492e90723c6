package detect

import (
	"context"
	"sort"
	"sync"
	"time"

	"argus/metrics"
	"argus/util/goroutine"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	// DefaultMaxWindowKeys bounds how many grouping keys the window tracks
	DefaultMaxWindowKeys = 100000
	// DefaultSweepInterval is how often idle keys are swept
	DefaultSweepInterval = 30 * time.Second
)

// timeline is the per-key deque of observation times, kept in ascending
// order. Live entries are times[head:]; the prefix is reclaimed lazily.
type timeline struct {
	times     []time.Time
	head      int
	maxWindow time.Duration
	newest    time.Time
}

func (tl *timeline) live() []time.Time {
	return tl.times[tl.head:]
}

// insert appends ts, or places it by binary search when it arrives out of order
func (tl *timeline) insert(ts time.Time) {
	live := tl.live()
	n := len(live)
	if n == 0 || !ts.Before(live[n-1]) {
		tl.times = append(tl.times, ts)
	} else {
		i := sort.Search(n, func(i int) bool { return live[i].After(ts) })
		pos := tl.head + i
		tl.times = append(tl.times, time.Time{})
		copy(tl.times[pos+1:], tl.times[pos:])
		tl.times[pos] = ts
	}
	if ts.After(tl.newest) {
		tl.newest = ts
	}
}

// trimBefore drops entries older than cutoff and returns how many went
func (tl *timeline) trimBefore(cutoff time.Time) int {
	live := tl.live()
	n := sort.Search(len(live), func(i int) bool { return !live[i].Before(cutoff) })
	if n == 0 {
		return 0
	}
	for i := tl.head; i < tl.head+n; i++ {
		tl.times[i] = time.Time{}
	}
	tl.head += n
	if tl.head >= len(tl.times)/2 {
		tl.times = append(tl.times[:0], tl.times[tl.head:]...)
		tl.head = 0
	}
	return n
}

// evict applies the key's governing window relative to its newest entry
func (tl *timeline) evict() int {
	if tl.maxWindow <= 0 {
		return 0
	}
	return tl.trimBefore(tl.newest.Add(-tl.maxWindow))
}

func (tl *timeline) countSince(cutoff time.Time) int {
	live := tl.live()
	i := sort.Search(len(live), func(i int) bool { return !live[i].Before(cutoff) })
	return len(live) - i
}

// WindowStats holds statistics about the correlation window
type WindowStats struct {
	Keys    int `json:"keys"`
	Entries int `json:"entries"`
}

// CorrelationWindow keeps recent event timestamps per grouping key for
// frequency conditions. Each key remembers the largest window it was
// recorded under and never retains entries older than that window measured
// from its newest entry. The number of keys is bounded by an LRU; the
// least recently touched key is dropped when the bound is reached.
//
// All times are event times. The window never consults the wall clock, so
// replayed or delayed events correlate the same way live ones do.
type CorrelationWindow struct {
	mu     sync.Mutex
	keys   *lru.Cache[string, *timeline]
	latest time.Time
	logger *zap.SugaredLogger

	janitorCancel context.CancelFunc
	janitorWg     sync.WaitGroup
}

// NewCorrelationWindow creates a window tracking at most maxKeys keys
func NewCorrelationWindow(maxKeys int, logger *zap.SugaredLogger) *CorrelationWindow {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxWindowKeys
	}
	cache, err := lru.NewWithEvict[string, *timeline](maxKeys, func(string, *timeline) {
		metrics.WindowEvictions.WithLabelValues("key").Inc()
	})
	if err != nil {
		// only reachable with a non-positive size, which is excluded above
		panic(err)
	}
	return &CorrelationWindow{keys: cache, logger: logger}
}

// Record adds an observation for key. window is the duration of the rule
// governing the key; entries outside the largest window seen are evicted.
func (w *CorrelationWindow) Record(key string, ts time.Time, window time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tl, ok := w.keys.Get(key)
	if !ok {
		tl = &timeline{}
		w.keys.Add(key, tl)
		metrics.WindowKeys.Set(float64(w.keys.Len()))
	}
	if window > tl.maxWindow {
		tl.maxWindow = window
	}
	tl.insert(ts)
	if ts.After(w.latest) {
		w.latest = ts
	}
	if n := tl.evict(); n > 0 {
		metrics.WindowEvictions.WithLabelValues("expired").Add(float64(n))
	}
}

// CountSince returns how many observations for key have a timestamp at or
// after cutoff, after discarding entries outside the key's window
func (w *CorrelationWindow) CountSince(key string, cutoff time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	tl, ok := w.keys.Get(key)
	if !ok {
		return 0
	}
	if n := tl.evict(); n > 0 {
		metrics.WindowEvictions.WithLabelValues("expired").Add(float64(n))
	}
	return tl.countSince(cutoff)
}

// Sweep drops keys whose newest entry fell out of their window relative to
// the newest event time recorded on any key. Keys still inside their window
// are left untouched, so a sweep never changes a count the engine would see.
func (w *CorrelationWindow) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for _, key := range w.keys.Keys() {
		tl, ok := w.keys.Peek(key)
		if !ok {
			continue
		}
		idle := tl.maxWindow > 0 && tl.newest.Add(tl.maxWindow).Before(w.latest)
		if idle || len(tl.live()) == 0 {
			w.keys.Remove(key)
			removed++
		}
	}
	metrics.WindowKeys.Set(float64(w.keys.Len()))
	return removed
}

// StartJanitor sweeps on interval until ctx is cancelled or Stop is called
func (w *CorrelationWindow) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	w.janitorCancel = cancel

	ticker := time.NewTicker(interval)
	w.janitorWg.Add(1)
	go func() {
		defer w.janitorWg.Done()
		defer goroutine.Recover("correlation-window-janitor", w.logger)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := w.Sweep(); removed > 0 {
					w.logger.Debugw("Swept idle window keys", "removed", removed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the janitor and waits for it to exit
func (w *CorrelationWindow) Stop() {
	if w.janitorCancel != nil {
		w.janitorCancel()
	}
	w.janitorWg.Wait()
}

// Stats returns the current key and entry counts
func (w *CorrelationWindow) Stats() WindowStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := WindowStats{Keys: w.keys.Len()}
	for _, key := range w.keys.Keys() {
		if tl, ok := w.keys.Peek(key); ok {
			stats.Entries += len(tl.live())
		}
	}
	return stats
}
