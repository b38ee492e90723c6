package api

import (
	"context"
	"sync"

	"argus/core"
)

// DefaultHistorySize is the number of alerts kept for the status API
const DefaultHistorySize = 1000

// AlertHistory keeps the most recent alerts in a fixed ring. It is an alert
// sink of the pipeline: Dispatch never blocks and never fails.
type AlertHistory struct {
	mu    sync.RWMutex
	ring  []*core.Alert
	next  int
	count int
}

// NewAlertHistory creates a history holding up to size alerts
func NewAlertHistory(size int) *AlertHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &AlertHistory{ring: make([]*core.Alert, size)}
}

// Dispatch records alert, overwriting the oldest entry when full
func (h *AlertHistory) Dispatch(_ context.Context, alert *core.Alert) {
	if alert == nil {
		return
	}
	h.mu.Lock()
	h.ring[h.next] = alert
	h.next = (h.next + 1) % len(h.ring)
	if h.count < len(h.ring) {
		h.count++
	}
	h.mu.Unlock()
}

// Recent returns up to limit alerts, newest first
func (h *AlertHistory) Recent(limit int) []*core.Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > h.count {
		limit = h.count
	}
	out := make([]*core.Alert, 0, limit)
	idx := h.next
	for i := 0; i < limit; i++ {
		idx = (idx - 1 + len(h.ring)) % len(h.ring)
		out = append(out, h.ring[idx])
	}
	return out
}

// Len returns the number of alerts held
func (h *AlertHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
