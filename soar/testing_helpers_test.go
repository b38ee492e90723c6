package soar

import (
	"context"
	"sync"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/require"
)

// callLog records collaborator calls across goroutines in order
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeContainment struct {
	log *callLog
	err error
	ips []string
	mu  sync.Mutex
}

func (f *fakeContainment) Block(_ context.Context, ip, _ string) error {
	f.mu.Lock()
	f.ips = append(f.ips, ip)
	f.mu.Unlock()
	if f.log != nil {
		f.log.add(CollaboratorContainment)
	}
	return f.err
}

type fakeOrchestrator struct {
	log       *callLog
	err       error
	alertType string
	ip        string
	details   string
}

func (f *fakeOrchestrator) Trigger(_ context.Context, alertType, ip, details string) error {
	f.alertType, f.ip, f.details = alertType, ip, details
	if f.log != nil {
		f.log.add(CollaboratorOrchestration)
	}
	return f.err
}

type fakeFeedback struct {
	log *callLog
	err error
}

func (f *fakeFeedback) SubmitForReview(context.Context, *core.Alert) error {
	if f.log != nil {
		f.log.add(CollaboratorFeedback)
	}
	return f.err
}

type panickingFeedback struct{}

func (panickingFeedback) SubmitForReview(context.Context, *core.Alert) error {
	panic("feedback store exploded")
}

// blockingOrchestrator ignores ctx and waits for release
type blockingOrchestrator struct {
	release chan struct{}
}

func (b *blockingOrchestrator) Trigger(context.Context, string, string, string) error {
	<-b.release
	return nil
}

func testAlert(t *testing.T, severity core.Severity, ip string) *core.Alert {
	t.Helper()
	rule := &core.RuleDefinition{
		ID:       "r1",
		Title:    "SSH brute force",
		Severity: severity,
		Selection: map[string]any{
			"event_type": "failed_login",
		},
	}
	event := core.NewEvent("failed_login", "high", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	event.IP = ip
	event.Raw = "Failed password for root from " + ip
	alert := core.NewRuleAlert(rule, event, event.Timestamp)
	require.NotNil(t, alert)
	return alert
}
