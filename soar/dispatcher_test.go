package soar

import (
	"context"
	"errors"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcher_CallsCollaboratorsInOrder(t *testing.T) {
	log := &callLog{}
	orch := &fakeOrchestrator{log: log}
	d := NewDispatcher(DispatcherConfig{
		Containment:  &fakeContainment{log: log},
		Orchestrator: orch,
		Feedback:     &fakeFeedback{log: log},
		Logger:       zap.NewNop().Sugar(),
	})

	alert := testAlert(t, core.SeverityHigh, "203.0.113.9")
	require.NoError(t, d.Deliver(context.Background(), alert))

	assert.Equal(t, []string{CollaboratorContainment, CollaboratorOrchestration, CollaboratorFeedback}, log.list())
	assert.Equal(t, core.AlertTypeRule, orch.alertType)
	assert.Equal(t, "203.0.113.9", orch.ip)
	assert.Equal(t, "SSH brute force: Failed password for root from 203.0.113.9", orch.details)
}

func TestDispatcher_ContainmentGatedBySeverity(t *testing.T) {
	tests := []struct {
		name     string
		severity core.Severity
		ip       string
		blocked  bool
	}{
		{"info is not contained", core.SeverityInfo, "203.0.113.9", false},
		{"high is contained", core.SeverityHigh, "203.0.113.9", true},
		{"critical is contained", core.SeverityCritical, "203.0.113.9", true},
		{"missing address skips containment", core.SeverityCritical, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &callLog{}
			containment := &fakeContainment{log: log}
			d := NewDispatcher(DispatcherConfig{
				Containment:  containment,
				Orchestrator: &fakeOrchestrator{log: log},
				Logger:       zap.NewNop().Sugar(),
			})

			require.NoError(t, d.Deliver(context.Background(), testAlert(t, tt.severity, tt.ip)))

			if tt.blocked {
				assert.Equal(t, []string{tt.ip}, containment.ips)
			} else {
				assert.Empty(t, containment.ips)
			}
			// orchestration always runs
			assert.Contains(t, log.list(), CollaboratorOrchestration)
		})
	}
}

func TestDispatcher_ContainmentSeverityConfigured(t *testing.T) {
	tests := []struct {
		name      string
		threshold core.Severity
		severity  core.Severity
		blocked   bool
	}{
		{"explicit info contains info", core.SeverityInfo, core.SeverityInfo, true},
		{"critical threshold skips high", core.SeverityCritical, core.SeverityHigh, false},
		{"critical threshold contains critical", core.SeverityCritical, core.SeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threshold := tt.threshold
			containment := &fakeContainment{}
			d := NewDispatcher(DispatcherConfig{
				Containment:         containment,
				ContainmentSeverity: &threshold,
				Logger:              zap.NewNop().Sugar(),
			})

			require.NoError(t, d.Deliver(context.Background(), testAlert(t, tt.severity, "203.0.113.9")))
			assert.Equal(t, tt.blocked, len(containment.ips) == 1)
		})
	}
}

func TestDispatcher_FailureDoesNotStopLaterCollaborators(t *testing.T) {
	log := &callLog{}
	boom := errors.New("firewall unreachable")
	d := NewDispatcher(DispatcherConfig{
		Containment:  &fakeContainment{log: log, err: boom},
		Orchestrator: &fakeOrchestrator{log: log},
		Feedback:     &fakeFeedback{log: log},
		Logger:       zap.NewNop().Sugar(),
	})

	err := d.Deliver(context.Background(), testAlert(t, core.SeverityCritical, "198.51.100.7"))

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDispatch)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{CollaboratorContainment, CollaboratorOrchestration, CollaboratorFeedback}, log.list())
}

func TestDispatcher_PanicIsIsolated(t *testing.T) {
	log := &callLog{}
	d := NewDispatcher(DispatcherConfig{
		Orchestrator: &fakeOrchestrator{log: log},
		Feedback:     panickingFeedback{},
		Logger:       zap.NewNop().Sugar(),
	})

	err := d.Deliver(context.Background(), testAlert(t, core.SeverityInfo, "198.51.100.7"))

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDispatch)
	assert.Contains(t, err.Error(), "feedback store exploded")
	assert.Equal(t, []string{CollaboratorOrchestration}, log.list())
}

func TestDispatcher_TimeoutAbandonsSlowCollaborator(t *testing.T) {
	slow := &blockingOrchestrator{release: make(chan struct{})}
	defer close(slow.release)

	log := &callLog{}
	d := NewDispatcher(DispatcherConfig{
		Orchestrator: slow,
		Feedback:     &fakeFeedback{log: log},
		Timeout:      50 * time.Millisecond,
		Logger:       zap.NewNop().Sugar(),
	})

	start := time.Now()
	err := d.Deliver(context.Background(), testAlert(t, core.SeverityInfo, "198.51.100.7"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, core.ErrDispatch)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{CollaboratorFeedback}, log.list())
}

func TestDispatcher_NilCollaboratorsAndAlert(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	assert.NoError(t, d.Deliver(context.Background(), nil))
	assert.NoError(t, d.Deliver(context.Background(), testAlert(t, core.SeverityCritical, "198.51.100.7")))
}
