package feedback

import (
	"regexp"
	"testing"
	"time"

	"argus/core"
	"argus/detect"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleAlert(ip, eventType string) *core.Alert {
	rule := &core.RuleDefinition{
		ID:        "r1",
		Title:     "SSH brute force",
		Severity:  core.SeverityHigh,
		Selection: map[string]any{"event_type": eventType},
	}
	ev := core.NewEvent(eventType, "high", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ev.IP = ip
	return core.NewRuleAlert(rule, ev, ev.Timestamp)
}

func fixedGenerator() *Generator {
	return &Generator{
		now:    func() time.Time { return time.Date(2026, 3, 1, 9, 8, 7, 0, time.UTC) },
		suffix: func() string { return "0a1b2c3d" },
	}
}

func TestGenerator_Candidate(t *testing.T) {
	rule, err := fixedGenerator().Candidate(ruleAlert("203.0.113.9", "failed_login"))
	require.NoError(t, err)

	assert.Equal(t, "learned_20260301_090807_0a1b2c3d", rule.ID)
	assert.Equal(t, "Auto-generated: Suspicious failed_login from 203.0.113.9", rule.Title)
	assert.Equal(t, core.SeverityHigh, rule.Severity)
	assert.Equal(t, CandidateStatus, rule.Status)
	assert.Equal(t, map[string]any{"ip": "203.0.113.9", "event_type": "failed_login"}, rule.Selection)
	assert.Nil(t, rule.Frequency)
}

func TestGenerator_DefaultIDShape(t *testing.T) {
	rule, err := NewGenerator().Candidate(ruleAlert("203.0.113.9", "failed_login"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^learned_\d{8}_\d{6}_[0-9a-f]{8}$`), rule.ID)
}

func TestGenerator_NeedsAddressAndType(t *testing.T) {
	_, err := fixedGenerator().Candidate(ruleAlert("", "failed_login"))
	assert.ErrorIs(t, err, ErrNoCandidate)

	_, err = fixedGenerator().Candidate(nil)
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestEncodeRule_LoadsBack(t *testing.T) {
	rule, err := fixedGenerator().Candidate(ruleAlert("203.0.113.9", "failed_login"))
	require.NoError(t, err)

	data, err := EncodeRule(rule, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, string(data), "level: high")
	assert.Contains(t, string(data), "condition: selection")
	assert.Contains(t, string(data), "2026-03-01")

	loaded, err := detect.ParseRuleDocument(data)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, loaded.ID)
	assert.Equal(t, rule.Title, loaded.Title)
	assert.Equal(t, rule.Selection, loaded.Selection)
	assert.Equal(t, core.SeverityHigh, loaded.Severity)
}
