package detect

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScanRules_LoadOrder(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"20_ssh.yml":   sshRootRule,
		"10_brute.yml": bruteForceRule,
		"notes.txt":    "ignored",
	})

	report, err := ScanRules(dir)
	require.NoError(t, err)
	require.Len(t, report.Rules, 2)
	assert.Equal(t, "r1", report.Rules[0].ID)
	assert.Equal(t, "r2", report.Rules[1].ID)
	assert.Equal(t, 2, report.Files)
	assert.Empty(t, report.Skipped)

	r1 := report.Rules[0]
	assert.Equal(t, core.SeverityHigh, r1.Severity)
	require.NotNil(t, r1.Frequency)
	assert.Equal(t, 60*time.Second, r1.Frequency.Window)
	assert.Equal(t, 3, r1.Frequency.Threshold)
	assert.Equal(t, "ip", r1.Frequency.GroupBy)
	assert.Equal(t, filepath.Join(dir, "10_brute.yml"), r1.Source)
}

func TestScanRules_MissingDirectory(t *testing.T) {
	_, err := ScanRules(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLoad))
}

func TestScanRules_EmptyDirectoryIsValid(t *testing.T) {
	report, err := ScanRules(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, report.Rules)
}

func TestScanRules_SkipsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not yaml", "id: [unclosed"},
		{"not a mapping", "- a\n- b\n"},
		{"missing id", "title: x\nseverity: high\nselection: {event_type: a}\n"},
		{"missing title", "id: x\nseverity: high\nselection: {event_type: a}\n"},
		{"unknown severity", "id: x\ntitle: x\nseverity: apocalyptic\nselection: {event_type: a}\n"},
		{"no severity", "id: x\ntitle: x\nselection: {event_type: a}\n"},
		{"empty selection", "id: x\ntitle: x\nseverity: info\nselection: {}\n"},
		{"nested selection value", "id: x\ntitle: x\nseverity: info\nselection: {event_type: {a: b}}\n"},
		{"bad window", "id: x\ntitle: x\nseverity: info\nselection: {event_type: a}\nfrequency: {window_duration: soon}\n"},
		{"zero threshold is schema error", "id: x\ntitle: x\nseverity: info\nselection: {event_type: a}\nfrequency: {threshold: 0}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeRules(t, map[string]string{
				"00_bad.yml":  tt.body,
				"10_good.yml": sshRootRule,
			})
			report, err := ScanRules(dir)
			require.NoError(t, err)
			require.Len(t, report.Rules, 1)
			assert.Equal(t, "r2", report.Rules[0].ID)
			assert.NotEmpty(t, report.Skipped)
		})
	}
}

func TestScanRules_DuplicateIDFirstWins(t *testing.T) {
	dup := "id: r1\ntitle: Impostor\nseverity: info\nselection: {event_type: other}\n"
	dir := writeRules(t, map[string]string{
		"a.yml": bruteForceRule,
		"b.yml": dup,
		"c.yml": bruteForceRule,
	})

	report, err := ScanRules(dir)
	require.NoError(t, err)
	require.Len(t, report.Rules, 1)
	assert.Equal(t, "Brute force login", report.Rules[0].Title)
	require.Len(t, report.Skipped, 2)
	assert.True(t, report.Skipped[0].Duplicate)
	assert.True(t, report.Skipped[1].Duplicate)
}

func TestScanRules_MultiDocument(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"all.yaml": bruteForceRule + "\n---\n" + sshRootRule + "\n---\n",
	})
	report, err := ScanRules(dir)
	require.NoError(t, err)
	require.Len(t, report.Rules, 2)
	assert.Equal(t, "r1", report.Rules[0].ID)
	assert.Equal(t, "r2", report.Rules[1].ID)
}

func TestParseRuleDocument_SigmaLayout(t *testing.T) {
	rule, err := ParseRuleDocument([]byte(`
title: Auto-generated rule
id: learned_1
status: experimental
level: high
detection:
  selection:
    ip: 203.0.113.9
    event_type: failed_login
  condition: selection
frequency:
  time_window: 120s
`))
	require.NoError(t, err)
	assert.Equal(t, core.SeverityHigh, rule.Severity)
	assert.Equal(t, "203.0.113.9", rule.Selection["ip"])
	assert.Equal(t, "experimental", rule.Status)
	require.NotNil(t, rule.Frequency)
	assert.Equal(t, 2*time.Minute, rule.Frequency.Window)
	assert.Equal(t, core.DefaultThreshold, rule.Frequency.Threshold)
	assert.Equal(t, core.DefaultGroupBy, rule.Frequency.GroupBy)
}

func TestParseRuleDocument_RoundTripsToDocument(t *testing.T) {
	rule, err := ParseRuleDocument([]byte(bruteForceRule))
	require.NoError(t, err)

	doc := rule.ToDocument()
	assert.Equal(t, "high", doc.Severity)
	assert.Equal(t, "1m0s", doc.Frequency.WindowDuration)
}

func TestLoadRuleStore_LogsSkipped(t *testing.T) {
	observed, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(observed).Sugar()

	dir := writeRules(t, map[string]string{
		"a.yml": bruteForceRule,
		"b.yml": "id: broken\n",
	})
	store, err := LoadRuleStore(dir, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, dir, store.Source())
	assert.Equal(t, 1, logs.FilterMessage("Skipping rule document").Len())
}

func TestRuleStore_IgnoresDuplicatesAndCopies(t *testing.T) {
	a := &core.RuleDefinition{ID: "a", Title: "first"}
	b := &core.RuleDefinition{ID: "a", Title: "second"}
	c := &core.RuleDefinition{ID: "c"}
	store := NewRuleStore(a, b, nil, c)

	assert.Equal(t, 2, store.Len())
	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "first", got.Title)

	rules := store.Rules()
	rules[0] = nil
	assert.NotNil(t, store.Rules()[0], "Rules returns a copy")
}
