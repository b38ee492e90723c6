package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSeverityOrdering tests the info < high < critical order
func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityInfo.AtLeast(SeverityHigh))
	assert.Less(t, int(SeverityInfo), int(SeverityHigh))
}

// TestParseSeverity tests severity name parsing
func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input   string
		want    Severity
		wantErr bool
	}{
		{"info", SeverityInfo, false},
		{"HIGH", SeverityHigh, false},
		{" critical ", SeverityCritical, false},
		{"low", SeverityInfo, false},
		{"medium", SeverityHigh, false},
		{"catastrophic", SeverityInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSeverity(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestSeverityText tests the text encoding used by JSON output
func TestSeverityText(t *testing.T) {
	b, err := SeverityCritical.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "critical", string(b))

	var s Severity
	require.NoError(t, s.UnmarshalText([]byte("high")))
	assert.Equal(t, SeverityHigh, s)
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}

// TestParseWindow tests window duration parsing
func TestParseWindow(t *testing.T) {
	d, err := ParseWindow("60s")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = ParseWindow("90")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = ParseWindow("5m")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	_, err = ParseWindow("")
	assert.Error(t, err)
	_, err = ParseWindow("soon")
	assert.Error(t, err)
}

// TestCanonical tests that scalar literals compare by their canonical text
func TestCanonical(t *testing.T) {
	tests := []struct {
		input any
		want  string
	}{
		{"22", "22"},
		{22, "22"},
		{int64(22), "22"},
		{float64(22), "22"},
		{1.5, "1.5"},
		{true, "true"},
		{SeverityHigh, "high"},
	}
	for _, tt := range tests {
		got, err := Canonical(tt.input)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Canonical(map[string]any{"a": 1})
	assert.True(t, errors.Is(err, ErrUnsupportedValue))
	_, err = Canonical([]any{1})
	assert.True(t, errors.Is(err, ErrUnsupportedValue))
}

// TestRuleToDocument tests rendering a rule back to its document layout
func TestRuleToDocument(t *testing.T) {
	rule := &RuleDefinition{
		ID:        "r1",
		Title:     "Brute force",
		Severity:  SeverityHigh,
		Selection: map[string]any{"event_type": "failed_login"},
		Frequency: &Frequency{Window: time.Minute, Threshold: 3, GroupBy: "ip"},
	}

	doc := rule.ToDocument()
	assert.Equal(t, "r1", doc.ID)
	assert.Equal(t, "high", doc.Severity)
	assert.Equal(t, "failed_login", doc.Selection["event_type"])
	require.NotNil(t, doc.Frequency)
	assert.Equal(t, "1m0s", doc.Frequency.WindowDuration)
	assert.Equal(t, 3, doc.Frequency.Threshold)

	assert.Equal(t, []string{"event_type"}, rule.SelectionFields())
}
