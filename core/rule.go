package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Severity is the ordered rule and alert severity: info < high < critical
type Severity int

const (
	// SeverityInfo is informational
	SeverityInfo Severity = iota
	// SeverityHigh triggers containment
	SeverityHigh
	// SeverityCritical triggers containment
	SeverityCritical
)

// Frequency defaults applied when a rule document omits them
const (
	DefaultGroupBy         = FieldIP
	DefaultFrequencyWindow = 60 * time.Second
	DefaultThreshold       = 3
)

// ParseSeverity parses a severity name, case-insensitively
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "informational", "low":
		return SeverityInfo, nil
	case "high", "medium":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q", s)
	}
}

// String returns the string representation
func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// AtLeast reports whether s is at or above other
func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Frequency is a multi-event condition: at least Threshold selection-passing
// events sharing the GroupBy field value within the trailing Window.
type Frequency struct {
	Window    time.Duration `json:"window_duration"`
	Threshold int           `json:"threshold"`
	GroupBy   string        `json:"group_by"`
}

// RuleDefinition is a validated, immutable detection rule
type RuleDefinition struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Selection   map[string]any `json:"selection"`
	Frequency   *Frequency     `json:"frequency,omitempty"`
	Status      string         `json:"status,omitempty"`
	Author      string         `json:"author,omitempty"`
	Source      string         `json:"source,omitempty"`
}

// SelectionFields returns the selection keys in a stable order
func (r *RuleDefinition) SelectionFields() []string {
	fields := make([]string, 0, len(r.Selection))
	for k := range r.Selection {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// ToDocument renders the rule in the native document layout
func (r *RuleDefinition) ToDocument() RuleDocument {
	doc := RuleDocument{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Severity:    r.Severity.String(),
		Status:      r.Status,
		Author:      r.Author,
		Selection:   make(map[string]any, len(r.Selection)),
	}
	for k, v := range r.Selection {
		doc.Selection[k] = v
	}
	if r.Frequency != nil {
		doc.Frequency = &FrequencyDocument{
			WindowDuration: r.Frequency.Window.String(),
			Threshold:      r.Frequency.Threshold,
			GroupBy:        r.Frequency.GroupBy,
		}
	}
	return doc
}

// RuleDocument is the on-disk rule layout. Both the native form
// (severity, selection, frequency.window_duration) and the sigma-flavoured
// form (level, detection.selection, frequency.time_window) decode into it.
type RuleDocument struct {
	ID          string             `yaml:"id" json:"id" validate:"required,max=256"`
	Title       string             `yaml:"title" json:"title" validate:"required,max=512"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Severity    string             `yaml:"severity,omitempty" json:"severity,omitempty"`
	Level       string             `yaml:"level,omitempty" json:"level,omitempty"`
	Status      string             `yaml:"status,omitempty" json:"status,omitempty"`
	Author      string             `yaml:"author,omitempty" json:"author,omitempty"`
	Date        string             `yaml:"date,omitempty" json:"date,omitempty"`
	Selection   map[string]any     `yaml:"selection,omitempty" json:"selection,omitempty"`
	Detection   *DetectionDocument `yaml:"detection,omitempty" json:"detection,omitempty"`
	Frequency   *FrequencyDocument `yaml:"frequency,omitempty" json:"frequency,omitempty"`
}

// DetectionDocument is the sigma-style detection block
type DetectionDocument struct {
	Selection map[string]any `yaml:"selection" json:"selection"`
	Condition string         `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// FrequencyDocument is the on-disk frequency clause
type FrequencyDocument struct {
	WindowDuration string `yaml:"window_duration,omitempty" json:"window_duration,omitempty"`
	TimeWindow     string `yaml:"time_window,omitempty" json:"time_window,omitempty"`
	Threshold      int    `yaml:"threshold,omitempty" json:"threshold,omitempty" validate:"gte=0"`
	GroupBy        string `yaml:"group_by,omitempty" json:"group_by,omitempty"`
}

// ParseWindow parses a window duration such as "60s", "5m" or a bare number of seconds
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty window duration")
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Canonical returns the comparison form of a scalar value so that a rule
// literal 22 equals an event field "22". Non-scalars are rejected.
func Canonical(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return canonicalFloat(float64(val)), nil
	case float64:
		return canonicalFloat(val), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func canonicalFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
