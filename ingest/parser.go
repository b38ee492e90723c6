package ingest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"argus/core"
	"argus/metrics"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultMatchTimeout bounds a single pattern match against one line
const DefaultMatchTimeout = 100 * time.Millisecond

// Fallback values for lines no pattern matches
const (
	UnknownEventType = "unknown"
	UnknownSeverity  = "unknown"
)

// logTimestampField keeps a captured timestamp that could not be parsed
const logTimestampField = "log_timestamp"

//go:embed default_patterns.yaml
var defaultPatterns []byte

// ErrMatchTimeout is returned when a pattern exceeds its match budget
var ErrMatchTimeout = errors.New("pattern match timed out")

// PatternConfig is one entry of a patterns file
type PatternConfig struct {
	Name      string `yaml:"name"`
	Regex     string `yaml:"regex"`
	EventType string `yaml:"event_type"`
	Severity  string `yaml:"severity"`
}

type patternsFile struct {
	Patterns []PatternConfig `yaml:"patterns"`
}

type pattern struct {
	name      string
	re        *regexp2.Regexp
	groups    []string
	eventType string
	severity  string
}

// Parser turns raw log lines into events using an ordered list of named
// regular expressions. The first pattern that matches at the start of the
// line wins; its named groups become event fields.
type Parser struct {
	patterns []pattern
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// LoadParser reads patterns from path. An empty path uses the built-in
// patterns.
func LoadParser(path string, timeout time.Duration, logger *zap.SugaredLogger) (*Parser, error) {
	data := defaultPatterns
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read patterns file: %w", err)
		}
	}
	var file patternsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse patterns file %s: %w", path, err)
	}
	p, err := NewParser(file.Patterns, timeout, logger)
	if err != nil {
		return nil, err
	}
	logger.Infow("Loaded log parsing patterns", "count", len(p.patterns), "file", path)
	return p, nil
}

// NewParser compiles cfgs in order. A pattern that fails to compile fails
// the whole parser.
func NewParser(cfgs []PatternConfig, timeout time.Duration, logger *zap.SugaredLogger) (*Parser, error) {
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	p := &Parser{logger: logger, now: time.Now}
	for i, c := range cfgs {
		if c.Name == "" || c.Regex == "" || c.EventType == "" || c.Severity == "" {
			return nil, fmt.Errorf("pattern %d: name, regex, event_type and severity are required", i)
		}
		// anchor at the start of the line without touching the author's pattern
		re, err := regexp2.Compile(`\A(?:`+c.Regex+`)`, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", c.Name, err)
		}
		re.MatchTimeout = timeout

		var groups []string
		for _, g := range re.GetGroupNames() {
			if _, numeric := strconv.Atoi(g); numeric != nil {
				groups = append(groups, g)
			}
		}
		p.patterns = append(p.patterns, pattern{
			name:      c.Name,
			re:        re,
			groups:    groups,
			eventType: c.EventType,
			severity:  c.Severity,
		})
	}
	return p, nil
}

// Parse converts one line into an event tagged with source. Blank lines
// yield nil; unmatched lines yield an unknown event carrying the raw text.
func (p *Parser) Parse(source, line string) *core.Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	parsedAt := p.now().UTC()
	fields := map[string]any{
		core.FieldRaw:      line,
		core.FieldParsedAt: parsedAt.Format(time.RFC3339Nano),
		core.FieldSource:   source,
	}

	matched := false
	for _, pat := range p.patterns {
		captures, ok, err := pat.match(line)
		if err != nil {
			p.logger.Warnw("Pattern match failed", "pattern", pat.name, "error", err, "length", len(line))
			continue
		}
		if !ok {
			continue
		}
		for k, v := range captures {
			fields[k] = v
		}
		fields[core.FieldEventType] = pat.eventType
		fields[core.FieldSeverity] = pat.severity
		matched = true
		break
	}

	if !matched {
		p.logger.Debugw("No pattern matched log line", "source", source, "line", line)
		metrics.ParseUnmatched.Inc()
		fields[core.FieldEventType] = UnknownEventType
		fields[core.FieldSeverity] = UnknownSeverity
	}

	event, err := core.EventFromFields(fields)
	if err != nil {
		// an unparseable captured timestamp falls back to parsed_at
		if ts, ok := fields[core.FieldTimestamp]; ok {
			delete(fields, core.FieldTimestamp)
			fields[logTimestampField] = ts
			event, err = core.EventFromFields(fields)
		}
	}
	if err != nil {
		p.logger.Errorw("Failed to build event from log line", "source", source, "error", err)
		return nil
	}
	return event
}

// Len returns the number of compiled patterns
func (p *Parser) Len() int {
	return len(p.patterns)
}

func (pat pattern) match(line string) (map[string]string, bool, error) {
	m, err := pat.re.FindStringMatch(line)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return nil, false, fmt.Errorf("%w: %v", ErrMatchTimeout, err)
		}
		return nil, false, err
	}
	if m == nil {
		return nil, false, nil
	}
	captures := make(map[string]string, len(pat.groups))
	for _, name := range pat.groups {
		g := m.GroupByName(name)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		captures[name] = g.String()
	}
	return captures, true, nil
}
