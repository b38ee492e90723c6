package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known event field names
const (
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldSeverity  = "severity"
	FieldTimestamp = "timestamp"
	FieldIP        = "ip"
	FieldUser      = "user"
	FieldRaw       = "raw"
	FieldSource    = "source"
	FieldParsedAt  = "parsed_at"
)

// timestampLayouts are tried in order when an event timestamp is given as a string
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	"02/Jan/2006:15:04:05 -0700",
	time.Stamp,
}

// Event is a structured security event produced by a parser.
// Named fields cover the schema every rule and extractor relies on; anything
// else the parser captured is kept in Extra.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Severity  string         `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	IP        string         `json:"ip,omitempty"`
	User      string         `json:"user,omitempty"`
	Raw       string         `json:"raw,omitempty"`
	Source    string         `json:"source,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// NewEvent creates a new Event with a generated UUID
func NewEvent(eventType, severity string, ts time.Time) *Event {
	return &Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Severity:  severity,
		Timestamp: ts.UTC(),
		Extra:     make(map[string]any),
	}
}

// EventFromFields builds an Event from a loosely typed field map such as a
// decoded JSON object or a regex capture. event_type and severity are
// required; the timestamp falls back to parsed_at when absent.
func EventFromFields(fields map[string]any) (*Event, error) {
	eventType := stringField(fields, FieldEventType)
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidEvent, FieldEventType)
	}
	severity := stringField(fields, FieldSeverity)
	if severity == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidEvent, FieldSeverity)
	}

	rawTS, ok := fields[FieldTimestamp]
	if !ok || rawTS == nil || rawTS == "" {
		rawTS, ok = fields[FieldParsedAt]
	}
	if !ok || rawTS == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidEvent, FieldTimestamp)
	}
	ts, err := ParseTimestamp(rawTS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	event := &Event{
		EventID:   stringField(fields, FieldEventID),
		EventType: eventType,
		Severity:  severity,
		Timestamp: ts,
		IP:        stringField(fields, FieldIP),
		User:      stringField(fields, FieldUser),
		Raw:       stringField(fields, FieldRaw),
		Source:    stringField(fields, FieldSource),
		Extra:     make(map[string]any),
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	for k, v := range fields {
		switch k {
		case FieldEventID, FieldEventType, FieldSeverity, FieldTimestamp, FieldIP, FieldUser, FieldRaw, FieldSource:
			continue
		}
		event.Extra[k] = v
	}
	return event, nil
}

// Get looks up a field by name. Empty optional fields and nil extras are
// reported as missing so that selections never match on absent data.
func (e *Event) Get(field string) (any, bool) {
	if e == nil {
		return nil, false
	}
	switch field {
	case FieldEventID:
		return e.EventID, e.EventID != ""
	case FieldEventType:
		return e.EventType, e.EventType != ""
	case FieldSeverity:
		return e.Severity, e.Severity != ""
	case FieldTimestamp:
		return e.Timestamp, !e.Timestamp.IsZero()
	case FieldIP:
		return e.IP, e.IP != ""
	case FieldUser:
		return e.User, e.User != ""
	case FieldRaw:
		return e.Raw, e.Raw != ""
	case FieldSource:
		return e.Source, e.Source != ""
	}
	v, ok := e.Extra[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Clone returns a copy that shares no mutable state with the receiver
func (e *Event) Clone() Event {
	c := *e
	if e.Extra != nil {
		c.Extra = make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// ParseTimestamp accepts time.Time, unix seconds or one of the supported
// string layouts. Year-less syslog stamps are placed in the current year.
func ParseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC(), nil
	case int:
		return time.Unix(int64(ts), 0).UTC(), nil
	case int64:
		return time.Unix(ts, 0).UTC(), nil
	case float64:
		sec := int64(ts)
		return time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC(), nil
	case string:
		s := strings.TrimSpace(ts)
		if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC(), nil
		}
		for _, layout := range timestampLayouts {
			t, err := time.Parse(layout, s)
			if err != nil {
				continue
			}
			if layout == time.Stamp {
				now := time.Now().UTC()
				t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
			}
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", ts)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
