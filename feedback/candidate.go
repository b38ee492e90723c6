// Package feedback turns alerts into candidate rules and keeps them in a
// review lifecycle (pending, approved into the rules directory, rejected)
// until an analyst decides on them.
package feedback

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"argus/core"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// CandidatePrefix starts every generated rule ID
	CandidatePrefix = "learned"
	// CandidateStatus marks generated rules until an analyst approves them
	CandidateStatus = "experimental"
	// CandidateAuthor is written into generated rule documents
	CandidateAuthor = "argus-learning"

	candidateDescription = "Automatically generated from an alert on anomalous behaviour."
)

// ErrNoCandidate is returned for alerts that carry too little to build a
// selection from
var ErrNoCandidate = errors.New("alert cannot produce a candidate rule")

// Generator builds candidate rules from alerts
type Generator struct {
	now    func() time.Time
	suffix func() string
}

// NewGenerator creates a generator using the wall clock and random ID
// suffixes
func NewGenerator() *Generator {
	return &Generator{
		now: time.Now,
		suffix: func() string {
			return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
		},
	}
}

// Candidate returns a rule matching the alert's source address and event
// type exactly. The rule is high severity and carries no frequency clause.
func (g *Generator) Candidate(alert *core.Alert) (*core.RuleDefinition, error) {
	if alert == nil {
		return nil, ErrNoCandidate
	}
	ev := alert.Event
	if ev.IP == "" || ev.EventType == "" {
		return nil, fmt.Errorf("%w: alert %s has no ip or event_type", ErrNoCandidate, alert.AlertID)
	}

	now := g.now().UTC()
	return &core.RuleDefinition{
		ID:          fmt.Sprintf("%s_%s_%s", CandidatePrefix, now.Format("20060102_150405"), g.suffix()),
		Title:       fmt.Sprintf("Auto-generated: Suspicious %s from %s", ev.EventType, ev.IP),
		Description: candidateDescription,
		Severity:    core.SeverityHigh,
		Selection: map[string]any{
			core.FieldIP:        ev.IP,
			core.FieldEventType: ev.EventType,
		},
		Status: CandidateStatus,
		Author: CandidateAuthor,
	}, nil
}

// selectionKey identifies the behaviour a candidate describes so that
// repeated alerts do not flood the review queue
func selectionKey(rule *core.RuleDefinition) string {
	parts := make([]string, 0, len(rule.Selection))
	for _, field := range rule.SelectionFields() {
		v, err := core.Canonical(rule.Selection[field])
		if err != nil {
			v = fmt.Sprint(rule.Selection[field])
		}
		parts = append(parts, field+"="+v)
	}
	return strings.Join(parts, "\x00")
}

// EncodeRule renders rule as a sigma-layout YAML document dated at
func EncodeRule(rule *core.RuleDefinition, at time.Time) ([]byte, error) {
	doc := rule.ToDocument()
	doc.Level = doc.Severity
	doc.Severity = ""
	doc.Date = at.UTC().Format("2006-01-02")
	doc.Detection = &core.DetectionDocument{Selection: doc.Selection, Condition: "selection"}
	doc.Selection = nil

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}
	return data, nil
}
