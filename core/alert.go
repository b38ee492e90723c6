package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertKind distinguishes rule-backed alerts from model-backed ones
type AlertKind string

const (
	// AlertKindRule is produced by a matching rule
	AlertKindRule AlertKind = "rule"
	// AlertKindAnomaly is produced by the outlier model
	AlertKindAnomaly AlertKind = "anomaly"
)

const (
	// AnomalyTypeBehavioralOutlier is the only anomaly class the scorer emits
	AnomalyTypeBehavioralOutlier = "behavioral_outlier"
	// AnomalyRuleID is the synthetic rule identifier carried by anomaly alerts
	AnomalyRuleID = "anomaly:" + AnomalyTypeBehavioralOutlier

	// AlertTypeRule and AlertTypeAnomaly are the playbook alert types sent to orchestration
	AlertTypeRule    = "sigma_alert"
	AlertTypeAnomaly = "anomaly_alert"
)

// Alert is the engine's output for one triggering event. It is built once
// by NewRuleAlert or NewAnomalyAlert and must be treated as read-only by
// every consumer; the embedded event is a private copy.
type Alert struct {
	AlertID     string    `json:"alert_id"`
	Kind        AlertKind `json:"kind"`
	RuleID      string    `json:"rule_id"`
	RuleTitle   string    `json:"rule_title,omitempty"`
	AnomalyType string    `json:"anomaly_type,omitempty"`
	Severity    Severity  `json:"severity"`
	Event       Event     `json:"match"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewRuleAlert creates an alert for a rule match
func NewRuleAlert(rule *RuleDefinition, event *Event, at time.Time) *Alert {
	return &Alert{
		AlertID:     uuid.New().String(),
		Kind:        AlertKindRule,
		RuleID:      rule.ID,
		RuleTitle:   rule.Title,
		Severity:    rule.Severity,
		Event:       event.Clone(),
		Description: rule.Description,
		GeneratedAt: at.UTC(),
	}
}

// NewAnomalyAlert creates an alert for a behavioral outlier
func NewAnomalyAlert(event *Event, confidence float64, severity Severity, at time.Time) *Alert {
	return &Alert{
		AlertID:     uuid.New().String(),
		Kind:        AlertKindAnomaly,
		RuleID:      AnomalyRuleID,
		AnomalyType: AnomalyTypeBehavioralOutlier,
		Severity:    severity,
		Event:       event.Clone(),
		Description: fmt.Sprintf("Behavioral outlier detected (confidence %.3f)", confidence),
		Confidence:  confidence,
		GeneratedAt: at.UTC(),
	}
}

// Title returns the rule title, or the anomaly type for anomaly alerts
func (a *Alert) Title() string {
	if a.Kind == AlertKindAnomaly {
		return a.AnomalyType
	}
	return a.RuleTitle
}

// AlertType is the playbook type passed to orchestration
func (a *Alert) AlertType() string {
	if a.Kind == AlertKindAnomaly {
		return AlertTypeAnomaly
	}
	return AlertTypeRule
}

// Details summarises the alert for orchestration payloads
func (a *Alert) Details() string {
	raw := a.Event.Raw
	if raw == "" {
		raw = "No raw log"
	}
	return fmt.Sprintf("%s: %s", a.Title(), raw)
}

// IP returns the source address of the triggering event, if any
func (a *Alert) IP() string {
	return a.Event.IP
}
