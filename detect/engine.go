package detect

import (
	"fmt"
	"time"

	"argus/core"
	"argus/metrics"

	"go.uber.org/zap"
)

// RuleEngine evaluates events against the rule store, keeping frequency
// state in a CorrelationWindow. It is not safe for concurrent use on its
// own; the Coordinator serializes calls.
type RuleEngine struct {
	store  *RuleStore
	window *CorrelationWindow
	logger *zap.SugaredLogger
	clock  func() time.Time
}

// NewRuleEngine creates a new rule engine
func NewRuleEngine(store *RuleStore, window *CorrelationWindow, logger *zap.SugaredLogger) *RuleEngine {
	return &RuleEngine{
		store:  store,
		window: window,
		logger: logger,
		clock:  time.Now,
	}
}

// Evaluate walks the rules in load order and returns an alert for the first
// one that matches, or nil. Matching is find-first: once a rule matches no
// later rule is evaluated for this event, so later frequency rules do not
// record it either. A rule that fails to evaluate is logged and counts as a
// non-match.
func (re *RuleEngine) Evaluate(event *core.Event) *core.Alert {
	if event == nil {
		return nil
	}
	for _, rule := range re.store.rules {
		matched, err := re.evaluateRule(rule, event)
		if err != nil {
			re.logger.Warnw("Rule evaluation failed, treating as no match",
				"rule_id", rule.ID,
				"event_id", event.EventID,
				"error", err)
			metrics.RuleEvaluationErrors.WithLabelValues(rule.ID).Inc()
			continue
		}
		if matched {
			return core.NewRuleAlert(rule, event, re.clock())
		}
	}
	return nil
}

func (re *RuleEngine) evaluateRule(rule *core.RuleDefinition, event *core.Event) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("%w: rule %s panicked: %v", core.ErrMatch, rule.ID, r)
		}
	}()

	ok, err := matchSelection(rule, event)
	if err != nil || !ok {
		return false, err
	}
	if rule.Frequency == nil {
		return true, nil
	}
	return re.evaluateFrequency(rule, event)
}

// matchSelection requires every selection field to be present on the event
// with an equal canonical value
func matchSelection(rule *core.RuleDefinition, event *core.Event) (bool, error) {
	for field, expected := range rule.Selection {
		want, err := core.Canonical(expected)
		if err != nil {
			return false, fmt.Errorf("%w: rule %s selection %s: %v", core.ErrMatch, rule.ID, field, err)
		}
		actual, ok := event.Get(field)
		if !ok {
			return false, nil
		}
		got, err := core.Canonical(actual)
		if err != nil || got != want {
			return false, nil
		}
	}
	return true, nil
}

// evaluateFrequency records the event under its group key and matches when
// the trailing window, measured from the event's own timestamp, holds at
// least Threshold observations
func (re *RuleEngine) evaluateFrequency(rule *core.RuleDefinition, event *core.Event) (bool, error) {
	freq := rule.Frequency
	value, ok := event.Get(freq.GroupBy)
	if !ok {
		return false, nil
	}
	group, err := core.Canonical(value)
	if err != nil {
		return false, fmt.Errorf("%w: rule %s group_by %s: %v", core.ErrMatch, rule.ID, freq.GroupBy, err)
	}

	now := event.Timestamp
	if now.IsZero() {
		now = re.clock()
	}
	key := windowKey(rule.ID, group)
	re.window.Record(key, now, freq.Window)
	count := re.window.CountSince(key, now.Add(-freq.Window))

	re.logger.Debugw("Frequency condition evaluated",
		"rule_id", rule.ID,
		"group", group,
		"count", count,
		"threshold", freq.Threshold)
	return count >= freq.Threshold, nil
}

// windowKey scopes a group value to its rule so that two rules grouping by
// the same field keep separate counts
func windowKey(ruleID, group string) string {
	return ruleID + "\x00" + group
}
