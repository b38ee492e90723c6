package detect

import (
	"argus/core"
	"argus/metrics"

	"go.uber.org/zap"
)

// RuleStore holds the rule set for one process lifetime. It is never
// mutated after construction, so it is shared without locking; reloading
// means building a new store.
type RuleStore struct {
	source string
	rules  []*core.RuleDefinition
	byID   map[string]*core.RuleDefinition
}

// LoadRuleStore loads dir into a new store. Skipped documents are logged as
// warnings; only an unreachable directory fails.
func LoadRuleStore(dir string, logger *zap.SugaredLogger) (*RuleStore, error) {
	report, err := ScanRules(dir)
	if err != nil {
		return nil, err
	}

	for _, s := range report.Skipped {
		logger.Warnw("Skipping rule document",
			"file", s.File,
			"document", s.Index,
			"rule_id", s.RuleID,
			"reason", s.Reason)
		metrics.RulesSkipped.WithLabelValues(skipReason(s)).Inc()
	}

	store := newRuleStore(dir, report.Rules)
	metrics.RulesLoaded.Set(float64(store.Len()))
	logger.Infow("Loaded rules", "dir", dir, "files", report.Files, "rules", store.Len(), "skipped", len(report.Skipped))
	return store, nil
}

// NewRuleStore builds a store from rules already in memory, keeping the
// first rule for each ID
func NewRuleStore(rules ...*core.RuleDefinition) *RuleStore {
	return newRuleStore("memory", rules)
}

func newRuleStore(source string, rules []*core.RuleDefinition) *RuleStore {
	s := &RuleStore{
		source: source,
		rules:  make([]*core.RuleDefinition, 0, len(rules)),
		byID:   make(map[string]*core.RuleDefinition, len(rules)),
	}
	for _, r := range rules {
		if r == nil {
			continue
		}
		if _, dup := s.byID[r.ID]; dup {
			continue
		}
		s.byID[r.ID] = r
		s.rules = append(s.rules, r)
	}
	return s
}

// Rules returns the rules in load order, which is also match priority
func (s *RuleStore) Rules() []*core.RuleDefinition {
	out := make([]*core.RuleDefinition, len(s.rules))
	copy(out, s.rules)
	return out
}

// Get returns the rule with the given ID
func (s *RuleStore) Get(id string) (*core.RuleDefinition, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Len returns the number of rules
func (s *RuleStore) Len() int {
	return len(s.rules)
}

// Source returns where the rules were loaded from
func (s *RuleStore) Source() string {
	return s.source
}

func skipReason(s SkippedDocument) string {
	if s.Duplicate {
		return "duplicate"
	}
	return "invalid"
}
