package feedback

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	// DefaultSeenCandidates bounds how many submitted selections the
	// reviewer remembers
	DefaultSeenCandidates = 10000
	// seenRecheckInterval is how long a remembered candidate is trusted
	// before the store is asked whether it is still pending
	seenRecheckInterval = time.Minute
)

type seenCandidate struct {
	id      string
	checked time.Time
}

// Reviewer turns alerts into candidate rules and submits them, skipping a
// candidate whose selection is already waiting for review. It is the
// dispatcher's feedback collaborator.
//
// Remembered selections are bounded by an LRU and re-verified against the
// store once they are older than a minute, so a candidate approved or
// rejected by the CLI can be proposed again.
type Reviewer struct {
	generator *Generator
	store     LifecycleStore
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu   sync.Mutex
	seen *lru.Cache[string, seenCandidate]
}

// NewReviewer creates a reviewer and seeds its duplicate check from the
// rules already pending in store
func NewReviewer(ctx context.Context, store LifecycleStore, logger *zap.SugaredLogger) (*Reviewer, error) {
	seen, err := lru.New[string, seenCandidate](DefaultSeenCandidates)
	if err != nil {
		return nil, err
	}
	r := &Reviewer{
		generator: NewGenerator(),
		store:     store,
		logger:    logger,
		now:       time.Now,
		seen:      seen,
	}
	pending, err := store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending rules: %w", err)
	}
	checked := r.now()
	for _, rule := range pending {
		r.seen.Add(selectionKey(rule), seenCandidate{id: rule.ID, checked: checked})
	}
	return r, nil
}

// SubmitForReview implements the dispatcher's feedback collaborator
func (r *Reviewer) SubmitForReview(ctx context.Context, alert *core.Alert) error {
	rule, err := r.generator.Candidate(alert)
	if errors.Is(err, ErrNoCandidate) {
		r.logger.Debugw("No candidate rule for alert", "alert_id", alert.AlertID, "reason", err)
		return nil
	}
	if err != nil {
		return err
	}

	key := selectionKey(rule)
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.seen.Get(key); ok {
		pending, err := r.stillPending(ctx, key, existing)
		if err != nil {
			return err
		}
		if pending {
			r.logger.Debugw("Candidate already submitted", "rule_id", existing.id, "alert_id", alert.AlertID)
			metrics.CandidateRules.WithLabelValues("duplicate").Inc()
			return nil
		}
		r.logger.Debugw("Previous candidate was reviewed, proposing again", "rule_id", existing.id)
	}
	id, err := r.store.Submit(ctx, rule)
	if err != nil {
		return err
	}
	r.seen.Add(key, seenCandidate{id: id, checked: r.now()})
	r.logger.Infow("Generated candidate rule", "rule_id", id, "title", rule.Title, "alert_id", alert.AlertID)
	return nil
}

// stillPending reports whether a remembered candidate is still awaiting
// review, consulting the store only when the entry is stale. Caller holds mu.
func (r *Reviewer) stillPending(ctx context.Context, key string, c seenCandidate) (bool, error) {
	now := r.now()
	if now.Sub(c.checked) < seenRecheckInterval {
		return true, nil
	}
	ids, err := r.store.ListPending(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list pending rules: %w", err)
	}
	if !slices.Contains(ids, c.id) {
		r.seen.Remove(key)
		return false, nil
	}
	c.checked = now
	r.seen.Add(key, c)
	return true, nil
}
