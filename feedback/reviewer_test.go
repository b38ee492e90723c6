package feedback

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReviewer(t *testing.T) (*Reviewer, *DirectoryStore) {
	t.Helper()
	root := t.TempDir()
	store, err := NewDirectoryStore(filepath.Join(root, "pending"), filepath.Join(root, "rejected"), filepath.Join(root, "rules"), zap.NewNop().Sugar())
	require.NoError(t, err)
	r, err := NewReviewer(context.Background(), store, zap.NewNop().Sugar())
	require.NoError(t, err)
	return r, store
}

func TestReviewer_DeduplicatesBySelection(t *testing.T) {
	r, store := newTestReviewer(t)
	ctx := context.Background()

	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("203.0.113.9", "failed_login")))
	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("203.0.113.9", "failed_login")))
	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("203.0.113.9", "port_scan")))
	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("198.51.100.7", "failed_login")))

	ids, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestReviewer_SeedsFromPendingRules(t *testing.T) {
	r, store := newTestReviewer(t)
	ctx := context.Background()
	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("203.0.113.9", "failed_login")))

	// a restarted reviewer over the same store
	again, err := NewReviewer(ctx, store, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, again.SubmitForReview(ctx, ruleAlert("203.0.113.9", "failed_login")))

	ids, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestReviewer_AlertWithoutAddressIsIgnored(t *testing.T) {
	r, store := newTestReviewer(t)
	ctx := context.Background()

	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("", "failed_login")))

	ids, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReviewer_ReviewedSelectionCanBeProposedAgain(t *testing.T) {
	r, store := newTestReviewer(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("203.0.113.9", "failed_login")))
	ids, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	ok, err := store.Reject(ctx, ids[0])
	require.NoError(t, err)
	require.True(t, ok)

	// still trusted from memory within the recheck interval
	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("203.0.113.9", "failed_login")))
	ids, err = store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	now = now.Add(2 * seenRecheckInterval)
	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("203.0.113.9", "failed_login")))
	ids, err = store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestReviewer_PendingSelectionStaysDeduplicatedAfterRecheck(t *testing.T) {
	r, store := newTestReviewer(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("203.0.113.9", "failed_login")))
	now = now.Add(2 * seenRecheckInterval)
	require.NoError(t, r.SubmitForReview(ctx, ruleAlert("203.0.113.9", "failed_login")))

	ids, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.LessOrEqual(t, r.seen.Len(), DefaultSeenCandidates)
}
