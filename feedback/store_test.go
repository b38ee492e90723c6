package feedback

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"argus/core"
	"argus/detect"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storeFactory func(t *testing.T, rulesDir string) LifecycleStore

func lifecycleStores() map[string]storeFactory {
	return map[string]storeFactory{
		"directory": func(t *testing.T, rulesDir string) LifecycleStore {
			root := t.TempDir()
			s, err := NewDirectoryStore(filepath.Join(root, "pending"), filepath.Join(root, "rejected"), rulesDir, zap.NewNop().Sugar())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T, rulesDir string) LifecycleStore {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "candidates.db"), rulesDir, zap.NewNop().Sugar())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func candidate(t *testing.T, id, ip string) *core.RuleDefinition {
	t.Helper()
	rule, err := fixedGenerator().Candidate(ruleAlert(ip, "failed_login"))
	require.NoError(t, err)
	rule.ID = id
	return rule
}

func TestLifecycleStore_SubmitAndList(t *testing.T) {
	for name, factory := range lifecycleStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, t.TempDir())

			id, err := s.Submit(ctx, candidate(t, "learned_a", "203.0.113.1"))
			require.NoError(t, err)
			assert.Equal(t, "learned_a", id)
			_, err = s.Submit(ctx, candidate(t, "learned_b", "203.0.113.2"))
			require.NoError(t, err)

			ids, err := s.ListPending(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"learned_a", "learned_b"}, ids)

			rules, err := s.Pending(ctx)
			require.NoError(t, err)
			require.Len(t, rules, 2)
			assert.Equal(t, "203.0.113.1", rules[0].Selection["ip"])
		})
	}
}

func TestLifecycleStore_ApproveActivatesRule(t *testing.T) {
	for name, factory := range lifecycleStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rulesDir := t.TempDir()
			s := factory(t, rulesDir)

			_, err := s.Submit(ctx, candidate(t, "learned_a", "203.0.113.1"))
			require.NoError(t, err)

			ok, err := s.Approve(ctx, "learned_a")
			require.NoError(t, err)
			assert.True(t, ok)

			ids, err := s.ListPending(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)

			store, err := detect.LoadRuleStore(rulesDir, zap.NewNop().Sugar())
			require.NoError(t, err)
			rule, found := store.Get("learned_a")
			require.True(t, found)
			assert.Equal(t, core.SeverityHigh, rule.Severity)

			// a decided rule cannot be decided again
			ok, err = s.Approve(ctx, "learned_a")
			require.NoError(t, err)
			assert.False(t, ok)
			ok, err = s.Reject(ctx, "learned_a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLifecycleStore_RejectKeepsRuleOutOfRulesDir(t *testing.T) {
	for name, factory := range lifecycleStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rulesDir := t.TempDir()
			s := factory(t, rulesDir)

			_, err := s.Submit(ctx, candidate(t, "learned_a", "203.0.113.1"))
			require.NoError(t, err)

			ok, err := s.Reject(ctx, "learned_a")
			require.NoError(t, err)
			assert.True(t, ok)

			_, err = os.Stat(filepath.Join(rulesDir, "learned_a.yml"))
			assert.True(t, os.IsNotExist(err))
			ids, err := s.ListPending(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestLifecycleStore_UnknownIDIsFalse(t *testing.T) {
	for name, factory := range lifecycleStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, t.TempDir())

			ok, err := s.Approve(ctx, "learned_missing")
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = s.Reject(ctx, "learned_missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLifecycleStore_RejectsPathLikeIDs(t *testing.T) {
	for name, factory := range lifecycleStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, t.TempDir())

			_, err := s.Submit(ctx, candidate(t, "../escape", "203.0.113.1"))
			assert.ErrorIs(t, err, ErrInvalidRuleID)

			_, err = s.Approve(ctx, "a/b")
			assert.ErrorIs(t, err, ErrInvalidRuleID)
		})
	}
}

func TestSQLiteStore_Status(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "c.db"), t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Submit(ctx, candidate(t, "learned_a", "203.0.113.1"))
	require.NoError(t, err)
	_, err = s.Reject(ctx, "learned_a")
	require.NoError(t, err)

	status, found, err := s.Status(ctx, "learned_a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, StatusRejected, status)

	// resubmitting a decided ID leaves it decided
	_, err = s.Submit(ctx, candidate(t, "learned_a", "203.0.113.1"))
	require.NoError(t, err)
	status, _, err = s.Status(ctx, "learned_a")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, status)

	_, found, err = s.Status(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}
