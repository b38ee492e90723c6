package soar

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"argus/core"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileBlocklist_AppendsOncePerAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "blocked_ips.txt")
	b, err := NewFileBlocklist(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	require.NoError(t, b.Block(ctx, "203.0.113.9", "SSH brute force"))
	require.NoError(t, b.Block(ctx, "203.0.113.9", "SSH brute force"))
	require.NoError(t, b.Block(ctx, "198.51.100.7", "multi\nline"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2026-03-01 12:00:00 | BLOCKED | 203.0.113.9 | SSH brute force", lines[0])
	assert.Equal(t, "2026-03-01 12:00:00 | BLOCKED | 198.51.100.7 | multi line", lines[1])

	entries, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "203.0.113.9", entries[0].IP)
	assert.Equal(t, "SSH brute force", entries[0].Reason)
}

func TestFileBlocklist_ReloadsExistingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocked_ips.txt")
	require.NoError(t, os.WriteFile(path, []byte("2026-03-01 12:00:00 | BLOCKED | 203.0.113.9 | old\nnoise\n"), 0o600))

	b, err := NewFileBlocklist(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, b.Block(context.Background(), "203.0.113.9", "again"))

	entries, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "old", entries[0].Reason)
}

func TestFileBlocklist_ListMissingFile(t *testing.T) {
	b, err := NewFileBlocklist(filepath.Join(t.TempDir(), "none.txt"), zap.NewNop().Sugar())
	require.NoError(t, err)

	entries, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func newTestRedisBlocklist(t *testing.T, ttl time.Duration) (*RedisBlocklist, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cache := core.NewRedisCache(mr.Addr(), "", 0, 4, zap.NewNop().Sugar())
	t.Cleanup(func() { _ = cache.Close() })
	return NewRedisBlocklist(cache, ttl, zap.NewNop().Sugar()), mr
}

func TestRedisBlocklist_BlockAndList(t *testing.T) {
	b, mr := newTestRedisBlocklist(t, time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }
	require.NoError(t, b.Block(ctx, "203.0.113.9", "SSH brute force"))
	b.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, b.Block(ctx, "198.51.100.7", "anomaly"))
	// second block of the same address keeps the first record
	require.NoError(t, b.Block(ctx, "203.0.113.9", "later"))

	assert.True(t, mr.Exists(RedisBlockKeyPrefix+"203.0.113.9"))
	assert.Equal(t, time.Hour, mr.TTL(RedisBlockKeyPrefix+"203.0.113.9"))

	entries, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "203.0.113.9", entries[0].IP)
	assert.Equal(t, "SSH brute force", entries[0].Reason)
	assert.Equal(t, "198.51.100.7", entries[1].IP)
}

func TestRedisBlocklist_EntriesExpire(t *testing.T) {
	b, mr := newTestRedisBlocklist(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, b.Block(ctx, "203.0.113.9", "x"))
	mr.FastForward(2 * time.Minute)

	entries, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRedisBlocklist_ServerDown(t *testing.T) {
	b, mr := newTestRedisBlocklist(t, 0)
	mr.Close()

	err := b.Block(context.Background(), "203.0.113.9", "x")
	assert.Error(t, err)
}
