package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*core.Event
	err    error
}

func (s *recordingSink) Submit(_ context.Context, ev *core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) snapshot() []*core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.Event(nil), s.events...)
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestCollector_FollowsNewLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "auth.log")
	sink := &recordingSink{}
	c := NewCollector(CollectorConfig{Paths: []string{path}, FromBeginning: true, Poll: true}, newDefaultParser(t), sink, zap.NewNop().Sugar())

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	// created on start
	_, err := os.Stat(path)
	require.NoError(t, err)

	appendLine(t, path, "Mar  1 10:15:02 bastion sshd[4242]: Failed password for root from 203.0.113.9 port 52211 ssh2")
	appendLine(t, path, "")
	appendLine(t, path, "free text")

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, 5*time.Second, 20*time.Millisecond)
	events := sink.snapshot()
	assert.Equal(t, "failed_login", events[0].EventType)
	assert.Equal(t, path, events[0].Source)
	assert.Equal(t, UnknownEventType, events[1].EventType)
}

func TestCollector_ReadsExistingContentFromBeginning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	require.NoError(t, os.WriteFile(path, []byte("old line\n"), 0o600))

	sink := &recordingSink{}
	c := NewCollector(CollectorConfig{Paths: []string{path}, FromBeginning: true, Poll: true}, newDefaultParser(t), sink, zap.NewNop().Sugar())
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "old line", sink.snapshot()[0].Raw)
}

func TestCollector_StopsWhenEngineClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	sink := &recordingSink{err: core.ErrEngineClosed}
	c := NewCollector(CollectorConfig{Paths: []string{path}, FromBeginning: true, Poll: true}, newDefaultParser(t), sink, zap.NewNop().Sugar())
	require.NoError(t, c.Start(context.Background()))

	appendLine(t, path, "free text")

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}
}
