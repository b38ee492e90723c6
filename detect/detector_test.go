package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"argus/core"
	"argus/util/goroutine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDetector_ProcessesAndDrains(t *testing.T) {
	goroutine.AssertNoLeaks(t)

	c, rec := newTestCoordinator(t, &stubScorer{}, mustRule(t, bruteForceRule))
	d := NewDetector(c, 10, zap.NewNop().Sugar())
	ctx := context.Background()
	d.Start(ctx)

	for s := 1; s <= 5; s++ {
		require.NoError(t, d.Submit(ctx, failedLogin("10.0.0.5", s)))
	}
	d.Stop(time.Second)

	ingested, _ := c.Counts()
	assert.Equal(t, uint64(5), ingested, "queued events are drained on stop")
	assert.Equal(t, 3, rec.count())
	assert.Equal(t, 0, d.Queued())
}

func TestDetector_SubmitAfterStop(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubScorer{})
	d := NewDetector(c, 1, zap.NewNop().Sugar())
	d.Start(context.Background())
	d.Stop(time.Second)
	d.Stop(time.Second)

	err := d.Submit(context.Background(), failedLogin("10.0.0.5", 1))
	assert.True(t, errors.Is(err, core.ErrEngineClosed))
}

func TestDetector_SubmitHonoursContext(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubScorer{})
	d := NewDetector(c, 1, zap.NewNop().Sugar())

	// not started: the queue fills after one event
	require.NoError(t, d.Submit(context.Background(), failedLogin("10.0.0.5", 1)))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Submit(ctx, failedLogin("10.0.0.5", 2)), context.DeadlineExceeded)
}
