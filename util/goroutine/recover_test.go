package goroutine

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestRecoverLogsPanic tests that a recovered panic is logged with its stack
func TestRecoverLogsPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	func() {
		defer Recover("worker", logger)
		panic("test panic message")
	}()

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "worker", fields["goroutine"])
	assert.Equal(t, "test panic message", fields["panic"])
	assert.Contains(t, fields, "stack")
}

// TestRecoverNoPanic tests that nothing is logged without a panic
func TestRecoverNoPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	func() {
		defer Recover("worker", logger)
	}()

	assert.Empty(t, logs.All())
}

// TestRecoverNilLogger tests the stderr fallback
func TestRecoverNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		defer Recover("worker", nil)
		panic("no logger")
	})
}

// TestGo tests that Go contains panics in the spawned goroutine
func TestGo(t *testing.T) {
	AssertNoLeaks(t)

	var wg sync.WaitGroup
	wg.Add(1)
	Go("panicky", zap.NewNop().Sugar(), func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()
}

// TestSafely tests panic-to-error conversion
func TestSafely(t *testing.T) {
	sentinel := errors.New("sentinel")
	logger := zap.NewNop().Sugar()

	err := Safely("ok", logger, sentinel, func() error { return nil })
	assert.NoError(t, err)

	plain := errors.New("plain")
	err = Safely("fails", logger, sentinel, func() error { return plain })
	assert.ErrorIs(t, err, plain)

	err = Safely("panics", logger, sentinel, func() error { panic("kaboom") })
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "kaboom")
}
