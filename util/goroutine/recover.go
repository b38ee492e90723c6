// Package goroutine holds panic-safety helpers for background workers.
package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// StackTraceBufferSize is the buffer size for stack trace collection
const StackTraceBufferSize = 4096

// Recover must be deferred at the top of a goroutine. It logs the panic
// value and stack instead of crashing the process; with a nil logger the
// report goes to stderr.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		report(name, r, logger)
	}
}

// Go runs fn on a new goroutine guarded by Recover
func Go(name string, logger *zap.SugaredLogger, fn func()) {
	go func() {
		defer Recover(name, logger)
		fn()
	}()
}

// Safely calls fn and converts a panic into an error wrapping sentinel.
// The panic is also logged with its stack.
func Safely(name string, logger *zap.SugaredLogger, sentinel error, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			report(name, r, logger)
			err = fmt.Errorf("%w: %s panicked: %v", sentinel, name, r)
		}
	}()
	return fn()
}

func report(name string, r any, logger *zap.SugaredLogger) {
	buf := make([]byte, StackTraceBufferSize)
	n := runtime.Stack(buf, false)

	if logger != nil {
		logger.Errorw("Goroutine panic recovered",
			"goroutine", name,
			"panic", r,
			"stack", string(buf[:n]))
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n", name, r, string(buf[:n]))
}
