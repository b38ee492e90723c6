// Package ingest acquires raw security data and turns it into events: a
// regex line parser, file tailing and a Kafka consumer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// EventSink accepts parsed events; the detection pipeline implements it
type EventSink interface {
	Submit(ctx context.Context, event *core.Event) error
}

// CollectorConfig lists the files to follow
type CollectorConfig struct {
	Paths []string
	// FromBeginning reads existing content first instead of only new lines
	FromBeginning bool
	// Poll uses stat polling instead of inotify
	Poll bool
}

// Collector follows log files and pushes each parsed line to a sink. A
// missing file is created so that the follower starts cleanly; rotated
// files are reopened.
type Collector struct {
	cfg    CollectorConfig
	parser *Parser
	sink   EventSink
	logger *zap.SugaredLogger

	mu     sync.Mutex
	tails  []*tail.Tail
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewCollector creates a collector
func NewCollector(cfg CollectorConfig, parser *Parser, sink EventSink, logger *zap.SugaredLogger) *Collector {
	return &Collector{cfg: cfg, parser: parser, sink: sink, logger: logger}
}

// Start opens every path and begins following it
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, c.cancel = context.WithCancel(ctx)
	for _, path := range c.cfg.Paths {
		if err := ensureFile(path); err != nil {
			c.stopLocked()
			return err
		}

		loc := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
		if c.cfg.FromBeginning {
			loc = nil
		}
		t, err := tail.TailFile(path, tail.Config{
			Follow:   true,
			ReOpen:   true,
			Poll:     c.cfg.Poll,
			Location: loc,
			Logger:   tail.DiscardingLogger,
		})
		if err != nil {
			c.stopLocked()
			return fmt.Errorf("failed to follow %s: %w", path, err)
		}
		c.tails = append(c.tails, t)

		c.wg.Add(1)
		go c.follow(ctx, path, t)
		c.logger.Infow("Monitoring log file", "path", path, "from_beginning", c.cfg.FromBeginning)
	}
	c.logger.Infow("Log collector started", "files", len(c.cfg.Paths))
	return nil
}

func (c *Collector) follow(ctx context.Context, path string, t *tail.Tail) {
	defer c.wg.Done()
	defer goroutine.Recover("log-collector", c.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				c.logger.Warnw("Error reading log file", "path", path, "error", line.Err)
				continue
			}
			metrics.LinesCollected.WithLabelValues(path).Inc()
			event := c.parser.Parse(path, line.Text)
			if event == nil {
				continue
			}
			if err := c.sink.Submit(ctx, event); err != nil {
				if errors.Is(err, core.ErrEngineClosed) || errors.Is(err, context.Canceled) {
					return
				}
				c.logger.Warnw("Failed to submit event", "path", path, "error", err)
			}
		}
	}
}

// Stop stops every follower and waits for them to exit
func (c *Collector) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
	c.wg.Wait()
	c.logger.Info("Log collector stopped")
}

func (c *Collector) stopLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	for _, t := range c.tails {
		if err := t.Stop(); err != nil {
			c.logger.Debugw("Follower stop", "file", t.Filename, "error", err)
		}
		t.Cleanup()
	}
	c.tails = nil
}

func ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create log file %s: %w", path, err)
	}
	return f.Close()
}
