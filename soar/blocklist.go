package soar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// blocklistTimeLayout is the timestamp layout of blocklist file lines
const blocklistTimeLayout = "2006-01-02 15:04:05"

// FileBlocklist appends blocked addresses to a local file, one line per
// address: "<time> | BLOCKED | <ip> | <reason>". An address already in the
// file is not written again.
type FileBlocklist struct {
	path   string
	mu     sync.Mutex
	seen   map[string]struct{}
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewFileBlocklist opens path, creating its directory, and loads the
// addresses already recorded
func NewFileBlocklist(path string, logger *zap.SugaredLogger) (*FileBlocklist, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blocklist directory: %w", err)
	}
	b := &FileBlocklist{
		path:   path,
		seen:   make(map[string]struct{}),
		logger: logger,
		now:    time.Now,
	}
	entries, err := b.read()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		b.seen[e.IP] = struct{}{}
	}
	return b, nil
}

// Block implements Containment
func (b *FileBlocklist) Block(_ context.Context, ip, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[ip]; ok {
		b.logger.Debugw("Address already blocked", "ip", ip)
		return nil
	}

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open blocklist: %w", err)
	}
	defer f.Close()

	reason = strings.ReplaceAll(reason, "\n", " ")
	line := fmt.Sprintf("%s | BLOCKED | %s | %s\n", b.now().UTC().Format(blocklistTimeLayout), ip, reason)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to write blocklist: %w", err)
	}
	b.seen[ip] = struct{}{}
	b.logger.Errorw("Address blocked", "ip", ip, "reason", reason)
	return nil
}

// List implements BlocklistReader
func (b *FileBlocklist) List(_ context.Context) ([]BlockedIP, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read()
}

func (b *FileBlocklist) read() ([]BlockedIP, error) {
	f, err := os.Open(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blocklist: %w", err)
	}
	defer f.Close()

	var out []BlockedIP
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), " | ", 4)
		if len(parts) != 4 || parts[1] != "BLOCKED" {
			continue
		}
		ts, _ := time.Parse(blocklistTimeLayout, parts[0])
		out = append(out, BlockedIP{IP: parts[2], Reason: parts[3], BlockedAt: ts})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blocklist: %w", err)
	}
	return out, nil
}
