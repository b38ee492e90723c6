package feedback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"argus/core"
	"argus/detect"
	"argus/metrics"

	"go.uber.org/zap"
)

// DirectoryStore keeps candidates as YAML files: pending ones in
// pendingDir, rejected ones in rejectedDir. Approving moves the file into
// the active rules directory, where the next rule load picks it up.
type DirectoryStore struct {
	pendingDir  string
	rejectedDir string
	rulesDir    string
	logger      *zap.SugaredLogger
	now         func() time.Time
	mu          sync.Mutex
}

// NewDirectoryStore creates the directories as needed
func NewDirectoryStore(pendingDir, rejectedDir, rulesDir string, logger *zap.SugaredLogger) (*DirectoryStore, error) {
	for _, dir := range []string{pendingDir, rejectedDir, rulesDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &DirectoryStore{
		pendingDir:  pendingDir,
		rejectedDir: rejectedDir,
		rulesDir:    rulesDir,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Submit writes rule into the pending directory
func (s *DirectoryStore) Submit(_ context.Context, rule *core.RuleDefinition) (string, error) {
	if err := validateRuleID(rule.ID); err != nil {
		return "", err
	}
	data, err := EncodeRule(rule, s.now())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.pendingDir, ruleFileName(rule.ID))
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write candidate %s: %w", rule.ID, err)
	}
	s.logger.Infow("Rule submitted for review", "rule_id", rule.ID, "path", path)
	metrics.CandidateRules.WithLabelValues(StatusPending).Inc()
	return rule.ID, nil
}

// Approve moves a pending rule into the rules directory
func (s *DirectoryStore) Approve(_ context.Context, id string) (bool, error) {
	ok, err := s.move(id, s.rulesDir)
	if ok {
		s.logger.Infow("Rule approved and activated", "rule_id", id)
		metrics.CandidateRules.WithLabelValues(StatusApproved).Inc()
	}
	return ok, err
}

// Reject moves a pending rule into the rejected directory
func (s *DirectoryStore) Reject(_ context.Context, id string) (bool, error) {
	ok, err := s.move(id, s.rejectedDir)
	if ok {
		s.logger.Warnw("Rule rejected", "rule_id", id)
		metrics.CandidateRules.WithLabelValues(StatusRejected).Inc()
	}
	return ok, err
}

func (s *DirectoryStore) move(id, dstDir string) (bool, error) {
	if err := validateRuleID(id); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := filepath.Join(s.pendingDir, ruleFileName(id))
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		s.logger.Warnw("Rule not pending", "rule_id", id)
		return false, nil
	} else if err != nil {
		return false, err
	}

	dst := filepath.Join(dstDir, ruleFileName(id))
	if err := os.Rename(src, dst); err != nil {
		// rename fails across filesystems; fall back to copy and remove
		data, rerr := os.ReadFile(src)
		if rerr != nil {
			return false, fmt.Errorf("failed to move rule %s: %w", id, err)
		}
		if werr := writeFileAtomic(dst, data); werr != nil {
			return false, fmt.Errorf("failed to move rule %s: %w", id, werr)
		}
		if rerr := os.Remove(src); rerr != nil {
			return false, fmt.Errorf("failed to remove pending rule %s: %w", id, rerr)
		}
	}
	return true, nil
}

// ListPending returns the IDs of pending rules in name order
func (s *DirectoryStore) ListPending(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rules: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".yml" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".yml"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Pending returns the parsed pending rules. Files that no longer parse are
// logged and left out.
func (s *DirectoryStore) Pending(ctx context.Context) ([]*core.RuleDefinition, error) {
	ids, err := s.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	rules := make([]*core.RuleDefinition, 0, len(ids))
	for _, id := range ids {
		data, err := os.ReadFile(filepath.Join(s.pendingDir, ruleFileName(id)))
		if err != nil {
			// decided between listing and reading
			continue
		}
		rule, err := detect.ParseRuleDocument(data)
		if err != nil {
			s.logger.Warnw("Pending rule does not parse", "rule_id", id, "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Close implements LifecycleStore
func (s *DirectoryStore) Close() error { return nil }
