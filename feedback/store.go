package feedback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"argus/core"
)

// Lifecycle states stored for candidate rules
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ErrInvalidRuleID is returned for IDs that cannot name a rule file
var ErrInvalidRuleID = errors.New("invalid rule id")

// LifecycleStore keeps candidate rules between submission and an analyst
// decision. Approve and Reject report false, without error, for an ID that
// is not pending.
type LifecycleStore interface {
	Submit(ctx context.Context, rule *core.RuleDefinition) (string, error)
	Approve(ctx context.Context, id string) (bool, error)
	Reject(ctx context.Context, id string) (bool, error)
	ListPending(ctx context.Context) ([]string, error)
	Pending(ctx context.Context) ([]*core.RuleDefinition, error)
	Close() error
}

func validateRuleID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidRuleID, id)
	case strings.ContainsAny(id, `/\`), filepath.Base(id) != id:
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidRuleID, id)
	}
	return nil
}

func ruleFileName(id string) string {
	return id + ".yml"
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place so the rule loader never sees a partial document
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
