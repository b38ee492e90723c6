package bootstrap

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"argus/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	dirs := []string{
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "a"),
	}

	require.NoError(t, EnsureDirectories(dirs, zap.NewNop().Sugar()))
	for _, d := range dirs {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		_, err = os.Stat(filepath.Join(d, ".argus_write_test"))
		assert.True(t, os.IsNotExist(err), "write check file should be removed")
	}
}

func TestEnsureDirectories_FileInTheWay(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := EnsureDirectories([]string{filepath.Join(blocker, "sub")}, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Remediation")
}

func TestDataDirectories(t *testing.T) {
	cfg := &config.Config{}
	cfg.Rules.Dir = "rules"
	cfg.Collector.LogPaths = []string{"logs/auth.log", "/var/log/nginx/access.log"}
	cfg.Containment.File.Enabled = true
	cfg.Containment.File.Path = "state/blocked.txt"
	cfg.ML.SnapshotPath = "data/training.msgpack"
	cfg.Feedback.Enabled = true
	cfg.Feedback.Backend = config.FeedbackBackendDirectory
	cfg.Feedback.PendingDir = "rules/pending"
	cfg.Feedback.RejectedDir = "rules/rejected"

	assert.Equal(t, []string{
		"rules", "logs", "/var/log/nginx", "state", "data", "rules/pending", "rules/rejected",
	}, DataDirectories(cfg))

	cfg.Feedback.Backend = config.FeedbackBackendSQLite
	cfg.Feedback.SQLitePath = "db/argus.db"
	cfg.Containment.File.Enabled = false
	cfg.Logging.File = "var/argus.log"

	assert.Equal(t, []string{
		"rules", "logs", "/var/log/nginx", "data", "db", "var",
	}, DataDirectories(cfg))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"timeout", timeoutErr{}, "timed out"},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, "Connection refused"},
		{"dns", errors.New("dial tcp: lookup redis.internal: no such host"), "Cannot resolve hostname"},
		{"auth", errors.New("WRONGPASS invalid username-password pair"), "Authentication failed"},
		{"other", errors.New("boom"), "Failed to connect to Redis at localhost:6379: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyConnectionError("Redis", tt.err, "localhost:6379")
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	assert.True(t, containsIgnoreCase("Connection REFUSED", "refused"))
	assert.False(t, containsIgnoreCase("ok", "refused"))
}
