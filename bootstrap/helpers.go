package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"argus/config"

	"go.uber.org/zap"
)

// DataDirectories returns every directory the service writes into
func DataDirectories(cfg *config.Config) []string {
	dirs := []string{cfg.Rules.Dir}
	for _, p := range cfg.Collector.LogPaths {
		dirs = append(dirs, filepath.Dir(p))
	}
	if cfg.Containment.File.Enabled {
		dirs = append(dirs, filepath.Dir(cfg.Containment.File.Path))
	}
	if cfg.ML.SnapshotPath != "" {
		dirs = append(dirs, filepath.Dir(cfg.ML.SnapshotPath))
	}
	if cfg.Feedback.Enabled {
		switch cfg.Feedback.Backend {
		case config.FeedbackBackendSQLite:
			dirs = append(dirs, filepath.Dir(cfg.Feedback.SQLitePath))
		default:
			dirs = append(dirs, cfg.Feedback.PendingDir, cfg.Feedback.RejectedDir)
		}
	}
	if cfg.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(cfg.Logging.File))
	}
	return dirs
}

// EnsureDirectories creates each directory and verifies it is writable.
// This is a pre-flight check that runs before any component starts.
func EnsureDirectories(dirs []string, sugar *zap.SugaredLogger) error {
	seen := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
		}
		if seen[absPath] {
			continue
		}
		seen[absPath] = true

		if err := os.MkdirAll(absPath, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w\n"+
				"  Remediation: Ensure the parent directory exists and is writable", dir, err)
		}

		testFile := filepath.Join(absPath, ".argus_write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
			return fmt.Errorf("directory %s is not writable: %w\n"+
				"  Remediation: Check file system permissions, e.g. 'chmod -R u+w %s'", dir, err, absPath)
		}
		os.Remove(testFile)

		sugar.Debugw("Data directory ready", "path", absPath)
	}
	return nil
}

// ClassifyConnectionError turns a dial failure against service at addr into
// an operator-facing message
func ClassifyConnectionError(service string, err error, addr string) string {
	if err == nil {
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to %s at %s timed out.\n"+
			"  Remediation:\n"+
			"  - Check that %s is running and reachable\n"+
			"  - Verify firewall rules between this host and %s", service, addr, service, addr)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			(opErr.Err != nil && containsIgnoreCase(opErr.Err.Error(), "connection refused")) {
			return fmt.Sprintf("Connection refused by %s at %s.\n"+
				"  This usually means %s is not running.\n"+
				"  Remediation:\n"+
				"  - Start %s or disable it in config.yaml", service, addr, service, service)
		}
	}

	errStr := err.Error()
	if containsIgnoreCase(errStr, "no such host") || containsIgnoreCase(errStr, "lookup") {
		return fmt.Sprintf("Cannot resolve hostname in %s address %s.\n"+
			"  Remediation:\n"+
			"  - Verify the hostname is correct\n"+
			"  - Try using an IP address instead of a hostname", service, addr)
	}

	if containsIgnoreCase(errStr, "auth") || containsIgnoreCase(errStr, "password") || containsIgnoreCase(errStr, "denied") {
		return fmt.Sprintf("Authentication failed for %s at %s.\n"+
			"  Remediation:\n"+
			"  - Verify the credentials in config.yaml or the ARGUS_* environment", service, addr)
	}

	return fmt.Sprintf("Failed to connect to %s at %s: %v", service, addr, err)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
