package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeRules writes name -> YAML pairs into a fresh rules directory
func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

const bruteForceRule = `
id: r1
title: Brute force login
severity: high
description: Repeated failed logins from one address
selection:
  event_type: failed_login
frequency:
  window_duration: 60s
  threshold: 3
  group_by: ip
`

const sshRootRule = `
id: r2
title: Root SSH login
severity: critical
selection:
  event_type: ssh_login
  user: root
`
