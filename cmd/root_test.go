package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ServesWithConfig(t *testing.T) {
	var gotConfig string
	served := false
	root := NewRootCmd(func(_ context.Context, configFile string) error {
		served = true
		gotConfig = configFile
		return nil
	})
	root.SetArgs([]string{"--config", "/etc/argus/config.yaml"})

	require.NoError(t, root.Execute())
	assert.True(t, served)
	assert.Equal(t, "/etc/argus/config.yaml", gotConfig)
}

func TestRootCmd_ServeErrorIsReturned(t *testing.T) {
	boom := errors.New("bind: address already in use")
	root := NewRootCmd(func(context.Context, string) error { return boom })
	root.SetArgs(nil)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.ErrorIs(t, root.Execute(), boom)
}

func TestRootCmd_RulesSubcommand(t *testing.T) {
	served := false
	root := NewRootCmd(func(context.Context, string) error {
		served = true
		return nil
	})
	require.NotNil(t, findCommand(root, "rules"))

	ws := newWorkspace(t)
	ws.write(t, ws.rulesDir, "ssh.yml", validRule)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"rules", "validate", ws.rulesDir, "--no-color"})

	require.NoError(t, root.Execute())
	assert.False(t, served)
	assert.Contains(t, out.String(), "ssh_bruteforce")
}

func TestRootCmd_RejectsPositionalArgs(t *testing.T) {
	root := NewRootCmd(func(context.Context, string) error { return nil })
	root.SetArgs([]string{"serve-now"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}
