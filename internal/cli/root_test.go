package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with the given arguments and returns the
// combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	out, err := runCLI(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"get", "set", "del", "pop", "keys", "items", "count", "age", "clear", "stats", "exec"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := runCLI(t, "count", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_UnknownCommand(t *testing.T) {
	_, err := runCLI(t, "frobnicate")
	assert.Error(t, err)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}
