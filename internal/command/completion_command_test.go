package command

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(NewHelpCommand(registry))
	registry.Register(NewRunCommand(nil))
	registry.Register(NewWatchCommand(nil))
	registry.Register(NewLogCommand(nil))
	registry.Register(NewCompletionCommand(registry))
	return registry
}

func TestCompletionCommand_Scripts(t *testing.T) {
	t.Parallel()
	registry := completionRegistry()

	for _, tc := range []struct {
		shell  string
		marker string
		list   string
	}{
		{"bash", "complete -F _arbiter_completion arbiter", `commands="completion help log run watch"`},
		{"zsh", "#compdef arbiter", "commands=(completion help log run watch)"},
		{"fish", "complete -c arbiter", "set -l arbiter_commands completion help log run watch"},
		{"powershell", "Register-ArgumentCompleter", "@('completion', 'help', 'log', 'run', 'watch')"},
		{"PWSH", "Register-ArgumentCompleter", "'watch'"},
	} {
		t.Run(tc.shell, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			require.NoError(t, NewCompletionCommand(registry).Execute([]string{tc.shell}, &stdout, &stderr))
			out := stdout.String()
			assert.Contains(t, out, tc.marker)
			assert.Contains(t, out, tc.list)
			assert.NotContains(t, out, "%!", "format verb leaked into script")
			assert.Zero(t, stderr.Len())
		})
	}
}

func TestCompletionCommand_DefaultsToBash(t *testing.T) {
	t.Parallel()
	var stdout bytes.Buffer
	require.NoError(t, NewCompletionCommand(completionRegistry()).Execute(nil, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "_arbiter_completion()")
	assert.Contains(t, stdout.String(), "validate schema path")
}

func TestCompletionCommand_BadArgs(t *testing.T) {
	t.Parallel()
	cmd := NewCompletionCommand(completionRegistry())

	var stdout, stderr bytes.Buffer
	err := cmd.Execute([]string{"tcsh"}, &stdout, &stderr)
	assert.EqualError(t, err, "unsupported shell: tcsh")
	assert.Contains(t, stderr.String(), "Supported shells: bash, zsh, fish, powershell")

	stderr.Reset()
	err = cmd.Execute([]string{"bash", "zsh"}, &stdout, &stderr)
	assert.EqualError(t, err, "too many arguments")
	assert.Contains(t, stderr.String(), "Usage: arbiter completion [shell]")
	assert.Zero(t, stdout.Len())
}
