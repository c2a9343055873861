package command

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCommand struct {
	*BaseCommand
	calls int
}

func newStubCommand(name, description string) *stubCommand {
	return &stubCommand{BaseCommand: NewBaseCommand(name, description, name+" [args]")}
}

func (c *stubCommand) Execute([]string, io.Writer, io.Writer) error {
	c.calls++
	return nil
}

func TestRegistry_GetRegistered(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	registry.Register(newStubCommand("simulate", "Pretend to run"))

	cmd, err := registry.Get("simulate")
	require.NoError(t, err)
	assert.Equal(t, "simulate", cmd.Name())
	assert.Equal(t, "Pretend to run", cmd.Description())
	assert.Equal(t, "simulate [args]", cmd.Usage())

	_, err = registry.Get("reticulate")
	assert.EqualError(t, err, "command not found: reticulate")
}

func TestRegistry_ListIsSortedAndDeduplicated(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	assert.Empty(t, registry.List())

	for _, name := range []string{"watch", "run", "help", "validate"} {
		registry.Register(newStubCommand(name, ""))
	}
	later := newStubCommand("run", "again")
	registry.Register(later)

	assert.Equal(t, []string{"help", "run", "validate", "watch"}, registry.List())

	cmd, err := registry.Get("run")
	require.NoError(t, err)
	require.NoError(t, cmd.Execute(nil, io.Discard, io.Discard))
	if later.calls != 1 {
		t.Fatalf("expected the later registration to handle run, calls=%d", later.calls)
	}
}
