package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`# arbiter
behaviors.file   robot.yaml
tick.interval 50ms
telemetry.db

[run]
# stop early
ticks 20
tick.interval	10ms

[watch]
history 5
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Warnings)

	assert.Equal(t, map[string]string{
		"behaviors.file": "robot.yaml",
		"tick.interval":  "50ms",
		"telemetry.db":   "",
	}, cfg.Global)

	v, ok := cfg.GetCommandOption("run", "ticks")
	assert.True(t, ok)
	assert.Equal(t, "20", v)

	v, _ = cfg.GetCommandOption("run", "tick.interval")
	assert.Equal(t, "10ms", v, "section value overrides global")
	v, _ = cfg.GetCommandOption("watch", "tick.interval")
	assert.Equal(t, "50ms", v, "falls back to global")

	_, ok = cfg.GetCommandOption("nonexistent", "option")
	assert.False(t, ok)
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("\n# only comments\n\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Global)
	assert.Empty(t, cfg.Commands)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromReader_Warnings(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`seed 1
seed 2
[]
[run
colour always
[run]
ticks many
`))
	require.NoError(t, err)

	v, _ := cfg.GetGlobalOption("seed")
	assert.Equal(t, "2", v, "later value wins")

	assert.Equal(t, []string{
		"line 2: seed already set on line 1, using the later value",
		`line 3: malformed section header "[]"`,
		`line 4: malformed section header "[run"`,
		"[run] ticks: expected int, got \"many\"",
		"unknown option colour (value: \"always\")",
	}, cfg.Warnings)
}

func TestSetOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.SetGlobalOption("seed", "7")
	cfg.SetCommandOption("run", "ticks", "3")
	cfg.SetCommandOption("", "color", "never")

	assert.Equal(t, map[string]string{"seed": "7", "color": "never"}, cfg.Global)
	assert.Equal(t, map[string]map[string]string{"run": {"ticks": "3"}}, cfg.Commands)
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFromPath(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Global)

	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte("seed 9\n"), 0o600))
	cfg, err = LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "9", cfg.Global["seed"])

	link := filepath.Join(dir, "link")
	if err := os.Symlink(path, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	_, err = LoadFromPath(link)
	assert.ErrorContains(t, err, "symlink not allowed")
}

func TestLoad_UsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte("[watch]\nhistory 3\n"), 0o600))
	t.Setenv(EnvPath, path)

	cfg, err := Load()
	require.NoError(t, err)
	v, ok := cfg.GetCommandOption("watch", "history")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	t.Setenv(EnvPath, filepath.Join(t.TempDir(), "absent"))
	cfg, err = Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Commands)
}
