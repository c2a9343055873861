package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath_EnvOverride(t *testing.T) {
	want := filepath.Join(t.TempDir(), "custom")
	t.Setenv(EnvPath, want)
	got, err := Path()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPath_Default(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvPath, "")
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	got, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".arbiter", "config"), got)
}

func TestEnsureDir(t *testing.T) {
	want := filepath.Join(t.TempDir(), "nested", "dir", "config")
	t.Setenv(EnvPath, want)

	got, err := EnsureDir()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	info, err := os.Stat(filepath.Dir(want))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureDir_ParentIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	t.Setenv(EnvPath, filepath.Join(file, "config"))

	_, err := EnsureDir()
	assert.ErrorContains(t, err, "failed to create config directory")
}
