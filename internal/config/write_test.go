package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOption(t *testing.T) {
	for _, tc := range []struct {
		name     string
		initial  string
		section  string
		key      string
		value    string
		expected string
	}{
		{
			name:     "new file",
			key:      "seed",
			value:    "3",
			expected: "seed 3\n",
		},
		{
			name:     "replace global in place",
			initial:  "# header\nseed 1\ncolor auto\n",
			key:      "seed",
			value:    "2",
			expected: "# header\nseed 2\ncolor auto\n",
		},
		{
			name:     "append after last global option",
			initial:  "seed 1\n\n[run]\nticks 5\n",
			key:      "color",
			value:    "never",
			expected: "seed 1\ncolor never\n\n[run]\nticks 5\n",
		},
		{
			name:     "global block with only comments",
			initial:  "# arbiter\n\n[run]\nticks 5\n",
			key:      "seed",
			value:    "4",
			expected: "# arbiter\nseed 4\n\n[run]\nticks 5\n",
		},
		{
			name:     "section key is not a global match",
			initial:  "seed 1\n[run]\ntick.interval 1s\n",
			key:      "tick.interval",
			value:    "5s",
			expected: "seed 1\ntick.interval 5s\n[run]\ntick.interval 1s\n",
		},
		{
			name:     "replace in section",
			initial:  "seed 1\n[run]\nticks 5\nquiet true\n[watch]\nhistory 3\n",
			section:  "run",
			key:      "ticks",
			value:    "9",
			expected: "seed 1\n[run]\nticks 9\nquiet true\n[watch]\nhistory 3\n",
		},
		{
			name:     "insert in section",
			initial:  "[run]\nticks 5\n\n[watch]\nhistory 3\n",
			section:  "run",
			key:      "quiet",
			value:    "true",
			expected: "[run]\nticks 5\nquiet true\n\n[watch]\nhistory 3\n",
		},
		{
			name:     "missing section is appended",
			initial:  "seed 1\n",
			section:  "watch",
			key:      "history",
			value:    "20",
			expected: "seed 1\n\n[watch]\nhistory 20\n",
		},
		{
			name:     "empty value",
			initial:  "telemetry.db arbiter.db\n",
			key:      "telemetry.db",
			expected: "telemetry.db\n",
		},
		{
			name:     "value with spaces",
			key:      "behaviors.file",
			value:    "my robot.yaml",
			expected: "behaviors.file my robot.yaml\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config")
			if tc.initial != "" {
				require.NoError(t, os.WriteFile(path, []byte(tc.initial), 0o600))
			}
			require.NoError(t, SetOption(path, tc.section, tc.key, tc.value))
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(data))
		})
	}
}

func TestSetOption_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config")
	require.NoError(t, SetOption(path, "", "seed", "1"))
	require.NoError(t, SetOption(path, "run", "ticks", "10"))
	require.NoError(t, SetOption(path, "", "behaviors.file", "robot.yaml"))
	require.NoError(t, SetOption(path, "run", "ticks", "11"))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, map[string]string{"seed": "1", "behaviors.file": "robot.yaml"}, cfg.Global)
	v, _ := cfg.GetCommandOption("run", "ticks")
	assert.Equal(t, "11", v)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	require.NoError(t, WriteFileAtomic(path, []byte("new"), 0o644))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")

	err = WriteFileAtomic(filepath.Join(dir, "missing", "config"), nil, 0o644)
	assert.ErrorContains(t, err, "creating temp file")
}
