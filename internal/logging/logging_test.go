package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-arbiter/internal/telemetry"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestNew_JSONFileAndCapture(t *testing.T) {
	var file bytes.Buffer
	capture := telemetry.NewLogHandler(10, slog.LevelDebug)
	logger := New(Options{Level: slog.LevelInfo, File: &file, Capture: capture})

	logger.With("unit", "A").Info("[scheduler] transition", "reason", "scored")
	logger.Debug("dropped by the file handler")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &rec))
	assert.Equal(t, "[scheduler] transition", rec["msg"])
	assert.Equal(t, "A", rec["unit"])
	assert.Equal(t, "scored", rec["reason"])

	logs := capture.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "A", logs[0].Attrs["unit"])
	assert.Equal(t, "dropped by the file handler", logs[1].Message)
}

func TestNew_TextToStderr(t *testing.T) {
	var stderr bytes.Buffer
	logger := New(Options{Level: slog.LevelWarn, Stderr: &stderr})
	logger.Info("quiet")
	logger.Warn("loud", "k", "v")
	out := stderr.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "msg=loud k=v")
}

func TestNew_Discard(t *testing.T) {
	logger := New(Options{})
	assert.False(t, logger.Enabled(t.Context(), slog.LevelError))
}

func TestRotatingFileWriter_BasicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "arbiter.log")
	w, err := NewRotatingFileWriter(path, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
	assert.Equal(t, path, w.Path())
}

func TestRotatingFileWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbiter.log")
	w, err := newRotatingFileWriter(path, 50, 2)
	require.NoError(t, err)
	defer w.Close()

	line := func(c string) []byte { return []byte(strings.Repeat(c, 39) + "\n") }
	for _, c := range []string{"A", "B", "C", "D"} {
		_, err := w.Write(line(c))
		require.NoError(t, err)
	}

	read := func(p string) string {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, string(line("D")), read(path))
	assert.Equal(t, string(line("C")), read(path+".1"))
	assert.Equal(t, string(line("B")), read(path+".2"))
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "backup beyond maxFiles should be removed")
}

func TestRotatingFileWriter_ZeroBackupsTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbiter.log")
	w, err := newRotatingFileWriter(path, 10, 0)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("12345678\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("abcdefgh\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh\n", string(data))
	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingFileWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbiter.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingFileWriter(path, 1, 1)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))

	_, err = w.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Close())
}

func TestRotatingFileWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbiter.log")
	w, err := newRotatingFileWriter(path, 200, 50)
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 20 {
				_, err := w.Write([]byte("0123456789\n"))
				assert.NoError(t, err)
			}
		})
	}
	wg.Wait()

	var total int
	for _, p := range append([]string{path}, func() []string {
		var out []string
		for _, n := range w.backups() {
			out = append(out, w.backupPath(n))
		}
		return out
	}()...) {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Zero(t, len(data)%11, "record split in %s", p)
		total += len(data)
	}
	assert.Equal(t, 8*20*11, total)
}
