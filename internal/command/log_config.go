package command

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joeycumines/go-arbiter/internal/config"
	"github.com/joeycumines/go-arbiter/internal/logging"
)

// logConfig holds resolved logging configuration for commands that run a
// scheduler.
type logConfig struct {
	level      slog.Level
	logFile    io.WriteCloser // nil if no file logging
	bufferSize int
}

// resolveLogConfig resolves log configuration from flags and config defaults.
// Flag values take precedence; config values are used when flags have their
// zero/default value. The caller must Close() the returned logConfig.logFile
// when done (if non-nil).
func resolveLogConfig(flagPath, flagLevel string, flagBufferSize int, cfg *config.Config) (logConfig, error) {
	schema := config.DefaultSchema()
	var lc logConfig

	// Flag, then env or config, then the schema default.
	levelStr := flagLevel
	if levelStr == "" || levelStr == "info" {
		levelStr = schema.Resolve(cfg, "log.level")
	}
	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		return lc, err
	}
	lc.level = level

	lc.bufferSize = flagBufferSize
	if lc.bufferSize <= 0 {
		lc.bufferSize, err = schema.ResolveInt(cfg, "log.buffer-size")
		if err != nil {
			return lc, err
		}
		if lc.bufferSize <= 0 {
			lc.bufferSize = 1000
		}
	}

	logPath := flagPath
	if logPath == "" {
		logPath = schema.Resolve(cfg, "log.file")
	}
	if logPath == "" {
		return lc, nil
	}

	maxSizeMB, err := schema.ResolveInt(cfg, "log.max-size-mb")
	if err != nil {
		return lc, err
	}
	// Zero backups is valid and truncates on rotation.
	maxFiles, err := schema.ResolveInt(cfg, "log.max-files")
	if err != nil {
		return lc, err
	}
	w, err := logging.NewRotatingFileWriter(logPath, max(maxSizeMB, 1), max(maxFiles, 0))
	if err != nil {
		return lc, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	lc.logFile = w
	return lc, nil
}

// logger builds the process logger. Without a log file, records go to
// stderr as text. capture may be nil.
func (lc logConfig) logger(stderr io.Writer, capture slog.Handler) *slog.Logger {
	opts := logging.Options{Level: lc.level, Capture: capture}
	if lc.logFile != nil {
		opts.File = lc.logFile
	} else {
		opts.Stderr = stderr
	}
	return logging.New(opts)
}

func (lc logConfig) Close() error {
	if lc.logFile == nil {
		return nil
	}
	return lc.logFile.Close()
}
