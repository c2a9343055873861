// Package logging builds the process logger: JSON records to a rotating file
// or text records to stderr, optionally teed into an in-memory capture
// handler for the live view.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps debug, info, warn and error (case-insensitive) to a
// slog.Level. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// Options configures New.
type Options struct {
	Level slog.Level
	// File receives JSON records. When nil, text records go to Stderr.
	File   io.Writer
	Stderr io.Writer
	// Capture, if set, also receives every record.
	Capture slog.Handler
}

// New returns a logger for opts.
func New(opts Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: opts.Level}
	var primary slog.Handler
	switch {
	case opts.File != nil:
		primary = slog.NewJSONHandler(opts.File, ho)
	case opts.Stderr != nil:
		primary = slog.NewTextHandler(opts.Stderr, ho)
	}
	switch {
	case primary == nil && opts.Capture == nil:
		return slog.New(slog.DiscardHandler)
	case primary == nil:
		return slog.New(opts.Capture)
	case opts.Capture == nil:
		return slog.New(primary)
	default:
		return slog.New(Tee(primary, opts.Capture))
	}
}

// Tee returns a handler that passes every record to each of handlers that
// is enabled for its level.
func Tee(handlers ...slog.Handler) slog.Handler {
	return tee(handlers)
}

type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
