package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single captured log record.
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Level   slog.Level        `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs"`
}

// logBuffer is shared by a LogHandler and every handler derived from it.
type logBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	maxSize int
}

// LogHandler is a slog.Handler that keeps recent records in memory, for the
// watch view and for asserting on scheduler diagnostics in tests.
type LogHandler struct {
	buf    *logBuffer
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

var _ slog.Handler = (*LogHandler)(nil)

// NewLogHandler returns a handler keeping up to maxEntries records at or
// above level.
func NewLogHandler(maxEntries int, level slog.Leveler) *LogHandler {
	if maxEntries <= 0 {
		maxEntries = DefaultRingSize
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &LogHandler{
		buf:   &logBuffer{maxSize: maxEntries},
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *LogHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := make(map[string]string, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.String()
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs[h.prefix+a.Key] = a.Value.String()
		return true
	})

	b := h.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, LogEntry{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   attrs,
	})
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &c
}

// WithGroup implements slog.Handler. Group names prefix attribute keys.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// Logs returns every captured entry, oldest first.
func (h *LogHandler) Logs() []LogEntry {
	h.buf.mu.RLock()
	defer h.buf.mu.RUnlock()
	out := make([]LogEntry, len(h.buf.entries))
	copy(out, h.buf.entries)
	return out
}

// Recent returns the most recent count entries.
func (h *LogHandler) Recent(count int) []LogEntry {
	h.buf.mu.RLock()
	defer h.buf.mu.RUnlock()
	n := len(h.buf.entries)
	if count <= 0 || count > n {
		count = n
	}
	out := make([]LogEntry, count)
	copy(out, h.buf.entries[n-count:])
	return out
}

// Search returns entries whose message or attributes contain query.
func (h *LogHandler) Search(query string) []LogEntry {
	h.buf.mu.RLock()
	defer h.buf.mu.RUnlock()
	query = strings.ToLower(query)
	var matches []LogEntry
	for _, e := range h.buf.entries {
		if strings.Contains(strings.ToLower(e.Message), query) {
			matches = append(matches, e)
			continue
		}
		for k, v := range e.Attrs {
			if strings.Contains(strings.ToLower(k), query) ||
				strings.Contains(strings.ToLower(v), query) {
				matches = append(matches, e)
				break
			}
		}
	}
	return matches
}

// Clear removes every captured entry.
func (h *LogHandler) Clear() {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	h.buf.entries = h.buf.entries[:0]
}
