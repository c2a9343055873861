package command

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/joeycumines/go-arbiter/internal/config"
	"github.com/joeycumines/go-arbiter/internal/logging"
)

const followPollInterval = 200 * time.Millisecond

// LogCommand prints or follows the JSON log written by run and watch.
type LogCommand struct {
	*BaseCommand
	config *config.Config
	follow bool
	lines  int
	file   string
	level  string
	unit   string
	raw    bool

	// Follow loop timing, shortened in tests.
	poll    time.Duration
	maxWait time.Duration
}

// NewLogCommand creates a new log command.
func NewLogCommand(cfg *config.Config) *LogCommand {
	return &LogCommand{
		BaseCommand: NewBaseCommand("log", "View and follow the arbiter log file", "log [tail] [options]"),
		config:      cfg,
		poll:        followPollInterval,
		maxWait:     30 * time.Second,
	}
}

// SetupFlags configures the flags for the log command.
func (c *LogCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.follow, "f", false, "Follow the log file (like tail -f)")
	fs.BoolVar(&c.follow, "follow", false, "Follow the log file (like tail -f)")
	fs.IntVar(&c.lines, "n", 10, "Number of records to show from the end of the file")
	fs.StringVar(&c.file, "file", "", "Path to log file (overrides config log.file)")
	fs.StringVar(&c.level, "level", "debug", "Minimum level to show: debug, info, warn, error")
	fs.StringVar(&c.unit, "unit", "", "Only show records about this behavior unit")
	fs.BoolVar(&c.raw, "raw", false, "Print matching records as JSON")
}

// Execute runs the log command.
func (c *LogCommand) Execute(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return c.run(ctx, args, stdout, stderr)
}

func (c *LogCommand) run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "tail" {
		c.follow = true
		args = args[1:]
	}
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unknown subcommand: %s\n", args[0])
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}

	minLevel, err := logging.ParseLevel(c.level)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return err
	}
	f := recordFilter{min: minLevel, unit: c.unit, raw: c.raw}

	logPath := c.file
	if logPath == "" {
		logPath = resolveLogPath(c.config)
	}
	if logPath == "" {
		_, _ = fmt.Fprintln(stderr, "No log file configured. Use --file or set log.file in config.")
		return fmt.Errorf("no log file configured")
	}

	file, err := os.Open(logPath)
	switch {
	case err == nil:
	case os.IsNotExist(err) && c.follow:
		_, _ = fmt.Fprintf(stderr, "Waiting for log file: %s\n", logPath)
		if file, err = waitForFile(ctx, logPath, c.poll, c.maxWait); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	case os.IsNotExist(err):
		_, _ = fmt.Fprintf(stderr, "Log file does not exist: %s\n", logPath)
		return fmt.Errorf("log file not found: %s", logPath)
	default:
		return fmt.Errorf("failed to open log file: %w", err)
	}

	for _, line := range readLastN(file, c.lines, f.render) {
		_, _ = fmt.Fprintln(stdout, line)
	}
	if !c.follow {
		return file.Close()
	}

	pos, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	err = c.followFile(ctx, file, logPath, pos, f.render, stdout, stderr)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// resolveLogPath returns the effective log file path from env or config.
func resolveLogPath(cfg *config.Config) string {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return config.DefaultSchema().Resolve(cfg, "log.file")
}

// recordFilter selects and formats JSON log records. Lines that are not JSON
// objects pass through unchanged.
type recordFilter struct {
	min  slog.Level
	unit string
	raw  bool
}

func (f recordFilter) render(line string) (string, bool) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return line, f.unit == ""
	}

	var level slog.Level
	if s, ok := rec[slog.LevelKey].(string); ok {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			level = slog.LevelInfo
		}
	}
	if level < f.min {
		return "", false
	}
	if f.unit != "" && !mentionsUnit(rec, f.unit) {
		return "", false
	}
	if f.raw {
		return line, true
	}

	var b strings.Builder
	if s, ok := rec[slog.TimeKey].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			b.WriteString(ts.Format("15:04:05.000"))
			b.WriteByte(' ')
		}
	}
	_, _ = fmt.Fprintf(&b, "%-5s %v", level, rec[slog.MessageKey])
	for _, k := range slices.Sorted(maps.Keys(rec)) {
		switch k {
		case slog.TimeKey, slog.LevelKey, slog.MessageKey:
			continue
		}
		_, _ = fmt.Fprintf(&b, " %s=%v", k, rec[k])
	}
	return b.String(), true
}

func mentionsUnit(rec map[string]any, unit string) bool {
	for _, k := range []string{"unit", "from", "to", "current"} {
		if v, ok := rec[k].(string); ok && v == unit {
			return true
		}
	}
	return false
}

// readLastN returns the last n lines of r accepted by keep, in order.
func readLastN(r io.Reader, n int, keep func(string) (string, bool)) []string {
	if n <= 0 {
		return nil
	}
	ring := make([]string, n)
	var count int
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line, ok := keep(scanner.Text())
		if !ok {
			continue
		}
		ring[count%n] = line
		count++
	}
	total := min(count, n)
	out := make([]string, total)
	for i := range total {
		out[i] = ring[(count-total+i)%n]
	}
	return out
}

// followFile polls f for appended lines until ctx is done. A file that
// shrinks below pos, or disappears, is treated as rotated and reopened.
func (c *LogCommand) followFile(ctx context.Context, f *os.File, logPath string, pos int64, keep func(string) (string, bool), stdout, stderr io.Writer) error {
	reader := bufio.NewReader(f)
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	defer func() { _ = f.Close() }()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		rotated, err := detectRotation(logPath, pos)
		if err != nil {
			_ = f.Close()
			_, _ = fmt.Fprintln(stderr, "Log file rotated, waiting for new file...")
			if f, err = waitForFile(ctx, logPath, c.poll, c.maxWait); err != nil {
				return err
			}
			reader, pos, partial = bufio.NewReader(f), 0, ""
			continue
		}
		if rotated {
			next, err := os.Open(logPath)
			if err != nil {
				continue
			}
			_ = f.Close()
			f = next
			reader, pos, partial = bufio.NewReader(f), 0, ""
		}

		for {
			chunk, err := reader.ReadString('\n')
			pos += int64(len(chunk))
			partial += chunk
			if err != nil {
				break
			}
			if line, ok := keep(strings.TrimSuffix(partial, "\n")); ok {
				_, _ = fmt.Fprintln(stdout, line)
			}
			partial = ""
		}
	}
}

// detectRotation reports whether the file at logPath is now shorter than pos.
// An error means the path no longer exists.
func detectRotation(logPath string, pos int64) (bool, error) {
	info, err := os.Stat(logPath)
	if err != nil {
		return false, err
	}
	return info.Size() < pos, nil
}

// waitForFile polls until path can be opened, ctx is done, or maxWait passes.
func waitForFile(ctx context.Context, path string, poll, maxWait time.Duration) (*os.File, error) {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		f, err := os.Open(path)
		if err == nil {
			return f, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for log file: %s", path)
		case <-ticker.C:
		}
	}
}
