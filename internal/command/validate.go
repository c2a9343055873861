package command

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/condition"
	"github.com/joeycumines/go-arbiter/internal/config"
	"github.com/joeycumines/go-arbiter/internal/loader"
)

// ValidateCommand loads and builds a behavior file without running it.
type ValidateCommand struct {
	*BaseCommand
	config *config.Config
	file   string
}

// NewValidateCommand creates a new validate command.
func NewValidateCommand(cfg *config.Config) *ValidateCommand {
	return &ValidateCommand{
		BaseCommand: NewBaseCommand(
			"validate",
			"Check a behavior definitions file",
			"validate [--file path]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the validate command.
func (c *ValidateCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.file, "file", "", "Behavior definitions file (default: config behaviors.file)")
}

// Execute builds the file and prints a summary, or the first error.
func (c *ValidateCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}
	st, err := resolveSettings(c.config, systemFlags{file: c.file})
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sys, err := loadSystem(st, behavior.SystemClock{}, logger)
	if err != nil {
		printLoadError(stderr, st.file, err)
		return err
	}
	defer sys.Close()

	topLevel := make([]string, len(sys.TopLevel))
	for i, a := range sys.TopLevel {
		topLevel[i] = a.ID()
	}
	_, _ = fmt.Fprintf(stdout, "%s is valid\n", st.file)
	_, _ = fmt.Fprintf(stdout, "  units:       %d\n", sys.Units.Len())
	_, _ = fmt.Fprintf(stdout, "  choosers:    %d\n", len(sys.Choosers))
	_, _ = fmt.Fprintf(stdout, "  activities:  %d (top-level: %s)\n", len(sys.Activities), strings.Join(topLevel, ", "))
	_, _ = fmt.Fprintf(stdout, "  triggers:    %d kinds\n", len(sys.Triggers.Kinds()))
	_, _ = fmt.Fprintf(stdout, "  voice:       %s\n", joinKeys(sys.Overrides.Voice))
	_, _ = fmt.Fprintf(stdout, "  ui:          %s\n", joinKeys(sys.Overrides.UI))
	_, _ = fmt.Fprintf(stdout, "  timeline:    %d steps\n", len(sys.Timeline))
	_, _ = fmt.Fprintf(stdout, "  conditions:  %s\n", condition.Cache())
	return nil
}

// printLoadError reports err, locating it within file when it is a
// definition error.
func printLoadError(w io.Writer, file string, err error) {
	var ce *loader.ConfigError
	if errors.As(err, &ce) && ce.Path != "" {
		_, _ = fmt.Fprintf(w, "%s: %s: %v\n", file, ce.Path, ce.Err)
		return
	}
	_, _ = fmt.Fprintf(w, "%s: %v\n", file, err)
}

func joinKeys[V any](m map[string]V) string {
	if len(m) == 0 {
		return "-"
	}
	return strings.Join(slices.Sorted(maps.Keys(m)), ", ")
}
