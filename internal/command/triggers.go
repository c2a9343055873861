package command

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/config"
)

// TriggersCommand prints the reaction trigger map of a behavior file.
type TriggersCommand struct {
	*BaseCommand
	config *config.Config
	file   string
}

// NewTriggersCommand creates a new triggers command.
func NewTriggersCommand(cfg *config.Config) *TriggersCommand {
	return &TriggersCommand{
		BaseCommand: NewBaseCommand(
			"triggers",
			"Show which units each reaction trigger starts",
			"triggers [--file path]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the triggers command.
func (c *TriggersCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.file, "file", "", "Behavior definitions file (default: config behaviors.file)")
}

// Execute prints one row per binding, in declaration order.
func (c *TriggersCommand) Execute(args []string, stdout, stderr io.Writer) error {
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

	sty := newStyles(stdout, colorMode(c.config))
	reg := sys.Triggers
	kinds := reg.Kinds()
	if len(kinds) == 0 {
		_, _ = fmt.Fprintln(stdout, sty.dim.Render("no triggers defined"))
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, sty.title.Render("KIND")+"\t"+sty.title.Render("UNIT")+"\t"+sty.title.Render("STRATEGY")+"\t"+sty.title.Render("FLAGS")+"\t"+sty.title.Render("LOCKS"))
	for _, kind := range kinds {
		locks := "-"
		if l := reg.Locks(kind); len(l) > 0 {
			locks = sty.err.Render(strings.Join(l, ","))
		}
		bindings := reg.Bindings(kind)
		if len(bindings) == 0 {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t-\t-\t%s\n", sty.reaction.Render(kind.String()), sty.dim.Render("(unbound)"), locks)
			continue
		}
		for _, b := range bindings {
			var flags []string
			if b.Strategy.CanInterruptSelf() {
				flags = append(flags, "self")
			}
			if b.Strategy.CanInterruptOther() {
				flags = append(flags, "other")
			}
			if b.Strategy.ShouldResume() {
				flags = append(flags, "resume")
			}
			f := "-"
			if len(flags) > 0 {
				f = strings.Join(flags, ",")
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				sty.reaction.Render(kind.String()),
				sty.scored.Render(b.Target.String()),
				b.Strategy.Name(),
				sty.label.Render(f),
				locks)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if supp := sys.Overrides.UISuppress; len(supp) > 0 {
		names := make([]string, len(supp))
		for i, k := range supp {
			names[i] = k.String()
		}
		_, _ = fmt.Fprintf(stdout, "\n%s %s\n", sty.label.Render("suppressed during UI overrides:"), strings.Join(names, ", "))
	}
	return nil
}
