package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/go-arbiter/internal/config"
	"github.com/joeycumines/go-arbiter/internal/loader"
	"github.com/joeycumines/go-arbiter/internal/runner"
	"github.com/joeycumines/go-arbiter/internal/scheduler"
	"github.com/joeycumines/go-arbiter/internal/telemetry"
)

// liveSystem is a loaded behavior file with a scheduler and runner over it.
type liveSystem struct {
	sys    *loader.System
	sched  *scheduler.Scheduler
	runner *runner.Runner
	ring   *telemetry.Ring
	db     *telemetry.SQLiteSink
	log    logConfig
	// logs is set when liveOptions.captureLogs is.
	logs *telemetry.LogHandler
}

// liveOptions carries the per-command inputs to startLive.
type liveOptions struct {
	flags    systemFlags
	simStep  time.Duration
	maxTicks uint64
	dbPath   string
	// sinks receive transitions after the ring and database.
	sinks []telemetry.Sink
	// captureLogs keeps log records in memory instead of writing text to
	// stderr. A configured log file still receives them.
	captureLogs bool
	stderr      io.Writer
}

func startLive(cfg *config.Config, opts liveOptions) (_ *liveSystem, err error) {
	st, err := resolveSettings(cfg, opts.flags)
	if err != nil {
		return nil, err
	}
	if opts.simStep > 0 {
		st.simStep = opts.simStep
	}
	lc, err := resolveLogConfig(opts.flags.logFile, opts.flags.logLevel, 0, cfg)
	if err != nil {
		return nil, err
	}
	live := &liveSystem{log: lc, ring: telemetry.NewRing(st.bufferSize)}
	defer func() {
		if err != nil {
			live.Close()
		}
	}()
	logOut := opts.stderr
	var capture slog.Handler
	if opts.captureLogs {
		live.logs = telemetry.NewLogHandler(lc.bufferSize, lc.level)
		capture, logOut = live.logs, nil
	}
	logger := lc.logger(logOut, capture)
	clock := st.clock()

	if live.sys, err = loadSystem(st, clock, logger); err != nil {
		if opts.stderr != nil {
			printLoadError(opts.stderr, st.file, err)
		}
		return nil, err
	}

	sinks := telemetry.Multi{live.ring}
	dbPath := opts.dbPath
	if dbPath == "" {
		dbPath = st.telemetryDB
	}
	if dbPath != "" {
		if live.db, err = telemetry.Open(dbPath); err != nil {
			return nil, err
		}
		sinks = append(sinks, live.db)
		logger.Info("[telemetry] recording", "db", dbPath, "session", live.db.Session())
	}
	sinks = append(sinks, opts.sinks...)

	if live.sched, err = live.sys.NewScheduler(st.schedulerOptions(clock, sinks, logger)); err != nil {
		return nil, err
	}
	live.runner = runner.New(live.sched, live.sys.World, live.sys.Timeline, runner.Options{
		Interval: st.interval,
		MaxTicks: opts.maxTicks,
		Clock:    clock,
		SimStep:  st.simStep,
		Logger:   logger,
	})
	return live, nil
}

// Close releases everything startLive opened. It must not be called while
// the runner is running.
func (l *liveSystem) Close() error {
	if l.sched != nil {
		l.sched.Close()
	}
	if l.sys != nil {
		l.sys.Close()
	}
	var errs []error
	if l.db != nil {
		errs = append(errs, l.db.Close())
	}
	errs = append(errs, l.log.Close())
	return errors.Join(errs...)
}

// RunCommand drives a behavior file's scheduler and prints transitions.
type RunCommand struct {
	*BaseCommand
	config  *config.Config
	flags   systemFlags
	ticks   uint64
	simStep time.Duration
	db      string
	quiet   bool
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg *config.Config) *RunCommand {
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Run the scheduler over a behavior file's timeline",
			"run [--file path] [--ticks n] [--interval d] [--seed n] [--db path]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the run command.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	c.flags.register(fs)
	fs.Uint64Var(&c.ticks, "ticks", 0, "Stop after this many ticks (default: [run] ticks, 0 runs until interrupted)")
	fs.DurationVar(&c.simStep, "sim-step", 0, "Advance a simulated clock by this much per tick")
	fs.StringVar(&c.db, "db", "", "Record transitions to this SQLite file (default: config telemetry.db)")
	fs.BoolVar(&c.quiet, "quiet", false, "Print only the final status")
}

// Execute runs until the tick budget is spent or the process is interrupted.
func (c *RunCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.run(ctx, stdout, stderr)
}

func (c *RunCommand) run(ctx context.Context, stdout, stderr io.Writer) error {
	ticks, quiet := c.ticks, c.quiet
	schema := config.DefaultSchema()
	if ticks == 0 {
		n, err := schema.ResolveIntIn(c.config, "run", "ticks")
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		ticks = uint64(max(n, 0))
	}
	if !quiet {
		b, err := schema.ResolveBoolIn(c.config, "run", "quiet")
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		quiet = b
	}

	sty := newStyles(stdout, colorMode(c.config))
	opts := liveOptions{
		flags:    c.flags,
		simStep:  c.simStep,
		maxTicks: ticks,
		dbPath:   c.db,
		stderr:   stderr,
	}
	if !quiet {
		opts.sinks = append(opts.sinks, telemetry.SinkFunc(func(t telemetry.Transition) error {
			_, err := fmt.Fprintln(stdout, sty.transition(t))
			return err
		}))
	}
	live, err := startLive(c.config, opts)
	if err != nil {
		return err
	}
	defer live.Close()

	var stepErrs int
	live.runner.Subscribe(func(s runner.Snapshot) {
		for _, e := range s.Errors {
			stepErrs++
			_, _ = fmt.Fprintln(stderr, sty.err.Render(e.Error()))
		}
	})

	runErr := live.runner.Run(ctx)

	_, _ = fmt.Fprintln(stdout, sty.box.Render(sty.status(live.runner.Status())))
	summary := fmt.Sprintf("%d ticks, %d transitions", live.runner.Ticks(), live.ring.Len())
	if stepErrs > 0 {
		summary += fmt.Sprintf(", %d timeline errors", stepErrs)
	}
	if live.db != nil {
		summary += ", session " + live.db.Session()
	}
	_, _ = fmt.Fprintln(stdout, sty.dim.Render(summary))
	return runErr
}
