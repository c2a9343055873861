package command

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/condition"
	"github.com/joeycumines/go-arbiter/internal/config"
	"github.com/joeycumines/go-arbiter/internal/loader"
	"github.com/joeycumines/go-arbiter/internal/scheduler"
	"github.com/joeycumines/go-arbiter/internal/telemetry"
)

// systemFlags are the flags shared by commands that load a behavior file.
// Zero values defer to the config file.
type systemFlags struct {
	file     string
	seed     uint64
	interval time.Duration
	logFile  string
	logLevel string
}

func (f *systemFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "file", "", "Behavior definitions file (default: config behaviors.file)")
	fs.Uint64Var(&f.seed, "seed", 0, "Chooser jitter seed (default: config seed, 0 is random)")
	fs.DurationVar(&f.interval, "interval", 0, "Tick period (default: config tick.interval)")
	fs.StringVar(&f.logFile, "log-file", "", "Write JSON logs to this file (rotated)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// settings are the resolved scheduler and loop options.
type settings struct {
	file                   string
	seed                   uint64
	interval               time.Duration
	simStep                time.Duration
	jitter                 float64
	continuity             float64
	restartOnSelfInterrupt bool
	requireArming          bool
	idempotentLock         string
	uiLock                 string
	telemetryDB            string
	bufferSize             int
	cacheSize              int
}

// resolveSettings applies flags over config, where config values already
// account for environment overrides and schema defaults.
func resolveSettings(cfg *config.Config, f systemFlags) (settings, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	schema := config.DefaultSchema()
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	st := settings{
		file:           schema.Resolve(cfg, "behaviors.file"),
		idempotentLock: schema.Resolve(cfg, "scheduler.idempotent-lock"),
		uiLock:         schema.Resolve(cfg, "scheduler.ui-lock"),
		telemetryDB:    schema.Resolve(cfg, "telemetry.db"),
	}
	seed, err := schema.ResolveInt(cfg, "seed")
	collect(err)
	st.seed = uint64(max(seed, 0))

	st.interval, err = schema.ResolveDuration(cfg, "tick.interval")
	collect(err)
	st.simStep, err = schema.ResolveDuration(cfg, "tick.sim-step")
	collect(err)
	st.jitter, err = schema.ResolveFloat(cfg, "chooser.jitter")
	collect(err)
	st.continuity, err = schema.ResolveFloat(cfg, "chooser.continuity")
	collect(err)
	st.restartOnSelfInterrupt, err = schema.ResolveBool(cfg, "scheduler.restart-on-self-interrupt")
	collect(err)
	st.requireArming, err = schema.ResolveBool(cfg, "scheduler.require-arming")
	collect(err)
	st.bufferSize, err = schema.ResolveInt(cfg, "telemetry.buffer-size")
	collect(err)
	st.cacheSize, err = schema.ResolveInt(cfg, "condition.cache-size")
	collect(err)
	if err := errors.Join(errs...); err != nil {
		return st, fmt.Errorf("invalid configuration: %w", err)
	}

	if f.file != "" {
		st.file = f.file
	}
	if f.seed != 0 {
		st.seed = f.seed
	}
	if f.interval > 0 {
		st.interval = f.interval
	}
	if st.bufferSize <= 0 {
		st.bufferSize = 1000
	}
	if st.cacheSize <= 0 {
		st.cacheSize = condition.DefaultCacheSize
	}
	if st.file == "" {
		return st, errors.New("no behavior file: pass --file or set behaviors.file")
	}
	return st, nil
}

// loadSystem reads and builds the behavior file named by st.
func loadSystem(st settings, clock behavior.Clock, logger *slog.Logger) (*loader.System, error) {
	condition.SetCacheSize(st.cacheSize)
	defs, err := loader.Load(st.file)
	if err != nil {
		return nil, err
	}
	return loader.Build(defs, loader.Options{
		Clock:             clock,
		Logger:            logger,
		Seed:              st.seed,
		DefaultJitter:     st.jitter,
		DefaultContinuity: st.continuity,
		IdempotentLock:    st.idempotentLock,
	})
}

// schedulerOptions maps st onto scheduler options.
func (st settings) schedulerOptions(clock behavior.Clock, sink telemetry.Sink, logger *slog.Logger) scheduler.Options {
	opts := scheduler.DefaultOptions()
	opts.RestartOnSelfInterrupt = st.restartOnSelfInterrupt
	opts.RequireArming = st.requireArming
	if st.uiLock != "" {
		opts.UILockID = st.uiLock
	}
	opts.Clock = clock
	opts.Sink = sink
	opts.Logger = logger
	return opts
}

// clock returns a manual clock when a simulated step is configured, so
// timeline runs are reproducible, and the wall clock otherwise.
func (st settings) clock() behavior.Clock {
	if st.simStep > 0 {
		return behavior.NewManualClock(time.Unix(0, 0).UTC())
	}
	return behavior.SystemClock{}
}
