// Package runner drives a scheduler on a fixed tick interval, applying
// scripted timeline steps to the world and the scheduler before each tick.
//
// The tick loop is a go-behaviortree Ticker whose single leaf performs one
// scheduling pass. Everything that touches the scheduler goes through the
// runner's lock, so UI goroutines may inject commands with Do while the
// loop is running.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bt "github.com/joeycumines/go-behaviortree"

	"github.com/joeycumines/go-arbiter/internal/activity"
	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/loader"
	"github.com/joeycumines/go-arbiter/internal/scheduler"
	"github.com/joeycumines/go-arbiter/internal/world"
)

// DefaultInterval is the tick period used when Options.Interval is unset.
const DefaultInterval = 100 * time.Millisecond

// ErrStopped is returned by Run on a runner that was already stopped.
var ErrStopped = errors.New("runner: stopped")

// Options configures a Runner.
type Options struct {
	// Interval is the wall-clock tick period.
	Interval time.Duration
	// MaxTicks stops the loop after that many ticks. Zero runs until the
	// context is cancelled.
	MaxTicks uint64
	// Clock supplies the time passed to each tick.
	Clock behavior.Clock
	// SimStep, if positive and Clock can be advanced, moves Clock forward
	// by that much before each tick.
	SimStep time.Duration
	Logger  *slog.Logger
}

// Snapshot is the state observed after a tick.
type Snapshot struct {
	Status scheduler.Status
	Time   time.Time
	// Errors holds failures applying that tick's timeline steps.
	Errors []error
}

type advancer interface {
	Advance(d time.Duration) time.Time
}

// Runner owns the tick loop for one scheduler.
type Runner struct {
	sched    *scheduler.Scheduler
	world    *world.Blackboard
	timeline []loader.StepDef
	opts     Options
	logger   *slog.Logger

	mu        sync.Mutex
	ticks     uint64
	cursor    int
	observers []func(Snapshot)
	manager   bt.Manager
	stopped   bool
}

// New returns a runner for sched. bb and timeline may be nil.
func New(sched *scheduler.Scheduler, bb *world.Blackboard, timeline []loader.StepDef, opts Options) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = behavior.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if bb == nil {
		bb = new(world.Blackboard)
	}
	return &Runner{
		sched:    sched,
		world:    bb,
		timeline: timeline,
		opts:     opts,
		logger:   opts.Logger,
		manager:  bt.NewManager(),
	}
}

// Subscribe registers fn to receive a snapshot after every tick. fn runs on
// the tick goroutine with the runner locked, so it must not call back into
// the runner.
func (r *Runner) Subscribe(fn func(Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Do runs fn with exclusive access to the scheduler and world.
func (r *Runner) Do(fn func(s *scheduler.Scheduler, bb *world.Blackboard)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.sched, r.world)
}

// Ticks returns the number of completed ticks.
func (r *Runner) Ticks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

// Status returns the scheduler's current status.
func (r *Runner) Status() scheduler.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sched.Status()
}

// Step performs one tick: it applies every pending timeline step due at
// the new tick number, ticks the scheduler and notifies subscribers. It
// reports whether MaxTicks has been reached.
func (r *Runner) Step() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ticks++
	var errs []error
	for r.cursor < len(r.timeline) && r.timeline[r.cursor].At <= r.ticks {
		if err := r.apply(r.timeline[r.cursor]); err != nil {
			r.logger.Warn("[runner] timeline step failed", "at", r.timeline[r.cursor].At, "error", err)
			errs = append(errs, err)
		}
		r.cursor++
	}

	if a, ok := r.opts.Clock.(advancer); ok && r.opts.SimStep > 0 {
		a.Advance(r.opts.SimStep)
	}
	now := r.opts.Clock.Now()
	r.sched.Tick(now)

	snap := Snapshot{Status: r.sched.Status(), Time: now, Errors: errs}
	for _, fn := range r.observers {
		fn(snap)
	}
	return snap, r.opts.MaxTicks != 0 && r.ticks >= r.opts.MaxTicks
}

func (r *Runner) apply(step loader.StepDef) error {
	s := r.sched
	if len(step.Set) > 0 {
		r.world.Apply(step.Set)
	}
	for _, k := range step.Delete {
		r.world.Delete(k)
	}

	var errs []error
	if step.Activity != "" {
		errs = append(errs, s.SetActivity(step.Activity))
	}
	if step.Spark != nil {
		s.RequestSpark(activity.Spark(*step.Spark), step.SoftSpark)
	}
	if step.Voice != "" {
		errs = append(errs, s.RequestVoiceCommand(step.Voice))
	}
	if step.UI != "" {
		errs = append(errs, s.RequestUIBehavior(step.UI))
	}
	if l := step.Lock; l != nil {
		kinds := make([]behavior.TriggerKind, len(l.Kinds))
		for i, k := range l.Kinds {
			kinds[i] = behavior.TriggerKind(k)
		}
		errs = append(errs, s.DisableReactionsWithLock(l.ID, kinds, l.StopCurrent))
	}
	if step.Unlock != "" {
		if released := s.RemoveReactionsLock(step.Unlock); len(released) == 0 {
			r.logger.Debug("[runner] lock released nothing", "lock", step.Unlock)
		}
	}
	if step.ActionQueued {
		s.NotifyActionQueued()
	}
	if step.EndCurrent != "" {
		s.EndCurrentImmediately(step.EndCurrent)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("step at %d: %w", step.At, err)
	}
	return nil
}

// node is the ticker's leaf: one Step per tick, failing once the tick
// budget is spent so the ticker stops cleanly.
func (r *Runner) node() (bt.Tick, []bt.Node) {
	return func([]bt.Node) (bt.Status, error) {
		if _, done := r.Step(); done {
			return bt.Failure, nil
		}
		return bt.Running, nil
	}, nil
}

// Run ticks until ctx is cancelled, Stop is called or MaxTicks is reached.
// A runner runs at most once.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.mu.Unlock()

	r.logger.Info("[runner] starting", "interval", r.opts.Interval, "maxTicks", r.opts.MaxTicks)
	ticker := bt.NewTickerStopOnFailure(ctx, r.opts.Interval, r.node)
	if err := r.manager.Add(ticker); err != nil {
		ticker.Stop()
		return fmt.Errorf("runner: %w", err)
	}

	select {
	case <-ticker.Done():
	case <-r.manager.Done():
	}
	r.manager.Stop()
	<-r.manager.Done()

	r.mu.Lock()
	r.stopped = true
	ticks := r.ticks
	r.mu.Unlock()
	r.logger.Info("[runner] stopped", "ticks", ticks)

	if err := r.manager.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop ends a running loop. It is safe to call more than once.
func (r *Runner) Stop() {
	r.manager.Stop()
}

// Done is closed once the loop has stopped.
func (r *Runner) Done() <-chan struct{} { return r.manager.Done() }
