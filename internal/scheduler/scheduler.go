// Package scheduler decides, once per tick, which behavior unit drives the
// robot.
//
// A tick updates the active activity, resolves any pending voice or UI
// override, lets reaction triggers preempt, falls back to scored selection,
// and finally updates the current unit, resuming a preempted unit when a
// reaction or override finishes. Every failure degrades to Idle; nothing
// escapes Tick.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joeycumines/go-arbiter/internal/activity"
	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/telemetry"
	"github.com/joeycumines/go-arbiter/internal/trigger"
)

var (
	// ErrNoActivity is returned by New when no activity is supplied.
	ErrNoActivity = errors.New("scheduler: no activity")
	// ErrUnknownActivity is returned for an activity id that was not
	// supplied to New.
	ErrUnknownActivity = errors.New("scheduler: unknown activity")
	// ErrUnknownCapability is returned for override requests the table
	// cannot resolve.
	ErrUnknownCapability = errors.New("scheduler: unknown capability")
)

// Options configures a Scheduler.
type Options struct {
	// InitialActivity selects the starting activity; empty uses the first.
	InitialActivity string
	// RestartOnSelfInterrupt re-activates a reaction's unit when its own
	// kind fires again. When false the firing is a no-op that still
	// preempts the rest of the tick.
	RestartOnSelfInterrupt bool
	// RequireArming skips trigger evaluation until an action is queued or
	// the idempotent lock is removed.
	RequireArming bool
	// UILockID defaults to DefaultUILockID.
	UILockID  string
	Overrides OverrideTable
	Actuator  Actuator
	Sink      telemetry.Sink
	Clock     behavior.Clock
	Logger    *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		RestartOnSelfInterrupt: true,
		RequireArming:          true,
		UILockID:               DefaultUILockID,
	}
}

// Status is a point-in-time view of the scheduler, for display.
type Status struct {
	Tick        uint64
	State       State
	Running     RunningState
	Class       behavior.Class
	Activity    string
	SubActivity string
	Spark       activity.Spark
	// SparkAge is the time since the spark or activity last changed, zero
	// if neither has.
	SparkAge    time.Duration
	Override    OverrideKind
	Capability  string
	Armed       bool
}

// Scheduler arbitrates between scored units, reactions and overrides.
//
// Scheduler is not safe for concurrent use. Every input it reads (unit
// scores, runnability, trigger predicates and the world they depend on)
// must be refreshed before Tick is called.
type Scheduler struct {
	units      *behavior.Registry
	triggers   *trigger.Registry
	activities map[string]*activity.Activity
	order      []string
	opts       Options
	logger     *slog.Logger

	running  RunningState
	activity *activity.Activity
	override *override
	armed    bool

	// uiLockKinds are the kinds that accepted the ui lock from this
	// scheduler; only those are unlocked when the override ends.
	uiLocked    bool
	uiLockKinds []behavior.TriggerKind

	activeSpark    activity.Spark
	requestedSpark activity.Spark
	softSpark      bool

	pose    *Pose
	tick    uint64
	seq     uint64
	now     time.Time
	inTick  bool
	sparkAt time.Time
}

// New returns a scheduler over the given units, triggers and activities.
func New(units *behavior.Registry, triggers *trigger.Registry, activities []*activity.Activity, opts Options) (*Scheduler, error) {
	if units == nil || triggers == nil {
		return nil, errors.New("scheduler: nil registry")
	}
	if len(activities) == 0 {
		return nil, ErrNoActivity
	}
	if opts.UILockID == "" {
		opts.UILockID = DefaultUILockID
	}
	if opts.Actuator == nil {
		opts.Actuator = NopActuator{}
	}
	if opts.Clock == nil {
		opts.Clock = behavior.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	for _, k := range opts.Overrides.UISuppress {
		if !slices.Contains(triggers.Kinds(), k) {
			return nil, fmt.Errorf("scheduler: ui suppression: %w: %s", trigger.ErrUnknownKind, k)
		}
	}
	for _, m := range []map[string]behavior.ID{opts.Overrides.Voice, opts.Overrides.UI} {
		for capability, id := range m {
			if !units.Has(id) {
				return nil, fmt.Errorf("scheduler: override %s: %w: %s", capability, behavior.ErrUnknownUnit, id)
			}
		}
	}

	s := &Scheduler{
		units:      units,
		triggers:   triggers,
		activities: make(map[string]*activity.Activity, len(activities)),
		opts:       opts,
		logger:     opts.Logger,
		armed:      !opts.RequireArming,
	}
	hooked := make(map[*activity.Activity]bool)
	for _, a := range activities {
		if _, dup := s.activities[a.ID()]; dup {
			return nil, fmt.Errorf("scheduler: duplicate activity %s", a.ID())
		}
		s.activities[a.ID()] = a
		s.order = append(s.order, a.ID())
		a.Walk(func(x *activity.Activity) {
			if !hooked[x] {
				hooked[x] = true
				x.OnSwitch(s.onSubActivitySwitch)
			}
		})
	}

	initial := opts.InitialActivity
	if initial == "" {
		initial = s.order[0]
	}
	a, ok := s.activities[initial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActivity, initial)
	}
	s.activity = a
	return s, nil
}

// Running returns the current running state.
func (s *Scheduler) Running() RunningState { return s.running }

// State returns Idle, Scored or Reactionary.
func (s *Scheduler) State() State { return s.running.State() }

// Current returns the active unit and its class.
func (s *Scheduler) Current() (behavior.ID, behavior.Class) {
	return s.running.Current, s.units.ClassOf(s.running.Current)
}

// Activity returns the active top-level activity.
func (s *Scheduler) Activity() *activity.Activity { return s.activity }

// Activities returns the ids of every top-level activity.
func (s *Scheduler) Activities() []string { return slices.Clone(s.order) }

// ActiveSpark returns the spark the activity is currently gated on.
func (s *Scheduler) ActiveSpark() activity.Spark { return s.activeSpark }

// Armed reports whether trigger evaluation is enabled.
func (s *Scheduler) Armed() bool { return s.armed }

// Status returns a snapshot for display.
func (s *Scheduler) Status() Status {
	st := Status{
		Tick:        s.tick,
		State:       s.State(),
		Running:     s.running,
		Class:       s.units.ClassOf(s.running.Current),
		Activity:    s.activity.ID(),
		SubActivity: strings.Join(s.activity.Path(), " / "),
		Spark:       s.activeSpark,
		Armed:       s.armed,
	}
	if !s.sparkAt.IsZero() {
		st.SparkAge = s.clockNow().Sub(s.sparkAt)
	}
	if s.override != nil {
		st.Override = s.override.kind
		st.Capability = s.override.capability
	}
	return st
}

func (s *Scheduler) clockNow() time.Time {
	if s.inTick {
		return s.now
	}
	return s.opts.Clock.Now()
}

// onSubActivitySwitch clears the resume target whenever the active
// activity's sub-activity, or that of an activity nested in it, changes.
func (s *Scheduler) onSubActivitySwitch(from, to string) {
	if !s.running.Resume.IsNone() {
		s.logger.Info("[scheduler] sub-activity changed, dropping resume target",
			"from", from, "to", to, "resume", s.running.Resume)
		s.running.Resume = behavior.None
	}
}

// SetActivity makes id the active top-level activity. The previous one is
// deactivated, the resume target cleared, and a non-reactionary current
// unit is stopped before the new activity selects immediately.
func (s *Scheduler) SetActivity(id string) error {
	next, ok := s.activities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActivity, id)
	}
	if next == s.activity {
		s.logger.Info("[scheduler] activity already set", "activity", id)
		return nil
	}
	now := s.clockNow()
	s.logger.Info("[scheduler] switching activity", "from", s.activity.ID(), "to", id)
	s.activity.Deactivate(now)

	reactionary := s.running.Reactionary()
	if !reactionary {
		s.clearOverride()
		s.switchTo(RunningState{}, telemetry.ReasonActivity)
	}
	s.running.Resume = behavior.None
	s.activity = next
	s.sparkAt = now

	if !reactionary {
		next.Update(s.activeSpark, now)
		s.chooseScored()
	}
	return nil
}

// RequestSpark requests a capability gate. A hard request takes effect on
// the next tick; a soft one waits until no unit is running.
func (s *Scheduler) RequestSpark(spark activity.Spark, soft bool) {
	s.requestedSpark = spark
	s.softSpark = soft
	kind := "hard"
	if soft {
		kind = "soft"
	}
	s.logger.Info("[scheduler] spark requested", "spark", spark, "kind", kind)
}

// ClearSpark requests the spark-less gate.
func (s *Scheduler) ClearSpark() { s.RequestSpark(activity.NoSpark, false) }

func (s *Scheduler) applySpark() {
	if s.requestedSpark == s.activeSpark {
		return
	}
	if s.softSpark && !s.running.Current.IsNone() {
		return
	}
	s.logger.Info("[scheduler] switching spark", "from", s.activeSpark, "to", s.requestedSpark)
	s.activeSpark = s.requestedSpark
	s.sparkAt = s.now
}

// RequestVoiceCommand queues a voice override for capability, replacing
// any pending override.
func (s *Scheduler) RequestVoiceCommand(capability string) error {
	return s.requestOverride(Voice, capability)
}

// RequestUIBehavior queues a UI override for capability, replacing any
// pending override.
func (s *Scheduler) RequestUIBehavior(capability string) error {
	return s.requestOverride(UI, capability)
}

func (s *Scheduler) requestOverride(kind OverrideKind, capability string) error {
	if _, ok := s.opts.Overrides.Resolve(kind, capability); !ok {
		s.logger.Warn("[scheduler] unknown override capability", "kind", kind, "capability", capability)
		return fmt.Errorf("%w: %s %s", ErrUnknownCapability, kind, capability)
	}
	if s.override != nil {
		s.logger.Info("[scheduler] replacing override",
			"kind", s.override.kind, "capability", s.override.capability)
		s.releaseUILock()
	}
	s.override = &override{kind: kind, capability: capability}
	return nil
}

// resolveOverride binds the pending override to its unit. It returns the
// unit to switch to, or none when there is nothing to switch.
func (s *Scheduler) resolveOverride() behavior.ID {
	o := s.override
	if o == nil {
		return behavior.None
	}
	if o.unit.IsNone() {
		id, ok := s.opts.Overrides.Resolve(o.kind, o.capability)
		if !ok {
			s.override = nil
			return behavior.None
		}
		o.unit = id
	}
	if o.unit == s.running.Current {
		o.active = true
		return behavior.None
	}
	return o.unit
}

func (s *Scheduler) clearOverride() {
	if s.override == nil {
		return
	}
	s.releaseUILock()
	s.override = nil
}

func (s *Scheduler) releaseUILock() {
	if !s.uiLocked {
		return
	}
	for _, k := range s.uiLockKinds {
		if err := s.triggers.RemoveLock(k, s.opts.UILockID); err != nil {
			s.logger.Warn("[scheduler] failed to release ui lock", "kind", k, "error", err)
		}
	}
	s.uiLockKinds = nil
	s.uiLocked = false
}

// EndCurrentImmediately stops the current unit and goes Idle, dropping the
// resume target and any override.
func (s *Scheduler) EndCurrentImmediately(reason string) {
	s.logger.Info("[scheduler] forcing current unit to stop", "unit", s.running.Current, "by", reason)
	s.clearOverride()
	s.switchTo(RunningState{}, telemetry.ReasonEndImmediately)
}

// IsReactionTriggerEnabled reports whether kind currently holds no locks.
func (s *Scheduler) IsReactionTriggerEnabled(kind behavior.TriggerKind) bool {
	return s.triggers.IsEnabled(kind)
}

// ReactionLocks returns the lock ids currently disabling kind.
func (s *Scheduler) ReactionLocks(kind behavior.TriggerKind) []string {
	return s.triggers.Locks(kind)
}

// DisableReactionsWithLock locks each kind under lockID. With stopCurrent,
// a running reaction of a locked kind is stopped and the scheduler goes
// Idle. Lock conflicts are returned after every kind has been tried.
func (s *Scheduler) DisableReactionsWithLock(lockID string, kinds []behavior.TriggerKind, stopCurrent bool) error {
	err := s.triggers.DisableWithLock(lockID, kinds)
	if stopCurrent && s.running.Reactionary() && slices.Contains(kinds, s.running.Trigger) &&
		!s.triggers.IsEnabled(s.running.Trigger) {
		s.logger.Info("[scheduler] reaction disabled, stopping current unit",
			"kind", s.running.Trigger, "lock", lockID)
		s.switchTo(RunningState{}, telemetry.ReasonLocked)
	}
	return err
}

// RemoveReactionsLock removes lockID from every kind and returns the kinds
// it was removed from. Removing the idempotent lock arms reactions.
func (s *Scheduler) RemoveReactionsLock(lockID string) []behavior.TriggerKind {
	if lockID == s.triggers.IdempotentLock() && !s.armed {
		s.logger.Info("[scheduler] reactions armed", "by", "lock removal")
		s.armed = true
	}
	return s.triggers.RemoveLockEverywhere(lockID)
}

// NotifyActionQueued arms reactions.
func (s *Scheduler) NotifyActionQueued() {
	if !s.armed {
		s.logger.Info("[scheduler] reactions armed", "by", "action queued")
		s.armed = true
	}
}

// SetDefaultPose records the pose re-issued on resume, queueing it now if
// nothing else is queued.
func (s *Scheduler) SetDefaultPose(p Pose) {
	s.pose = &p
	s.logger.Info("[scheduler] default pose set", "head", p.HeadAngle, "lift", p.LiftHeight)
	if s.opts.Actuator.ActionQueueEmpty() {
		s.opts.Actuator.QueueDefaultPose(p)
	}
}

// ClearDefaultPose forgets the default pose.
func (s *Scheduler) ClearDefaultPose() {
	s.pose = nil
}

// Close stops the current unit without recording a transition.
func (s *Scheduler) Close() {
	if u, ok := s.units.Get(s.running.Current); ok && u.IsRunning() {
		u.Stop()
	}
	s.releaseUILock()
	s.override = nil
	s.running = RunningState{}
}
