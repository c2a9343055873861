package scheduler

import (
	"time"

	bt "github.com/joeycumines/go-behaviortree"

	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/telemetry"
)

// Tick runs one scheduling pass at now.
//
// Order: activity update, override resolution, trigger evaluation, scored
// selection, override switch, then the current unit's update. A trigger
// that fires preempts both the override switch and scored selection.
func (s *Scheduler) Tick(now time.Time) {
	s.tick++
	s.now = now
	s.inTick = true
	defer func() { s.inTick = false }()

	s.applySpark()
	s.activity.Update(s.activeSpark, now)

	overrideUnit := s.resolveOverride()

	fired := s.checkTriggers()

	if !fired && s.override == nil && !s.running.Reactionary() {
		s.chooseScored()
	}

	if !fired && !overrideUnit.IsNone() {
		s.switchToOverride(overrideUnit)
	}

	s.updateCurrent()
}

// checkTriggers evaluates reactions and switches to the first that fires.
// It reports whether a reaction fired, including a suppressed
// self-interruption.
func (s *Scheduler) checkTriggers() bool {
	if !s.armed {
		if s.opts.Actuator.ActionQueueEmpty() {
			return false
		}
		s.logger.Info("[scheduler] reactions armed", "by", "action queue")
		s.armed = true
	}

	f, ok := s.triggers.Evaluate(s.running.Trigger, s.units)
	if !ok {
		return false
	}

	if f.Kind == s.running.Trigger && f.Target == s.running.Current && !s.opts.RestartOnSelfInterrupt {
		s.logger.Debug("[scheduler] reaction interrupted itself, keeping current unit",
			"kind", f.Kind, "unit", f.Target, "strategy", f.Strategy.Name())
		return true
	}

	act := s.opts.Actuator
	act.StopAllMotors()
	if act.AnyTracksLocked() {
		s.logger.Warn("[scheduler] some tracks are locked, unlocking them")
		act.UnlockAllTracks()
	}

	next := RunningState{Current: f.Target, Trigger: f.Kind}
	if f.Strategy.ShouldResume() {
		switch {
		case !s.running.Resume.IsNone():
			next.Resume = s.running.Resume
		case !s.running.Current.IsNone() && !s.running.Reactionary():
			next.Resume = s.running.Current
		}
	}

	if s.override != nil && s.override.active {
		s.clearOverride()
	}

	if s.switchTo(next, telemetry.ReasonTrigger) {
		s.logger.Info("[scheduler] reaction triggered",
			"kind", f.Kind, "unit", f.Target, "strategy", f.Strategy.Name())
	} else {
		s.logger.Info("[scheduler] reaction failed to start",
			"kind", f.Kind, "unit", f.Target, "strategy", f.Strategy.Name())
	}
	return true
}

// chooseScored asks the active activity for the best unit and switches to
// it if it differs from the current one.
func (s *Scheduler) chooseScored() {
	if !s.running.Resume.IsNone() || s.running.Reactionary() {
		s.logger.Error("[scheduler] scored selection attempted with resume pending or reaction running",
			"trigger", s.running.Trigger, "resume", s.running.Resume)
		return
	}
	next := s.activity.ChooseNext(s.running.Current)
	if next == s.running.Current {
		return
	}
	s.switchTo(RunningState{Current: next}, telemetry.ReasonScored)
}

func (s *Scheduler) switchToOverride(id behavior.ID) {
	o := s.override
	next := RunningState{Current: id}
	switch {
	case !s.running.Resume.IsNone():
		next.Resume = s.running.Resume
	case !s.running.Current.IsNone() && !s.running.Reactionary():
		next.Resume = s.running.Current
	}

	reason := telemetry.ReasonVoice
	if o.kind == UI {
		reason = telemetry.ReasonUI
		if !s.uiLocked && len(s.opts.Overrides.UISuppress) > 0 {
			for _, k := range s.opts.Overrides.UISuppress {
				if err := s.triggers.AddLock(k, s.opts.UILockID); err != nil {
					s.logger.Warn("[scheduler] failed to install ui lock", "kind", k, "error", err)
					continue
				}
				s.uiLockKinds = append(s.uiLockKinds, k)
			}
			s.uiLocked = true
		}
	}

	if !s.switchTo(next, reason) {
		s.clearOverride()
		return
	}
	o.active = true
}

// updateCurrent ticks the current unit and handles completion.
func (s *Scheduler) updateCurrent() {
	u, ok := s.units.Get(s.running.Current)
	if !ok {
		return
	}

	attemptResume := s.running.Reactionary()
	if o := s.override; o != nil && o.active && o.unit == s.running.Current {
		attemptResume = true
	}

	switch status := u.Update(); status {
	case bt.Running:
		return
	case bt.Success:
		s.logger.Debug("[scheduler] unit complete", "unit", u.ID())
	case bt.Failure:
		s.logger.Error("[scheduler] unit failed to update", "unit", u.ID())
	default:
		s.logger.Error("[scheduler] unit returned invalid status", "unit", u.ID(), "status", status)
	}

	if o := s.override; o != nil && o.active && o.unit == s.running.Current {
		s.clearOverride()
	}
	if attemptResume {
		s.tryResume()
		return
	}
	s.switchTo(RunningState{}, telemetry.ReasonFinished)
}

// tryResume hands control back to the resume target, or goes Idle.
func (s *Scheduler) tryResume() {
	target := s.running.Resume
	if target.IsNone() {
		s.switchTo(RunningState{}, telemetry.ReasonFinished)
		return
	}

	if p := s.pose; p != nil && s.opts.Actuator.ActionQueueEmpty() {
		s.logger.Info("[scheduler] resuming with empty action queue, queueing default pose",
			"head", p.HeadAngle, "lift", p.LiftHeight)
		s.opts.Actuator.QueueDefaultPose(*p)
	}

	old := s.running
	s.stopCurrent()
	err := behavior.ErrUnknownUnit
	if u, ok := s.units.Get(target); ok {
		err = u.Resume(old.Trigger)
	}
	if err != nil {
		s.logger.Info("[scheduler] failed to resume unit, clearing current", "unit", target, "error", err)
		s.running = RunningState{}
		s.record(old, s.running, telemetry.ReasonFinished)
		return
	}
	s.logger.Info("[scheduler] resumed unit", "unit", target, "from", old.Trigger)
	s.running = RunningState{Current: target}
	s.record(old, s.running, telemetry.ReasonResume)
}

func (s *Scheduler) stopCurrent() {
	if u, ok := s.units.Get(s.running.Current); ok && u.IsRunning() {
		u.Stop()
	}
	s.running.Current = behavior.None
}

// switchTo stops the current unit, activates next.Current and records the
// transition. An activation failure leaves the scheduler Idle and reports
// false.
func (s *Scheduler) switchTo(next RunningState, reason telemetry.Reason) bool {
	old := s.running
	s.stopCurrent()

	ok := true
	if !next.Current.IsNone() {
		u, found := s.units.Get(next.Current)
		var err error
		if !found {
			err = behavior.ErrUnknownUnit
		} else {
			err = u.Activate()
		}
		if err != nil {
			s.logger.Error("[scheduler] failed to activate unit", "unit", next.Current, "error", err)
			next = RunningState{}
			reason = telemetry.ReasonActivationError
			ok = false
		}
	}

	s.running = next
	s.record(old, next, reason)
	return ok
}

func (s *Scheduler) record(old, next RunningState, reason telemetry.Reason) {
	if old.Current == next.Current && old.Trigger == next.Trigger && reason != telemetry.ReasonTrigger {
		return
	}
	s.seq++
	t := telemetry.Transition{
		Seq:       s.seq,
		Time:      s.clockNow(),
		FromID:    old.Current,
		FromClass: s.units.ClassOf(old.Current),
		ToID:      next.Current,
		ToClass:   s.units.ClassOf(next.Current),
		Trigger:   next.Trigger,
		Reason:    reason,
	}
	s.logger.Debug("[scheduler] transition",
		"from", t.FromID, "to", t.ToID, "trigger", t.Trigger, "reason", t.Reason)
	if s.opts.Sink == nil {
		return
	}
	if err := s.opts.Sink.Record(t); err != nil {
		s.logger.Warn("[scheduler] failed to record transition", "error", err)
	}
}
