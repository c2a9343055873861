package behavior

import (
	"errors"
	"time"

	bt "github.com/joeycumines/go-behaviortree"
)

var (
	// ErrNotRunnable is returned by Activate when the unit's preconditions
	// do not hold.
	ErrNotRunnable = errors.New("behavior: unit not runnable")
	// ErrNotResumable is returned by Resume for units that cannot regain
	// control after being preempted.
	ErrNotResumable = errors.New("behavior: unit not resumable")
)

// Unit is a leaf unit of robot control.
//
// Score, IsRunnable and the running counters must already reflect the
// current tick's world state when the scheduler reads them. Units report a
// score of zero when they are not applicable.
type Unit interface {
	ID() ID
	Class() Class
	Groups() GroupSet

	IsRunnable() bool
	Score() float64

	IsRunning() bool
	RunningDuration() time.Duration
	TimesStarted() int

	// Activate starts the unit. A non-nil error means the unit did not
	// start and must be treated as unselected.
	Activate() error
	// Update advances a running unit by one tick.
	Update() bt.Status
	// Stop ends the unit. Stopping a unit that is not running is a no-op.
	Stop()
	// Resume restarts a unit that was preempted by a reaction of kind from.
	Resume(from TriggerKind) error
}

// Base carries the identity and running counters shared by Unit
// implementations. Embed it and call MarkStarted/MarkStopped from the
// lifecycle methods.
type Base struct {
	id     ID
	class  Class
	groups GroupSet
	clock  Clock

	running       bool
	startedAt     time.Time
	lastStoppedAt time.Time
	timesStarted  int
}

// NewBase returns a Base. A nil clock uses the system clock.
func NewBase(id ID, class Class, groups GroupSet, clock Clock) Base {
	if clock == nil {
		clock = SystemClock{}
	}
	return Base{id: id, class: class, groups: groups, clock: clock}
}

func (b *Base) ID() ID           { return b.id }
func (b *Base) Class() Class     { return b.class }
func (b *Base) Groups() GroupSet { return b.groups }
func (b *Base) IsRunning() bool  { return b.running }
func (b *Base) TimesStarted() int {
	return b.timesStarted
}

// Clock returns the unit's clock.
func (b *Base) Clock() Clock { return b.clock }

// RunningDuration returns how long the unit has been running, or zero.
func (b *Base) RunningDuration() time.Duration {
	if !b.running {
		return 0
	}
	return b.clock.Now().Sub(b.startedAt)
}

// LastStarted returns when the unit last started or resumed.
func (b *Base) LastStarted() time.Time { return b.startedAt }

// LastStopped returns when the unit last stopped, or the zero time.
func (b *Base) LastStopped() time.Time { return b.lastStoppedAt }

// MarkStarted records a fresh activation.
func (b *Base) MarkStarted() {
	b.running = true
	b.startedAt = b.clock.Now()
	b.timesStarted++
}

// MarkResumed records a resumption. Resuming restarts the running timer but
// is not counted as a new start.
func (b *Base) MarkResumed() {
	b.running = true
	b.startedAt = b.clock.Now()
}

// MarkStopped records a stop. It reports whether the unit was running.
func (b *Base) MarkStopped() bool {
	if !b.running {
		return false
	}
	b.running = false
	b.lastStoppedAt = b.clock.Now()
	return true
}
