// Package behaviortest provides a scriptable behavior.Unit for tests.
package behaviortest

import (
	"time"

	bt "github.com/joeycumines/go-behaviortree"

	"github.com/joeycumines/go-arbiter/internal/behavior"
)

// Unit is a behavior.Unit whose answers are set directly by the test.
//
// Zero-valued fields mean: runnable, score 0, activation succeeds, Update
// reports bt.Running, resume succeeds.
type Unit struct {
	behavior.Base

	ScoreValue   float64
	NotRunnable  bool
	ActivateErr  error
	ResumeErr    error
	UpdateStatus bt.Status

	// ForceRunning makes IsRunning report true regardless of lifecycle.
	ForceRunning bool

	Activations int
	Stops       int
	Updates     int
	Resumes     []behavior.TriggerKind
}

var _ behavior.Unit = (*Unit)(nil)

// New returns a unit with the given id and score.
func New(id behavior.ID, score float64, clock behavior.Clock) *Unit {
	return &Unit{
		Base:       behavior.NewBase(id, behavior.Class(id), 0, clock),
		ScoreValue: score,
	}
}

// WithGroups returns a unit carrying groups.
func WithGroups(id behavior.ID, score float64, groups behavior.GroupSet, clock behavior.Clock) *Unit {
	return &Unit{
		Base:       behavior.NewBase(id, behavior.Class(id), groups, clock),
		ScoreValue: score,
	}
}

func (u *Unit) IsRunnable() bool { return !u.NotRunnable }

func (u *Unit) Score() float64 {
	if u.NotRunnable {
		return 0
	}
	return u.ScoreValue
}

func (u *Unit) IsRunning() bool {
	return u.ForceRunning || u.Base.IsRunning()
}

func (u *Unit) RunningDuration() time.Duration {
	return u.Base.RunningDuration()
}

func (u *Unit) Activate() error {
	u.Activations++
	if u.ActivateErr != nil {
		return u.ActivateErr
	}
	u.MarkStarted()
	return nil
}

func (u *Unit) Update() bt.Status {
	u.Updates++
	if u.UpdateStatus == 0 {
		return bt.Running
	}
	return u.UpdateStatus
}

func (u *Unit) Stop() {
	if u.MarkStopped() {
		u.Stops++
	}
}

func (u *Unit) Resume(from behavior.TriggerKind) error {
	u.Resumes = append(u.Resumes, from)
	if u.ResumeErr != nil {
		return u.ResumeErr
	}
	u.MarkResumed()
	return nil
}
