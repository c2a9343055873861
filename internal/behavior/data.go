package behavior

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	bt "github.com/joeycumines/go-behaviortree"
	pabtpkg "github.com/joeycumines/go-pabt"

	"github.com/joeycumines/go-arbiter/internal/condition"
	"github.com/joeycumines/go-arbiter/internal/world"
)

// DataSpec describes a unit whose runnability, score and completion are
// expressions over the world blackboard.
//
// Expressions see every blackboard key, plus:
//
//	runningFor   seconds running, 0 when stopped
//	sinceStopped seconds since the last stop, -1 if never stopped
//	timesStarted number of activations
type DataSpec struct {
	ID     ID
	Class  Class
	Groups GroupSet

	// Score is the flat base score, used when ScoreExpr is nil.
	Score     float64
	ScoreExpr *condition.Float

	// Runnable gates the score and activation. Nil means always runnable.
	Runnable *condition.Bool
	// Preconditions are world-keyed conditions that must all match.
	Preconditions []pabtpkg.Condition

	// RunFor completes the unit once it has run this long. Zero disables.
	RunFor       time.Duration
	CompleteWhen *condition.Bool
	FailWhen     *condition.Bool

	Resumable bool

	// RunningPenalty is subtracted from the score, keyed by seconds running.
	RunningPenalty Curve
	// RepetitionPenalty is subtracted from the score, keyed by seconds since
	// the last stop. Units that never ran are not penalised.
	RepetitionPenalty Curve
}

// Data is a Unit driven by a DataSpec.
type Data struct {
	Base
	spec   DataSpec
	world  *world.Blackboard
	tree   bt.Node
	logger *slog.Logger
}

var _ Unit = (*Data)(nil)

// NewData builds a data unit reading bb.
func NewData(spec DataSpec, bb *world.Blackboard, clock Clock, logger *slog.Logger) (*Data, error) {
	if spec.ID.IsNone() {
		return nil, fmt.Errorf("%w: empty id", ErrUnknownUnit)
	}
	if spec.Class == "" {
		spec.Class = Class(spec.ID)
	}
	if bb == nil {
		bb = new(world.Blackboard)
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Data{
		Base:   NewBase(spec.ID, spec.Class, spec.Groups, clock),
		spec:   spec,
		world:  bb,
		logger: logger,
	}
	d.tree = bt.New(bt.Sequence,
		bt.New(d.tickGuard),
		bt.New(d.tickProgress),
	)
	return d, nil
}

// Spec returns the unit's definition.
func (d *Data) Spec() DataSpec { return d.spec }

// Preconditions returns the world-keyed conditions gating the unit.
func (d *Data) Preconditions() []pabtpkg.Condition { return d.spec.Preconditions }

func (d *Data) env() map[string]any {
	since := -1.0
	if stopped := d.LastStopped(); !stopped.IsZero() {
		since = d.Clock().Now().Sub(stopped).Seconds()
	}
	return d.world.Env(map[string]any{
		"runningFor":   d.RunningDuration().Seconds(),
		"sinceStopped": since,
		"timesStarted": d.TimesStarted(),
	})
}

func (d *Data) IsRunnable() bool {
	if !condition.MatchAll(d.spec.Preconditions, d.world) {
		return false
	}
	if d.spec.Runnable == nil {
		return true
	}
	return d.spec.Runnable.Eval(d.env())
}

// Score returns the base score less the running and repetition penalties,
// floored at zero. A unit that is neither running nor runnable scores zero.
func (d *Data) Score() float64 {
	if !d.IsRunning() && !d.IsRunnable() {
		return 0
	}
	score := d.spec.Score
	if d.spec.ScoreExpr != nil {
		score = d.spec.ScoreExpr.Eval(d.env())
	}
	if d.IsRunning() {
		score -= d.spec.RunningPenalty.EvalDuration(d.RunningDuration())
	}
	if stopped := d.LastStopped(); !stopped.IsZero() && !d.IsRunning() {
		score -= d.spec.RepetitionPenalty.EvalDuration(d.Clock().Now().Sub(stopped))
	}
	return max(score, 0)
}

func (d *Data) Activate() error {
	if !d.IsRunnable() {
		return fmt.Errorf("%w: %s", ErrNotRunnable, d.ID())
	}
	d.MarkStarted()
	return nil
}

func (d *Data) Update() bt.Status {
	if !d.IsRunning() {
		return bt.Failure
	}
	status, err := d.tree.Tick()
	if err != nil {
		d.logger.Error("[behavior] update failed", "unit", d.ID(), "error", err)
		return bt.Failure
	}
	return status
}

func (d *Data) Stop() {
	d.MarkStopped()
}

func (d *Data) Resume(from TriggerKind) error {
	if !d.spec.Resumable {
		return fmt.Errorf("%w: %s after %s", ErrNotResumable, d.ID(), from)
	}
	if !d.IsRunnable() {
		return fmt.Errorf("%w: %s", ErrNotRunnable, d.ID())
	}
	d.MarkResumed()
	return nil
}

// tickGuard fails the unit when its failure condition holds.
func (d *Data) tickGuard([]bt.Node) (bt.Status, error) {
	if d.spec.FailWhen != nil && d.spec.FailWhen.Eval(d.env()) {
		return bt.Failure, nil
	}
	return bt.Success, nil
}

// tickProgress completes the unit once its completion condition or run
// duration is reached.
func (d *Data) tickProgress([]bt.Node) (bt.Status, error) {
	if d.spec.CompleteWhen != nil {
		if d.spec.CompleteWhen.Eval(d.env()) {
			return bt.Success, nil
		}
		if err := d.spec.CompleteWhen.LastError(); err != nil {
			return bt.Failure, errors.Join(errors.New("completion check"), err)
		}
	}
	if d.spec.RunFor > 0 && d.RunningDuration() >= d.spec.RunFor {
		return bt.Success, nil
	}
	return bt.Running, nil
}
