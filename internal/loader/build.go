package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"

	pabtpkg "github.com/joeycumines/go-pabt"

	"github.com/joeycumines/go-arbiter/internal/activity"
	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/chooser"
	"github.com/joeycumines/go-arbiter/internal/condition"
	"github.com/joeycumines/go-arbiter/internal/scheduler"
	"github.com/joeycumines/go-arbiter/internal/trigger"
	"github.com/joeycumines/go-arbiter/internal/world"
)

var (
	errMissingSelector  = errors.New("sub-activity needs exactly one of chooser or activity")
	errActivityCycle    = errors.New("activity nesting cycle")
	errDuplicateName    = errors.New("duplicate name")
	errMissingCondition = errors.New("missing expression")
)

// Options configures Build.
type Options struct {
	Clock  behavior.Clock
	Logger *slog.Logger
	// World is the blackboard units and strategies read. Nil allocates one.
	World *world.Blackboard
	// Seed seeds chooser jitter deterministically. Zero seeds at random.
	Seed uint64
	// DefaultJitter and DefaultContinuity apply to choosers that do not
	// set their own.
	DefaultJitter     float64
	DefaultContinuity float64
	// IdempotentLock is passed to the trigger registry.
	IdempotentLock string
}

// System is the object graph described by a definitions file.
type System struct {
	World      *world.Blackboard
	Units      *behavior.Registry
	Choosers   map[string]*chooser.Chooser
	Activities map[string]*activity.Activity
	// TopLevel lists, in file order, the activities no other activity
	// nests.
	TopLevel  []*activity.Activity
	Triggers  *trigger.Registry
	Overrides scheduler.OverrideTable
	Timeline  []StepDef
}

// NewScheduler returns a scheduler over the system's top-level activities.
// The override table in opts is replaced by the system's.
func (s *System) NewScheduler(opts scheduler.Options) (*scheduler.Scheduler, error) {
	opts.Overrides = s.Overrides
	return scheduler.New(s.Units, s.Triggers, s.TopLevel, opts)
}

// Close stops every running unit.
func (s *System) Close() { s.Units.Close() }

// Build constructs the System described by defs. Any unknown reference,
// duplicate id, malformed curve or invalid expression is returned as a
// *ConfigError.
func Build(defs *Definitions, opts Options) (*System, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.World == nil {
		opts.World = new(world.Blackboard)
	}
	b := &builder{
		defs: defs,
		opts: opts,
		sys: &System{
			World:      opts.World,
			Units:      behavior.NewRegistry(opts.Logger),
			Choosers:   make(map[string]*chooser.Chooser),
			Activities: make(map[string]*activity.Activity),
			Triggers:   trigger.NewRegistry(opts.IdempotentLock, opts.Logger),
			Timeline:   defs.Timeline,
		},
	}
	b.sys.World.Apply(defs.World)

	for _, step := range []func() error{
		b.groups,
		b.units,
		b.choosers,
		b.activities,
		b.triggers,
		b.overrides,
		b.timeline,
	} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return b.sys, nil
}

type builder struct {
	defs *Definitions
	opts Options
	sys  *System

	activityIndex map[string]int
	building      map[string]bool
}

func (b *builder) groups() error {
	for i, name := range b.defs.Groups {
		if _, ok := b.sys.Units.Group(name); ok {
			return configErr(fmt.Sprintf("groups[%d]", i), fmt.Errorf("%w: %s", errDuplicateName, name))
		}
		if _, err := b.sys.Units.DefineGroup(name); err != nil {
			return configErr(fmt.Sprintf("groups[%d]", i), err)
		}
	}
	return nil
}

func optionalBool(path, source string) (*condition.Bool, error) {
	if source == "" {
		return nil, nil
	}
	c, err := condition.NewBool(source)
	if err != nil {
		return nil, configErr(path, err)
	}
	return c, nil
}

func curve(path string, points []behavior.Point) (behavior.Curve, error) {
	c, err := behavior.NewCurve(points...)
	if err != nil {
		return behavior.Curve{}, configErr(path, err)
	}
	return c, nil
}

func (b *builder) units() error {
	for i, def := range b.defs.Units {
		path := fmt.Sprintf("units[%d]", i)
		groups, err := b.sys.Units.GroupSet(def.Groups...)
		if err != nil {
			return configErr(path+".groups", err)
		}

		spec := behavior.DataSpec{
			ID:        behavior.ID(def.ID),
			Class:     behavior.Class(def.Class),
			Groups:    groups,
			Score:     def.Score,
			RunFor:    def.RunFor,
			Resumable: def.Resumable,
		}
		if def.ScoreExpr != "" {
			if spec.ScoreExpr, err = condition.NewFloat(def.ScoreExpr); err != nil {
				return configErr(path+".scoreExpr", err)
			}
		}
		if spec.Runnable, err = optionalBool(path+".runnable", def.Runnable); err != nil {
			return err
		}
		if spec.CompleteWhen, err = optionalBool(path+".completeWhen", def.CompleteWhen); err != nil {
			return err
		}
		if spec.FailWhen, err = optionalBool(path+".failWhen", def.FailWhen); err != nil {
			return err
		}
		for _, key := range slices.Sorted(maps.Keys(def.Preconditions)) {
			c, err := condition.NewKeyed(key, def.Preconditions[key])
			if err != nil {
				return configErr(fmt.Sprintf("%s.preconditions.%s", path, key), err)
			}
			spec.Preconditions = append(spec.Preconditions, pabtpkg.Condition(c))
		}
		if spec.RunningPenalty, err = curve(path+".runningPenalty", def.RunningPenalty); err != nil {
			return err
		}
		if spec.RepetitionPenalty, err = curve(path+".repetitionPenalty", def.RepetitionPenalty); err != nil {
			return err
		}

		u, err := behavior.NewData(spec, b.sys.World, b.opts.Clock, b.opts.Logger.With("unit", def.ID))
		if err != nil {
			return configErr(path+".id", err)
		}
		if err := b.sys.Units.Add(u); err != nil {
			return configErr(path+".id", err)
		}
	}
	return nil
}

func (b *builder) choosers() error {
	for i, def := range b.defs.Choosers {
		path := fmt.Sprintf("choosers[%d]", i)
		if _, dup := b.sys.Choosers[def.Name]; dup {
			return configErr(path+".name", fmt.Errorf("%w: %s", errDuplicateName, def.Name))
		}
		bonus, err := curve(path+".runningBonus", def.RunningBonus)
		if err != nil {
			return err
		}
		opts := chooser.Options{
			Jitter:       b.opts.DefaultJitter,
			Continuity:   b.opts.DefaultContinuity,
			RunningBonus: bonus,
			Logger:       b.opts.Logger,
		}
		if def.Jitter != nil {
			opts.Jitter = *def.Jitter
		}
		if def.Continuity != nil {
			opts.Continuity = *def.Continuity
		}
		if b.opts.Seed != 0 {
			opts.Rand = rand.New(rand.NewPCG(b.opts.Seed, uint64(i)+1))
		}

		ids := make([]behavior.ID, len(def.Units))
		for j, id := range def.Units {
			ids[j] = behavior.ID(id)
		}
		c, err := chooser.New(def.Name, b.sys.Units, ids, opts)
		if err != nil {
			return configErr(path, err)
		}

		toggles := chooser.Toggles{
			DisableNames: toIDs(def.DisableNames),
			EnableNames:  toIDs(def.EnableNames),
		}
		if toggles.DisableGroups, err = b.sys.Units.GroupSet(def.DisableGroups...); err != nil {
			return configErr(path+".disableGroups", err)
		}
		if toggles.EnableGroups, err = b.sys.Units.GroupSet(def.EnableGroups...); err != nil {
			return configErr(path+".enableGroups", err)
		}
		if def.EnableAll != nil && !*def.EnableAll {
			c.DisableAll()
		}
		if err := c.Apply(toggles); err != nil {
			return configErr(path, err)
		}
		b.sys.Choosers[def.Name] = c
	}
	return nil
}

func (b *builder) activities() error {
	b.activityIndex = make(map[string]int, len(b.defs.Activities))
	b.building = make(map[string]bool)
	nested := make(map[string]bool)
	for i, def := range b.defs.Activities {
		if _, dup := b.activityIndex[def.ID]; dup || def.ID == "" {
			return configErr(fmt.Sprintf("activities[%d].id", i), fmt.Errorf("%w: %q", errDuplicateName, def.ID))
		}
		b.activityIndex[def.ID] = i
		for _, sub := range def.SubActivities {
			if sub.Activity != "" {
				nested[sub.Activity] = true
			}
		}
	}
	for _, def := range b.defs.Activities {
		a, err := b.activity(def.ID)
		if err != nil {
			return err
		}
		if !nested[def.ID] {
			b.sys.TopLevel = append(b.sys.TopLevel, a)
		}
	}
	return nil
}

// activity builds id and, first, every activity it nests.
func (b *builder) activity(id string) (*activity.Activity, error) {
	if a, ok := b.sys.Activities[id]; ok {
		return a, nil
	}
	i := b.activityIndex[id]
	path := fmt.Sprintf("activities[%d]", i)
	if b.building[id] {
		return nil, configErr(path, fmt.Errorf("%w: %s", errActivityCycle, id))
	}
	b.building[id] = true
	defer delete(b.building, id)

	def := b.defs.Activities[i]
	subs := make([]*activity.Sub, 0, len(def.SubActivities))
	for j, sd := range def.SubActivities {
		subPath := fmt.Sprintf("%s.subActivities[%d]", path, j)
		sub := &activity.Sub{
			ID:       sd.ID,
			Spark:    activity.Spark(sd.Spark),
			Priority: sd.Priority,
		}

		switch {
		case (sd.Chooser == "") == (sd.Activity == ""):
			return nil, configErr(subPath, errMissingSelector)
		case sd.Chooser != "":
			c, ok := b.sys.Choosers[sd.Chooser]
			if !ok {
				return nil, configErr(subPath+".chooser", fmt.Errorf("unknown chooser: %s", sd.Chooser))
			}
			sub.Selector = c
		default:
			if _, ok := b.activityIndex[sd.Activity]; !ok {
				return nil, configErr(subPath+".activity", fmt.Errorf("unknown activity: %s", sd.Activity))
			}
			nestedActivity, err := b.activity(sd.Activity)
			if err != nil {
				return nil, err
			}
			sub.Selector = nestedActivity
		}

		strategy, err := b.subStrategy(subPath, sd)
		if err != nil {
			return nil, err
		}
		sub.Strategy = strategy
		subs = append(subs, sub)
	}

	a, err := activity.New(def.ID, subs, b.opts.Logger)
	if err != nil {
		return nil, configErr(path, err)
	}
	b.sys.Activities[id] = a
	return a, nil
}

func (b *builder) subStrategy(path string, sd SubDef) (activity.Strategy, error) {
	timed := activity.Timed{Cooldown: sd.Cooldown, MaxDuration: sd.MaxDuration}
	start, err := optionalBool(path+".wantsToStart", sd.WantsToStart)
	if err != nil {
		return nil, err
	}
	end, err := optionalBool(path+".wantsToEnd", sd.WantsToEnd)
	if err != nil {
		return nil, err
	}
	switch {
	case start != nil || end != nil:
		return activity.Expr{Timed: timed, Start: start, End: end, World: b.sys.World}, nil
	case (timed != activity.Timed{}):
		return timed, nil
	default:
		return activity.Always{}, nil
	}
}

func (b *builder) triggers() error {
	for i, def := range b.defs.Triggers {
		path := fmt.Sprintf("triggers[%d]", i)
		if def.Kind == "" {
			return configErr(path+".kind", trigger.ErrUnknownKind)
		}
		if def.When == "" {
			return configErr(path+".when", errMissingCondition)
		}
		when, err := condition.NewBool(def.When)
		if err != nil {
			return configErr(path+".when", err)
		}
		name := def.Name
		if name == "" {
			name = def.Kind + ":" + def.Unit
		}
		s := trigger.NewExpr(name, trigger.Flags{
			InterruptSelf:  def.CanInterruptSelf,
			InterruptOther: def.CanInterruptOther,
			Resume:         def.Resume,
		}, when, b.sys.World)
		if !b.sys.Units.Has(behavior.ID(def.Unit)) {
			return configErr(path+".unit", fmt.Errorf("%w: %q", behavior.ErrUnknownUnit, def.Unit))
		}
		if err := b.sys.Triggers.Bind(behavior.TriggerKind(def.Kind), s, behavior.ID(def.Unit)); err != nil {
			return configErr(path, err)
		}
	}
	return nil
}

func (b *builder) overrides() error {
	resolve := func(path string, m map[string]string) (map[string]behavior.ID, error) {
		if len(m) == 0 {
			return nil, nil
		}
		out := make(map[string]behavior.ID, len(m))
		for _, capability := range slices.Sorted(maps.Keys(m)) {
			id := behavior.ID(m[capability])
			if !b.sys.Units.Has(id) {
				return nil, configErr(path+"."+capability, fmt.Errorf("%w: %s", behavior.ErrUnknownUnit, id))
			}
			out[capability] = id
		}
		return out, nil
	}

	def := b.defs.Overrides
	var err error
	if b.sys.Overrides.Voice, err = resolve("overrides.voice", def.Voice); err != nil {
		return err
	}
	if b.sys.Overrides.UI, err = resolve("overrides.ui", def.UI); err != nil {
		return err
	}
	kinds := b.sys.Triggers.Kinds()
	for i, k := range def.UISuppress {
		kind := behavior.TriggerKind(k)
		if !slices.Contains(kinds, kind) {
			return configErr(fmt.Sprintf("overrides.uiSuppress[%d]", i), fmt.Errorf("%w: %s", trigger.ErrUnknownKind, k))
		}
		b.sys.Overrides.UISuppress = append(b.sys.Overrides.UISuppress, kind)
	}
	return nil
}

func (b *builder) timeline() error {
	kinds := b.sys.Triggers.Kinds()
	for i, step := range b.defs.Timeline {
		path := fmt.Sprintf("timeline[%d]", i)
		if i > 0 && step.At < b.defs.Timeline[i-1].At {
			return configErr(path+".at", fmt.Errorf("steps out of order: %d after %d", step.At, b.defs.Timeline[i-1].At))
		}
		if step.Voice != "" {
			if _, ok := b.sys.Overrides.Resolve(scheduler.Voice, step.Voice); !ok {
				return configErr(path+".voice", fmt.Errorf("%w: %s", scheduler.ErrUnknownCapability, step.Voice))
			}
		}
		if step.UI != "" {
			if _, ok := b.sys.Overrides.Resolve(scheduler.UI, step.UI); !ok {
				return configErr(path+".ui", fmt.Errorf("%w: %s", scheduler.ErrUnknownCapability, step.UI))
			}
		}
		if step.Activity != "" {
			if !slices.ContainsFunc(b.sys.TopLevel, func(a *activity.Activity) bool { return a.ID() == step.Activity }) {
				return configErr(path+".activity", fmt.Errorf("%w: %s", scheduler.ErrUnknownActivity, step.Activity))
			}
		}
		if step.Lock != nil {
			if step.Lock.ID == "" {
				return configErr(path+".lock.id", errMissingCondition)
			}
			for j, k := range step.Lock.Kinds {
				if !slices.Contains(kinds, behavior.TriggerKind(k)) {
					return configErr(fmt.Sprintf("%s.lock.kinds[%d]", path, j), fmt.Errorf("%w: %s", trigger.ErrUnknownKind, k))
				}
			}
		}
	}
	return nil
}

func toIDs(names []string) []behavior.ID {
	if len(names) == 0 {
		return nil
	}
	ids := make([]behavior.ID, len(names))
	for i, n := range names {
		ids[i] = behavior.ID(n)
	}
	return ids
}
