// Package activity arbitrates, per capability gate ("spark"), which
// sub-activity currently owns the scored selection slot.
//
// Sub-activities for a spark are sorted by priority once, when the Activity
// is built, and walked in that order on every Update: the first one that
// matches an override, or whose strategy wants to keep or take the slot,
// is selected. The selected sub-activity delegates unit choice to its
// Selector, typically a scored chooser.
package activity

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/joeycumines/go-arbiter/internal/behavior"
)

// Spark is a capability gate. NoSpark selects the sub-activities that run
// when no spark is requested.
type Spark string

// NoSpark is the spark-less gate.
const NoSpark Spark = ""

func (s Spark) String() string {
	if s == NoSpark {
		return "None"
	}
	return string(s)
}

var (
	// ErrUnknownSub is returned when an override names no sub-activity.
	ErrUnknownSub = errors.New("activity: unknown sub-activity")
	// ErrDuplicateSub is returned for repeated sub-activity ids.
	ErrDuplicateSub = errors.New("activity: duplicate sub-activity")
)

// Selector picks the next unit to run. *chooser.Chooser and *Activity
// implement it.
type Selector interface {
	ChooseNext(current behavior.ID) behavior.ID
}

// nested is a selector with its own sub-activity slot. It is updated with
// the parent's spark while its sub-activity is selected, and deactivated
// when it loses the slot.
type nested interface {
	Selector
	Update(spark Spark, now time.Time) bool
	Deactivate(now time.Time)
}

// Sub is a sub-activity: a selector gated by a spark and a strategy.
type Sub struct {
	ID       string
	Spark    Spark
	Priority int
	Strategy Strategy
	Selector Selector

	lastStarted time.Time
	lastStopped time.Time
}

// LastStarted returns when the sub-activity was last selected.
func (s *Sub) LastStarted() time.Time { return s.lastStarted }

// LastStopped returns when the sub-activity was last deselected.
func (s *Sub) LastStopped() time.Time { return s.lastStopped }

// SwitchFunc observes sub-activity changes. Empty ids mean no sub-activity.
type SwitchFunc func(from, to string)

// Activity is a priority-ordered group of sub-activities keyed by spark.
//
// Activity is not safe for concurrent use.
type Activity struct {
	id      string
	subs    map[string]*Sub
	bySpark map[Spark][]*Sub
	logger  *slog.Logger

	current    *Sub
	requested  string
	forced     string
	lastSwitch time.Time
	onSwitch   []SwitchFunc

	lastSpark Spark
	lastNow   time.Time

	// idle is set once "nothing selected" has been reported, and
	// emptySpark names the last spark reported as having no sub-activities.
	idle       bool
	emptySpark *Spark
}

// New builds an activity. Sub-activities are stable-sorted by descending
// priority within their spark.
func New(id string, subs []*Sub, logger *slog.Logger) (*Activity, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Activity{
		id:      id,
		subs:    make(map[string]*Sub, len(subs)),
		bySpark: make(map[Spark][]*Sub),
		logger:  logger.With("activity", id),
	}
	for _, s := range subs {
		if s.ID == "" {
			return nil, fmt.Errorf("activity %s: %w: empty id", id, ErrUnknownSub)
		}
		if _, dup := a.subs[s.ID]; dup {
			return nil, fmt.Errorf("activity %s: %w: %s", id, ErrDuplicateSub, s.ID)
		}
		if s.Selector == nil {
			return nil, fmt.Errorf("activity %s: sub-activity %s has no selector", id, s.ID)
		}
		if s.Strategy == nil {
			s.Strategy = Always{}
		}
		a.subs[s.ID] = s
		a.bySpark[s.Spark] = append(a.bySpark[s.Spark], s)
	}
	for _, list := range a.bySpark {
		slices.SortStableFunc(list, func(x, y *Sub) int {
			return cmp.Compare(y.Priority, x.Priority)
		})
	}
	return a, nil
}

// ID returns the activity id.
func (a *Activity) ID() string { return a.id }

// Current returns the selected sub-activity id, or "".
func (a *Activity) Current() string {
	if a.current == nil {
		return ""
	}
	return a.current.ID
}

// Path returns the selected sub-activity id followed by those selected in
// nested activities below it. It is empty when nothing is selected.
func (a *Activity) Path() []string {
	var path []string
	for x := a; x != nil && x.current != nil; {
		path = append(path, x.current.ID)
		x, _ = x.current.Selector.(*Activity)
	}
	return path
}

// LastSwitch returns when the selected sub-activity last changed.
func (a *Activity) LastSwitch() time.Time { return a.lastSwitch }

// Sparks returns the sparks with at least one sub-activity.
func (a *Activity) Sparks() []Spark {
	sparks := make([]Spark, 0, len(a.bySpark))
	for s := range a.bySpark {
		sparks = append(sparks, s)
	}
	slices.Sort(sparks)
	return sparks
}

// Order returns the sub-activity ids for spark in priority order.
func (a *Activity) Order(spark Spark) []string {
	list := a.bySpark[spark]
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	return ids
}

// Sub returns the sub-activity with the given id.
func (a *Activity) Sub(id string) (*Sub, bool) {
	s, ok := a.subs[id]
	return s, ok
}

// OnSwitch registers fn to run whenever the selected sub-activity changes.
func (a *Activity) OnSwitch(fn SwitchFunc) {
	a.onSwitch = append(a.onSwitch, fn)
}

// Walk calls fn for a and then for every activity nested below it, each
// once, depth first in sub-activity order.
func (a *Activity) Walk(fn func(*Activity)) {
	seen := make(map[*Activity]bool)
	var visit func(*Activity)
	visit = func(x *Activity) {
		if seen[x] {
			return
		}
		seen[x] = true
		fn(x)
		for _, spark := range x.Sparks() {
			for _, sub := range x.bySpark[spark] {
				if child, ok := sub.Selector.(*Activity); ok {
					visit(child)
				}
			}
		}
	}
	visit(a)
}

// Request asks for id to be selected on the next Update. A request is
// honoured for one selection pass only.
func (a *Activity) Request(id string) error {
	if _, ok := a.subs[id]; !ok {
		return fmt.Errorf("activity %s: %w: %s", a.id, ErrUnknownSub, id)
	}
	a.requested = id
	return nil
}

// Requested returns the pending request, or "".
func (a *Activity) Requested() string { return a.requested }

// Force pins selection to id until Unforce. It takes precedence over
// Request.
func (a *Activity) Force(id string) error {
	if _, ok := a.subs[id]; !ok {
		return fmt.Errorf("activity %s: %w: %s", a.id, ErrUnknownSub, id)
	}
	a.forced = id
	return nil
}

// Unforce clears a forced selection.
func (a *Activity) Unforce() { a.forced = "" }

// override returns the active override id, forced first.
func (a *Activity) override() string {
	if a.forced != "" {
		return a.forced
	}
	return a.requested
}

// Update re-selects the sub-activity for spark, then updates the selected
// sub-activity's nested activity, if it has one. It reports whether this
// activity's selection changed.
func (a *Activity) Update(spark Spark, now time.Time) bool {
	a.lastSpark, a.lastNow = spark, now
	changed := a.pick(spark, now, true)
	a.updateNested()
	return changed
}

func (a *Activity) updateNested() {
	if a.current == nil {
		return
	}
	if n, ok := a.current.Selector.(nested); ok {
		n.Update(a.lastSpark, a.lastNow)
	}
}

func (a *Activity) pick(spark Spark, now time.Time, allowCurrent bool) bool {
	list, ok := a.bySpark[spark]
	switch {
	case ok:
		a.emptySpark = nil
	case a.emptySpark == nil || *a.emptySpark != spark:
		a.logger.Warn("[activity] no sub-activities for spark", "spark", spark)
		a.emptySpark = &spark
	}

	override := a.override()
	var next *Sub
	for _, s := range list {
		if override != "" {
			if s.ID != override {
				continue
			}
		} else if s == a.current {
			if !allowCurrent || s.Strategy.WantsToEnd(now, now.Sub(s.lastStarted)) {
				continue
			}
		} else if !s.Strategy.WantsToStart(now, s.lastStopped, s.lastStarted) {
			continue
		}
		next = s
		break
	}
	if a.requested != "" && a.forced == "" {
		a.requested = ""
	}

	if next == a.current {
		if next == nil && !a.idle {
			a.logger.Info("[activity] no sub-activity selected", "spark", spark)
			a.idle = true
		}
		return false
	}
	a.switchTo(next, now)
	return true
}

func (a *Activity) switchTo(next *Sub, now time.Time) {
	from := a.Current()
	if a.current != nil {
		a.current.lastStopped = now
		if n, ok := a.current.Selector.(nested); ok {
			n.Deactivate(now)
		}
	}
	a.current = next
	a.idle = next == nil
	a.lastSwitch = now
	to := a.Current()
	for _, fn := range a.onSwitch {
		fn(from, to)
	}
	if next != nil {
		next.lastStarted = now
	}
	a.logger.Info("[activity] switched sub-activity", "from", from, "to", to)
}

// Deactivate deselects the current sub-activity.
func (a *Activity) Deactivate(now time.Time) {
	if a.current != nil {
		a.switchTo(nil, now)
	}
}

// ChooseNext asks the selected sub-activity for the next unit. If it picks
// nothing, the slot is re-contested without it and the replacement, if
// any, is asked instead.
func (a *Activity) ChooseNext(current behavior.ID) behavior.ID {
	if a.current == nil {
		return behavior.None
	}
	if id := a.current.Selector.ChooseNext(current); !id.IsNone() {
		return id
	}
	if a.override() != "" {
		return behavior.None
	}
	prev := a.current
	if !a.pick(a.lastSpark, a.lastNow, false) || a.current == nil || a.current == prev {
		return behavior.None
	}
	a.updateNested()
	return a.current.Selector.ChooseNext(current)
}
