// Package chooser picks the best unit from a named subset of the registry
// using score, jitter and a continuity bonus for the running unit.
package chooser

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/joeycumines/go-arbiter/internal/behavior"
)

// runningFloor is the smallest total a positively scored running unit can
// reach after its continuity bonus.
const runningFloor = 1e-6

// ErrEmptyName is returned for a chooser without a name.
var ErrEmptyName = errors.New("chooser: empty name")

// Options configures a Chooser.
type Options struct {
	// Jitter is the exclusive upper bound k of the uniform random addition
	// given to non-running candidates. Zero disables jitter.
	Jitter float64
	// Continuity is the fixed constant added to the running unit.
	Continuity float64
	// RunningBonus maps the running unit's duration in seconds to a bonus.
	RunningBonus behavior.Curve
	// Rand is the jitter source. Nil seeds a fresh generator.
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Entry is a unit held by a chooser.
type Entry struct {
	ID      behavior.ID
	Enabled bool
}

// Candidate is the scoring record of one entry.
type Candidate struct {
	ID      behavior.ID
	Score   float64
	Bonus   float64
	Jitter  float64
	Total   float64
	Running bool
}

// Chooser is a scored chooser over a fixed, ordered set of entries.
type Chooser struct {
	name     string
	registry *behavior.Registry
	entries  []Entry
	index    map[behavior.ID]int
	opts     Options
	logger   *slog.Logger

	// jitter draws are reused while the scoring inputs are unchanged, so
	// repeated calls within a tick agree.
	lastInputs  []float64
	lastRunning behavior.ID
	lastJitter  []float64
}

// New builds a chooser over ids, which must all be registered. Every entry
// starts enabled.
func New(name string, reg *behavior.Registry, ids []behavior.ID, opts Options) (*Chooser, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if opts.Jitter < 0 {
		return nil, fmt.Errorf("chooser %s: negative jitter %g", name, opts.Jitter)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chooser{
		name:     name,
		registry: reg,
		index:    make(map[behavior.ID]int, len(ids)),
		opts:     opts,
		logger:   logger.With("chooser", name),
	}
	for _, id := range ids {
		if !reg.Has(id) {
			return nil, fmt.Errorf("chooser %s: %w: %s", name, behavior.ErrUnknownUnit, id)
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("chooser %s: %w: %s", name, behavior.ErrDuplicateUnit, id)
		}
		c.index[id] = len(c.entries)
		c.entries = append(c.entries, Entry{ID: id, Enabled: true})
	}
	return c, nil
}

// Name returns the chooser's name.
func (c *Chooser) Name() string { return c.name }

// Entries returns a copy of the entries in registration order.
func (c *Chooser) Entries() []Entry { return slices.Clone(c.entries) }

// Contains reports whether id is one of the chooser's entries.
func (c *Chooser) Contains(id behavior.ID) bool {
	_, ok := c.index[id]
	return ok
}

// SetEnabled toggles a single entry.
func (c *Chooser) SetEnabled(id behavior.ID, enabled bool) error {
	i, ok := c.index[id]
	if !ok {
		return fmt.Errorf("chooser %s: %w: %s", c.name, behavior.ErrUnknownUnit, id)
	}
	c.entries[i].Enabled = enabled
	return nil
}

// ChooseNext returns the best entry given the currently running unit, or
// behavior.None if nothing scores above zero. It does not change any unit.
func (c *Chooser) ChooseNext(current behavior.ID) behavior.ID {
	best, _ := c.Evaluate(current)
	return best
}

// Evaluate scores every enabled entry and returns the winner together with
// the candidate records, in entry order.
func (c *Chooser) Evaluate(current behavior.ID) (behavior.ID, []Candidate) {
	running := c.runningEntry(current)

	type scored struct {
		unit  behavior.Unit
		score float64
	}
	inputs := make([]float64, 0, len(c.entries))
	live := make([]scored, len(c.entries))
	for i, e := range c.entries {
		if !e.Enabled {
			inputs = append(inputs, 0)
			continue
		}
		u := c.registry.MustGet(e.ID)
		live[i] = scored{unit: u, score: u.Score()}
		inputs = append(inputs, live[i].score)
	}
	jitter := c.jitterFor(inputs, running)

	best := behavior.None
	bestTotal := 0.0
	var candidates []Candidate
	for i, e := range c.entries {
		s := live[i]
		if s.unit == nil || s.score <= 0 {
			continue
		}
		cand := Candidate{ID: e.ID, Score: s.score, Running: e.ID == running}
		if cand.Running {
			cand.Bonus = c.opts.RunningBonus.EvalDuration(s.unit.RunningDuration()) + c.opts.Continuity
			cand.Total = max(cand.Score+cand.Bonus, runningFloor)
		} else {
			cand.Jitter = jitter[i]
			cand.Total = cand.Score + cand.Jitter
		}
		candidates = append(candidates, cand)
		c.logger.Debug("[chooser] candidate",
			"unit", cand.ID,
			"score", cand.Score,
			"bonus", cand.Bonus,
			"jitter", cand.Jitter,
			"total", cand.Total,
			"running", cand.Running)
		if cand.Total > bestTotal {
			best, bestTotal = e.ID, cand.Total
		}
	}
	c.logger.Debug("[chooser] selected", "unit", best, "total", bestTotal, "current", current)
	return best, candidates
}

// runningEntry identifies the running entry: current if it is an entry,
// otherwise the first entry reporting running. Several entries reporting
// running is logged and the first is used.
func (c *Chooser) runningEntry(current behavior.ID) behavior.ID {
	var first behavior.ID
	count := 0
	for _, e := range c.entries {
		if u, ok := c.registry.Get(e.ID); ok && u.IsRunning() {
			if count == 0 {
				first = e.ID
			}
			count++
		}
	}
	if count > 1 {
		c.logger.Warn("[chooser] multiple entries running", "first", first, "count", count)
		return first
	}
	if _, ok := c.index[current]; ok {
		return current
	}
	return first
}

func (c *Chooser) jitterFor(inputs []float64, running behavior.ID) []float64 {
	if c.opts.Jitter <= 0 {
		return make([]float64, len(c.entries))
	}
	if c.lastJitter != nil && running == c.lastRunning && slices.Equal(inputs, c.lastInputs) {
		return c.lastJitter
	}
	j := make([]float64, len(c.entries))
	for i := range j {
		j[i] = c.opts.Rand.Float64() * c.opts.Jitter
	}
	c.lastInputs = inputs
	c.lastRunning = running
	c.lastJitter = j
	return j
}
