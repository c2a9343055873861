package chooser

import (
	"bytes"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/behavior/behaviortest"
)

type fixture struct {
	clock *behavior.ManualClock
	reg   *behavior.Registry
	units map[behavior.ID]*behaviortest.Unit
}

func newFixture(t *testing.T, scores ...any) *fixture {
	t.Helper()
	f := &fixture{
		clock: behavior.NewManualClock(time.Unix(0, 0)),
		reg:   behavior.NewRegistry(nil),
		units: make(map[behavior.ID]*behaviortest.Unit),
	}
	for i := 0; i < len(scores); i += 2 {
		id := behavior.ID(scores[i].(string))
		u := behaviortest.New(id, scores[i+1].(float64), f.clock)
		require.NoError(t, f.reg.Add(u))
		f.units[id] = u
	}
	return f
}

func (f *fixture) chooser(t *testing.T, opts Options) *Chooser {
	t.Helper()
	c, err := New("test", f.reg, f.reg.IDs(), opts)
	require.NoError(t, err)
	return c
}

func TestChooseNext_HighestScoreWins(t *testing.T) {
	f := newFixture(t, "X", 0.8, "Y", 0.3)
	c := f.chooser(t, Options{})
	assert.Equal(t, behavior.ID("X"), c.ChooseNext(behavior.None))
}

func TestChooseNext_ContinuityBonusRetainsRunning(t *testing.T) {
	f := newFixture(t, "X", 0.5, "Y", 0.6)
	c := f.chooser(t, Options{
		Continuity:   0.1,
		RunningBonus: behavior.MustCurve(behavior.Point{X: 0, Y: 0.2}, behavior.Point{X: 10, Y: 0.2}),
	})

	require.NoError(t, f.units["X"].Activate())
	f.clock.Advance(5 * time.Second)

	best, cands := c.Evaluate("X")
	assert.Equal(t, behavior.ID("X"), best)
	require.Len(t, cands, 2)
	assert.InDelta(t, 0.8, cands[0].Total, 1e-9)
	assert.True(t, cands[0].Running)
	assert.InDelta(t, 0.6, cands[1].Total, 1e-9)

	f.units["Y"].ScoreValue = 0.9
	assert.Equal(t, behavior.ID("Y"), c.ChooseNext("X"))
}

func TestChooseNext_TiesGoToFirstRegistered(t *testing.T) {
	f := newFixture(t, "A", 0.5, "B", 0.5)
	c := f.chooser(t, Options{})
	assert.Equal(t, behavior.ID("A"), c.ChooseNext(behavior.None))
}

func TestChooseNext_SkipsNonPositive(t *testing.T) {
	f := newFixture(t, "A", 0.0, "B", -1.0)
	c := f.chooser(t, Options{Jitter: 0.5, Continuity: 1})
	require.NoError(t, f.units["A"].Activate())
	best, cands := c.Evaluate("A")
	assert.Equal(t, behavior.None, best)
	assert.Empty(t, cands)
}

func TestChooseNext_RunningFloor(t *testing.T) {
	f := newFixture(t, "A", 0.1)
	c := f.chooser(t, Options{
		RunningBonus: behavior.MustCurve(behavior.Point{X: 0, Y: -5}),
	})
	require.NoError(t, f.units["A"].Activate())
	best, cands := c.Evaluate("A")
	assert.Equal(t, behavior.ID("A"), best)
	require.Len(t, cands, 1)
	assert.Greater(t, cands[0].Total, 0.0)
}

func TestChooseNext_Idempotent(t *testing.T) {
	f := newFixture(t, "A", 0.5, "B", 0.5, "C", 0.5)
	c := f.chooser(t, Options{Jitter: 0.3, Rand: rand.New(rand.NewPCG(1, 2))})

	first := c.ChooseNext(behavior.None)
	for range 10 {
		assert.Equal(t, first, c.ChooseNext(behavior.None))
	}
}

func TestChooseNext_JitterWithinBound(t *testing.T) {
	f := newFixture(t, "A", 0.5, "B", 0.5)
	c := f.chooser(t, Options{Jitter: 0.2, Rand: rand.New(rand.NewPCG(7, 7))})
	seen := map[behavior.ID]bool{}
	for i := range 200 {
		f.units["A"].ScoreValue = 0.5 + float64(i)*1e-9
		best, cands := c.Evaluate(behavior.None)
		seen[best] = true
		for _, cand := range cands {
			assert.GreaterOrEqual(t, cand.Jitter, 0.0)
			assert.Less(t, cand.Jitter, 0.2)
		}
	}
	assert.True(t, seen["A"] && seen["B"], "jitter should break ties both ways: %v", seen)
}

func TestChooseNext_DisableAllYieldsNone(t *testing.T) {
	f := newFixture(t, "A", 0.9, "B", 0.4)
	c := f.chooser(t, Options{})
	c.DisableAll()
	assert.Equal(t, behavior.None, c.ChooseNext(behavior.None))
}

func TestChooseNext_MultipleRunningUsesFirst(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, "A", 0.5, "B", 0.55)
	c := f.chooser(t, Options{
		Continuity: 0.1,
		Logger:     slog.New(slog.NewTextHandler(&buf, nil)),
	})
	f.units["A"].ForceRunning = true
	f.units["B"].ForceRunning = true

	best, cands := c.Evaluate("B")
	assert.Equal(t, behavior.ID("A"), best)
	assert.True(t, cands[0].Running)
	assert.False(t, cands[1].Running)
	assert.Contains(t, buf.String(), "multiple entries running")
}

func TestChooseNext_CurrentOutsideChooser(t *testing.T) {
	f := newFixture(t, "A", 0.5, "B", 0.55)
	c, err := New("only-b", f.reg, []behavior.ID{"B"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, behavior.ID("B"), c.ChooseNext("A"))
	assert.False(t, c.Contains("A"))
}

func TestNew_Errors(t *testing.T) {
	f := newFixture(t, "A", 0.5)

	_, err := New("", f.reg, nil, Options{})
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = New("c", f.reg, []behavior.ID{"missing"}, Options{})
	assert.ErrorIs(t, err, behavior.ErrUnknownUnit)

	_, err = New("c", f.reg, []behavior.ID{"A", "A"}, Options{})
	assert.ErrorIs(t, err, behavior.ErrDuplicateUnit)

	_, err = New("c", f.reg, []behavior.ID{"A"}, Options{Jitter: -1})
	assert.Error(t, err)
}
