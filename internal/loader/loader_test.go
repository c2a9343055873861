package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-arbiter/internal/activity"
	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/scheduler"
	"github.com/joeycumines/go-arbiter/internal/trigger"
)

func loadFreeplay(t *testing.T) (*System, *behavior.ManualClock) {
	t.Helper()
	defs, err := Load(filepath.Join("testdata", "freeplay.yaml"))
	require.NoError(t, err)
	clock := behavior.NewManualClock(time.Unix(1000, 0))
	sys, err := Build(defs, Options{Clock: clock, Seed: 1})
	require.NoError(t, err)
	t.Cleanup(sys.Close)
	return sys, clock
}

func TestLoad_Freeplay(t *testing.T) {
	sys, _ := loadFreeplay(t)

	wantUnits := []behavior.ID{"Explore", "LookForFaces", "Sleep", "PlayKeepaway", "ReactToPickup", "ReactToCliff", "GoToFace"}
	if diff := cmp.Diff(wantUnits, sys.Units.IDs()); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}

	var top []string
	for _, a := range sys.TopLevel {
		top = append(top, a.ID())
	}
	if diff := cmp.Diff([]string{"Freeplay", "Sleeping"}, top); diff != "" {
		t.Errorf("top-level activities mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, sys.Activities, 3)

	wantKinds := []behavior.TriggerKind{"PickedUp", "CliffDetected"}
	if diff := cmp.Diff(wantKinds, sys.Triggers.Kinds()); diff != "" {
		t.Errorf("trigger kinds mismatch (-want +got):\n%s", diff)
	}

	wantOverrides := scheduler.OverrideTable{
		Voice:      map[string]behavior.ID{"ComeHere": "GoToFace"},
		UI:         map[string]behavior.ID{"Explore": "Explore"},
		UISuppress: []behavior.TriggerKind{"CliffDetected"},
	}
	if diff := cmp.Diff(wantOverrides, sys.Overrides); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}

	play := sys.Choosers["play"]
	require.NotNil(t, play)
	for _, e := range play.Entries() {
		assert.Equal(t, e.ID != "Explore", e.Enabled, "entry %s", e.ID)
	}

	social, err := sys.Units.GroupSet("social")
	require.NoError(t, err)
	assert.True(t, sys.Units.MustGet("LookForFaces").Groups().Intersects(social))
	assert.False(t, sys.Units.MustGet("Explore").Groups().Intersects(social))

	assert.Equal(t, false, sys.World.Get("faceVisible"))
	assert.Len(t, sys.Timeline, 7)
	require.NotNil(t, sys.Timeline[4].Spark)
	assert.Equal(t, "play", *sys.Timeline[4].Spark)
}

func TestLoad_DurationsAndCurves(t *testing.T) {
	sys, _ := loadFreeplay(t)

	data, ok := sys.Units.MustGet("Explore").(*behavior.Data)
	require.True(t, ok)
	spec := data.Spec()
	assert.Equal(t, 10*time.Second, spec.RunFor)
	want := []behavior.Point{{X: 0, Y: 0.5}, {X: 30, Y: 1}}
	if diff := cmp.Diff(want, spec.RepetitionPenalty.Points()); diff != "" {
		t.Errorf("repetition penalty mismatch (-want +got):\n%s", diff)
	}

	keepaway := sys.Units.MustGet("PlayKeepaway").(*behavior.Data)
	require.Len(t, keepaway.Preconditions(), 1)
	assert.Equal(t, "faceVisible", keepaway.Preconditions()[0].Key())
	assert.False(t, keepaway.IsRunnable())
	sys.World.Set("faceVisible", true)
	assert.True(t, keepaway.IsRunnable())

	freeplay := sys.Activities["Freeplay"]
	sub, ok := freeplay.Sub("Social")
	require.True(t, ok)
	strategy, ok := sub.Strategy.(activity.Expr)
	require.True(t, ok, "got %T", sub.Strategy)
	assert.Equal(t, 20*time.Second, strategy.Cooldown)
	assert.Same(t, sys.Activities["Social"], sub.Selector)

	play, ok := freeplay.Sub("Play")
	require.True(t, ok)
	assert.Equal(t, activity.Timed{MaxDuration: 30 * time.Second}, play.Strategy)

	explore, ok := freeplay.Sub("Explore")
	require.True(t, ok)
	assert.Equal(t, activity.Always{}, explore.Strategy)
}

func TestBuild_DrivesScheduler(t *testing.T) {
	sys, clock := loadFreeplay(t)
	opts := scheduler.DefaultOptions()
	opts.Clock = clock
	s, err := sys.NewScheduler(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	tick := func() behavior.ID {
		s.Tick(clock.Advance(time.Second))
		return s.Running().Current
	}

	assert.Equal(t, behavior.ID("LookForFaces"), tick())

	sys.World.Set("pickedUp", true)
	s.NotifyActionQueued()
	tick()
	assert.Equal(t, scheduler.RunningState{Current: "ReactToPickup", Trigger: "PickedUp", Resume: "LookForFaces"}, s.Running())

	sys.World.Set("pickedUp", false)
	tick()
	assert.Equal(t, scheduler.RunningState{Current: "LookForFaces"}, s.Running())

	require.NoError(t, s.RequestVoiceCommand("ComeHere"))
	assert.Equal(t, behavior.ID("GoToFace"), tick())
}

const nestedYAML = `
world: {bumped: false, tired: false}
units:
  - {id: Greet, score: 0.5}
  - {id: Wave, score: 0.5}
  - {id: React, completeWhen: "!bumped"}
choosers:
  - {name: greet, units: [Greet], jitter: 0}
  - {name: wave, units: [Wave], jitter: 0}
activities:
  - id: Top
    subActivities:
      - {id: Social, activity: Inner}
  - id: Inner
    subActivities:
      - {id: Hello, chooser: greet, priority: 1, wantsToEnd: "tired"}
      - {id: Bye, chooser: wave}
triggers:
  - {kind: Bumped, unit: React, when: "bumped", canInterruptOther: true, resume: true}
`

func TestBuild_NestedActivityDrivesScheduler(t *testing.T) {
	defs, err := Parse(strings.NewReader(nestedYAML))
	require.NoError(t, err)
	clock := behavior.NewManualClock(time.Unix(1000, 0))
	sys, err := Build(defs, Options{Clock: clock, Seed: 1})
	require.NoError(t, err)
	t.Cleanup(sys.Close)
	require.Len(t, sys.TopLevel, 1)

	opts := scheduler.DefaultOptions()
	opts.Clock = clock
	opts.RequireArming = false
	s, err := sys.NewScheduler(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	tick := func() scheduler.RunningState {
		s.Tick(clock.Advance(time.Second))
		return s.Running()
	}

	for i := range 5 {
		assert.Equal(t, scheduler.RunningState{Current: "Greet"}, tick(), "tick %d", i)
		assert.Equal(t, "Social / Hello", s.Status().SubActivity)
	}

	sys.World.Set("bumped", true)
	assert.Equal(t, scheduler.RunningState{Current: "React", Trigger: "Bumped", Resume: "Greet"}, tick())

	sys.World.Set("tired", true)
	r := tick()
	assert.Equal(t, "Social / Bye", s.Status().SubActivity)
	assert.Equal(t, behavior.None, r.Resume, "a nested sub-activity switch drops the resume target")
	assert.Equal(t, behavior.ID("React"), r.Current)

	sys.World.Set("bumped", false)
	tick()
	assert.Equal(t, scheduler.RunningState{Current: "Wave"}, tick())
}

func TestParse_Empty(t *testing.T) {
	defs, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	sys, err := Build(defs, Options{})
	require.NoError(t, err)
	assert.Zero(t, sys.Units.Len())
	assert.Empty(t, sys.TopLevel)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("units:\n  - id: A\n    scroe: 1\n"))
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "scroe")
}

func TestLoad_PathInError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups: {"), 0o644))
	_, err := Load(path)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, path, ce.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBuild_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
		path string
		is   error
	}{
		{
			name: "unknown group",
			yaml: "units:\n  - {id: A, groups: [nope]}\n",
			path: "units[0].groups",
			is:   behavior.ErrUnknownGroup,
		},
		{
			name: "duplicate unit",
			yaml: "units:\n  - {id: A}\n  - {id: A}\n",
			path: "units[1].id",
			is:   behavior.ErrDuplicateUnit,
		},
		{
			name: "bad expression",
			yaml: "units:\n  - {id: A, runnable: \"1 +\"}\n",
			path: "units[0].runnable",
		},
		{
			name: "curve order",
			yaml: "units:\n  - id: A\n    runningPenalty: [{x: 2, y: 0}, {x: 1, y: 1}]\n",
			path: "units[0].runningPenalty",
			is:   behavior.ErrCurveOrder,
		},
		{
			name: "chooser unknown unit",
			yaml: "choosers:\n  - {name: c, units: [Z]}\n",
			path: "choosers[0]",
			is:   behavior.ErrUnknownUnit,
		},
		{
			name: "sub with both selectors",
			yaml: "units: [{id: A}]\nchoosers: [{name: c, units: [A]}]\nactivities:\n  - id: X\n    subActivities: [{id: s, chooser: c, activity: X}]\n",
			path: "activities[0].subActivities[0]",
			is:   errMissingSelector,
		},
		{
			name: "activity cycle",
			yaml: "activities:\n  - id: X\n    subActivities: [{id: s, activity: Y}]\n  - id: Y\n    subActivities: [{id: s, activity: X}]\n",
			is:   errActivityCycle,
		},
		{
			name: "trigger unknown unit",
			yaml: "triggers: [{kind: K, unit: Z, when: \"true\"}]\n",
			path: "triggers[0].unit",
			is:   behavior.ErrUnknownUnit,
		},
		{
			name: "trigger missing when",
			yaml: "units: [{id: A}]\ntriggers: [{kind: K, unit: A}]\n",
			path: "triggers[0].when",
			is:   errMissingCondition,
		},
		{
			name: "override unknown unit",
			yaml: "overrides:\n  voice: {ComeHere: Z}\n",
			path: "overrides.voice.ComeHere",
			is:   behavior.ErrUnknownUnit,
		},
		{
			name: "suppress unknown kind",
			yaml: "overrides:\n  uiSuppress: [K]\n",
			path: "overrides.uiSuppress[0]",
			is:   trigger.ErrUnknownKind,
		},
		{
			name: "timeline out of order",
			yaml: "timeline: [{at: 5}, {at: 2}]\n",
			path: "timeline[1].at",
		},
		{
			name: "timeline unknown capability",
			yaml: "timeline: [{at: 1, voice: Nope}]\n",
			path: "timeline[0].voice",
			is:   scheduler.ErrUnknownCapability,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defs, err := Parse(strings.NewReader(tc.yaml))
			require.NoError(t, err)
			_, err = Build(defs, Options{})
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			if tc.path != "" {
				assert.Equal(t, tc.path, ce.Path)
			}
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
		})
	}
}
