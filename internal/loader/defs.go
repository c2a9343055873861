// Package loader reads behavior definition files and builds the unit
// registry, choosers, activities, trigger registry and override table they
// describe.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joeycumines/go-arbiter/internal/behavior"
)

// Definitions is the decoded form of a behavior file.
type Definitions struct {
	Groups     []string       `yaml:"groups"`
	Units      []UnitDef      `yaml:"units"`
	Choosers   []ChooserDef   `yaml:"choosers"`
	Activities []ActivityDef  `yaml:"activities"`
	Triggers   []TriggerDef   `yaml:"triggers"`
	Overrides  OverridesDef   `yaml:"overrides"`
	World      map[string]any `yaml:"world"`
	Timeline   []StepDef      `yaml:"timeline"`
}

// UnitDef describes a data-driven unit.
type UnitDef struct {
	ID                string            `yaml:"id"`
	Class             string            `yaml:"class"`
	Groups            []string          `yaml:"groups"`
	Score             float64           `yaml:"score"`
	ScoreExpr         string            `yaml:"scoreExpr"`
	Runnable          string            `yaml:"runnable"`
	Preconditions     map[string]string `yaml:"preconditions"`
	RunFor            time.Duration     `yaml:"runFor"`
	CompleteWhen      string            `yaml:"completeWhen"`
	FailWhen          string            `yaml:"failWhen"`
	Resumable         bool              `yaml:"resumable"`
	RunningPenalty    []behavior.Point  `yaml:"runningPenalty"`
	RepetitionPenalty []behavior.Point  `yaml:"repetitionPenalty"`
}

// ChooserDef describes a scored chooser and its initial toggles.
type ChooserDef struct {
	Name          string           `yaml:"name"`
	Units         []string         `yaml:"units"`
	Jitter        *float64         `yaml:"jitter"`
	Continuity    *float64         `yaml:"continuity"`
	RunningBonus  []behavior.Point `yaml:"runningBonus"`
	EnableAll     *bool            `yaml:"enableAll"`
	DisableGroups []string         `yaml:"disableGroups"`
	EnableGroups  []string         `yaml:"enableGroups"`
	DisableNames  []string         `yaml:"disableNames"`
	EnableNames   []string         `yaml:"enableNames"`
}

// ActivityDef describes an activity and its sub-activities.
type ActivityDef struct {
	ID            string   `yaml:"id"`
	SubActivities []SubDef `yaml:"subActivities"`
}

// SubDef describes a sub-activity. Exactly one of Chooser and Activity
// names its selector.
type SubDef struct {
	ID           string        `yaml:"id"`
	Spark        string        `yaml:"spark"`
	Priority     int           `yaml:"priority"`
	Chooser      string        `yaml:"chooser"`
	Activity     string        `yaml:"activity"`
	Cooldown     time.Duration `yaml:"cooldown"`
	MaxDuration  time.Duration `yaml:"maxDuration"`
	WantsToStart string        `yaml:"wantsToStart"`
	WantsToEnd   string        `yaml:"wantsToEnd"`
}

// TriggerDef binds a reaction kind to a unit through an expression
// strategy.
type TriggerDef struct {
	Kind              string `yaml:"kind"`
	Name              string `yaml:"name"`
	Unit              string `yaml:"unit"`
	When              string `yaml:"when"`
	CanInterruptSelf  bool   `yaml:"canInterruptSelf"`
	CanInterruptOther bool   `yaml:"canInterruptOther"`
	Resume            bool   `yaml:"resume"`
}

// OverridesDef maps capability ids to units.
type OverridesDef struct {
	Voice      map[string]string `yaml:"voice"`
	UI         map[string]string `yaml:"ui"`
	UISuppress []string          `yaml:"uiSuppress"`
}

// StepDef is a scripted input applied before the tick numbered At.
type StepDef struct {
	At           uint64         `yaml:"at"`
	Set          map[string]any `yaml:"set"`
	Delete       []string       `yaml:"delete"`
	Voice        string         `yaml:"voice"`
	UI           string         `yaml:"ui"`
	Spark        *string        `yaml:"spark"`
	SoftSpark    bool           `yaml:"softSpark"`
	Activity     string         `yaml:"activity"`
	Lock         *LockDef       `yaml:"lock"`
	Unlock       string         `yaml:"unlock"`
	ActionQueued bool           `yaml:"actionQueued"`
	EndCurrent   string         `yaml:"endCurrent"`
}

// LockDef disables reaction kinds under a lock id.
type LockDef struct {
	ID          string   `yaml:"id"`
	Kinds       []string `yaml:"kinds"`
	StopCurrent bool     `yaml:"stopCurrent"`
}

// ConfigError reports a malformed or inconsistent definition. Path locates
// the offending entry, e.g. "units[2].runnable".
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "loader: " + e.Err.Error()
	}
	return fmt.Sprintf("loader: %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(path string, err error) error {
	return &ConfigError{Path: path, Err: err}
}

// Parse decodes definitions from r. Unknown fields are rejected.
func Parse(r io.Reader) (*Definitions, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var defs Definitions
	if err := dec.Decode(&defs); err != nil {
		if errors.Is(err, io.EOF) {
			return &defs, nil
		}
		return nil, configErr("", err)
	}
	return &defs, nil
}

// Load reads and decodes the definitions file at path.
func Load(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defs, err := Parse(bytes.NewReader(data))
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) && ce.Path == "" {
			ce.Path = path
		}
		return nil, err
	}
	return defs, nil
}
