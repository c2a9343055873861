package command

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/joeycumines/go-arbiter/internal/config"
	"github.com/joeycumines/go-arbiter/internal/scheduler"
	"github.com/joeycumines/go-arbiter/internal/telemetry"
)

var (
	colorText     = lipgloss.Color("#cdd6f4")
	colorSubtext  = lipgloss.Color("#7f849c")
	colorScored   = lipgloss.Color("#a6e3a1")
	colorReaction = lipgloss.Color("#fab387")
	colorOverride = lipgloss.Color("#89b4fa")
	colorIdle     = lipgloss.Color("#bac2de")
	colorError    = lipgloss.Color("#f38ba8")
)

// styles renders CLI output for one writer.
type styles struct {
	title    lipgloss.Style
	label    lipgloss.Style
	dim      lipgloss.Style
	scored   lipgloss.Style
	reaction lipgloss.Style
	override lipgloss.Style
	idle     lipgloss.Style
	err      lipgloss.Style
	box      lipgloss.Style
}

// newStyles binds styles to w. mode is the color config value: "always",
// "never", or anything else to detect from w.
func newStyles(w io.Writer, mode string) styles {
	r := lipgloss.NewRenderer(w)
	switch strings.ToLower(mode) {
	case "never":
		r.SetColorProfile(termenv.Ascii)
	case "always":
		r.SetColorProfile(termenv.TrueColor)
	}
	return styles{
		title:    r.NewStyle().Bold(true).Foreground(colorText),
		label:    r.NewStyle().Foreground(colorSubtext),
		dim:      r.NewStyle().Foreground(colorSubtext),
		scored:   r.NewStyle().Foreground(colorScored),
		reaction: r.NewStyle().Bold(true).Foreground(colorReaction),
		override: r.NewStyle().Foreground(colorOverride),
		idle:     r.NewStyle().Foreground(colorIdle),
		err:      r.NewStyle().Foreground(colorError),
		box:      r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// forReason picks the style for the unit a transition switched to.
func (s styles) forReason(r telemetry.Reason) lipgloss.Style {
	switch r {
	case telemetry.ReasonTrigger:
		return s.reaction
	case telemetry.ReasonVoice, telemetry.ReasonUI:
		return s.override
	case telemetry.ReasonScored, telemetry.ReasonResume, telemetry.ReasonActivity:
		return s.scored
	case telemetry.ReasonActivationError, telemetry.ReasonLocked:
		return s.err
	default:
		return s.idle
	}
}

func (s styles) forState(st scheduler.State) lipgloss.Style {
	switch st {
	case scheduler.Reactionary:
		return s.reaction
	case scheduler.Scored:
		return s.scored
	default:
		return s.idle
	}
}

// transition formats one transition on a single line.
func (s styles) transition(t telemetry.Transition) string {
	var b strings.Builder
	b.WriteString(s.dim.Render(fmt.Sprintf("#%-4d %s", t.Seq, t.Time.Format("15:04:05.000"))))
	b.WriteString(" ")
	b.WriteString(s.idle.Render(t.FromID.String()))
	b.WriteString(s.dim.Render(" → "))
	b.WriteString(s.forReason(t.Reason).Render(t.ToID.String()))
	b.WriteString(" ")
	b.WriteString(s.label.Render(string(t.Reason)))
	if t.Trigger != "" {
		b.WriteString(s.reaction.Render(" [" + t.Trigger.String() + "]"))
	}
	return b.String()
}

// status formats a scheduler status as labelled fields.
func (s styles) status(st scheduler.Status) string {
	field := func(k, v string) string {
		return s.label.Render(k+": ") + v
	}
	lines := []string{
		field("tick", fmt.Sprint(st.Tick)) + "  " + field("state", s.forState(st.State).Render(st.State.String())),
		field("current", s.forState(st.State).Render(st.Running.Current.String())),
	}
	if st.Running.Reactionary() {
		lines = append(lines, field("trigger", s.reaction.Render(st.Running.Trigger.String())))
	}
	if !st.Running.Resume.IsNone() {
		lines = append(lines, field("resume", st.Running.Resume.String()))
	}
	act := st.Activity
	if st.SubActivity != "" {
		act += " / " + st.SubActivity
	}
	lines = append(lines, field("activity", act))
	if st.Spark != "" {
		spark := string(st.Spark)
		if st.SparkAge > 0 {
			spark += fmt.Sprintf(" (%s)", st.SparkAge.Truncate(time.Second))
		}
		lines = append(lines, field("spark", spark))
	}
	if st.Capability != "" {
		lines = append(lines, field("override", s.override.Render(st.Override.String()+" "+st.Capability)))
	}
	lines = append(lines, field("armed", fmt.Sprint(st.Armed)))
	return strings.Join(lines, "\n")
}

// colorMode returns the configured color mode; cfg may be nil.
func colorMode(cfg *config.Config) string {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return config.DefaultSchema().Resolve(cfg, "color")
}
