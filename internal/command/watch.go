package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joeycumines/go-arbiter/internal/activity"
	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/config"
	"github.com/joeycumines/go-arbiter/internal/runner"
	"github.com/joeycumines/go-arbiter/internal/scheduler"
	"github.com/joeycumines/go-arbiter/internal/telemetry"
	"github.com/joeycumines/go-arbiter/internal/world"
)

// WatchCommand runs the scheduler under a live terminal view.
type WatchCommand struct {
	*BaseCommand
	config  *config.Config
	flags   systemFlags
	history int
	simStep time.Duration
}

// NewWatchCommand creates a new watch command.
func NewWatchCommand(cfg *config.Config) *WatchCommand {
	return &WatchCommand{
		BaseCommand: NewBaseCommand(
			"watch",
			"Run the scheduler with a live view of state, locks and transitions",
			"watch [--file path] [--interval d]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the watch command.
func (c *WatchCommand) SetupFlags(fs *flag.FlagSet) {
	c.flags.register(fs)
	fs.IntVar(&c.history, "history", 0, "Transitions to show (default: [watch] history)")
	fs.DurationVar(&c.simStep, "sim-step", 0, "Advance a simulated clock by this much per tick")
}

// Execute runs the live view until the user quits.
func (c *WatchCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}
	history := c.history
	if history <= 0 {
		n, err := config.DefaultSchema().ResolveIntIn(c.config, "watch", "history")
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		history = n
	}
	if history <= 0 {
		history = 12
	}

	live, err := startLive(c.config, liveOptions{
		flags:       c.flags,
		simStep:     c.simStep,
		captureLogs: true,
		stderr:      stderr,
	})
	if err != nil {
		return err
	}
	defer live.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := newWatchModel(live, newStyles(stdout, colorMode(c.config)), history)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithOutput(stdout), tea.WithContext(ctx))

	live.runner.Subscribe(func(s runner.Snapshot) {
		p.Send(snapshotMsg{Snapshot: s, locks: lockTable(live.sys.Triggers.Kinds(), live.sched)})
	})
	errCh := make(chan error, 1)
	go func() {
		err := live.runner.Run(ctx)
		p.Send(stoppedMsg{err: err})
		errCh <- err
	}()

	_, progErr := p.Run()
	live.runner.Stop()
	runErr := <-errCh
	if progErr != nil && progErr != tea.ErrProgramKilled {
		return progErr
	}
	return runErr
}

// lockTable returns the lock ids held per disabled kind. It must be called
// with the runner locked.
func lockTable(kinds []behavior.TriggerKind, s *scheduler.Scheduler) map[behavior.TriggerKind][]string {
	var out map[behavior.TriggerKind][]string
	for _, k := range kinds {
		if s.IsReactionTriggerEnabled(k) {
			continue
		}
		if out == nil {
			out = make(map[behavior.TriggerKind][]string)
		}
		out[k] = s.ReactionLocks(k)
	}
	return out
}

type snapshotMsg struct {
	runner.Snapshot
	locks map[behavior.TriggerKind][]string
}

type stoppedMsg struct{ err error }

type actionMsg struct {
	label string
	err   error
}

// doer is the part of runner.Runner the view drives.
type doer interface {
	Do(fn func(s *scheduler.Scheduler, bb *world.Blackboard))
}

type watchModel struct {
	run     doer
	ring    *telemetry.Ring
	logs    *telemetry.LogHandler
	sty     styles
	history int

	snap    snapshotMsg
	started bool
	stopped bool
	err     error
	notice  string
	width   int

	voice      []string
	ui         []string
	uiIdx      int
	sparks     []activity.Spark
	sparkIdx   int
	activities []string
	actIdx     int
}

func newWatchModel(live *liveSystem, sty styles, history int) watchModel {
	m := watchModel{
		run:        live.runner,
		ring:       live.ring,
		logs:       live.logs,
		sty:        sty,
		history:    history,
		voice:      slices.Sorted(maps.Keys(live.sys.Overrides.Voice)),
		ui:         slices.Sorted(maps.Keys(live.sys.Overrides.UI)),
		activities: live.sched.Activities(),
	}
	seen := map[activity.Spark]bool{activity.NoSpark: true}
	m.sparks = []activity.Spark{activity.NoSpark}
	for _, a := range live.sys.TopLevel {
		for _, sp := range a.Sparks() {
			if !seen[sp] {
				seen[sp] = true
				m.sparks = append(m.sparks, sp)
			}
		}
	}
	return m
}

func (m watchModel) Init() tea.Cmd { return nil }

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snap = msg
		m.started = true
		if len(msg.Errors) > 0 {
			m.notice = msg.Errors[len(msg.Errors)-1].Error()
		}
		return m, nil

	case stoppedMsg:
		m.stopped = true
		m.err = msg.err
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.notice = msg.label + ": " + msg.err.Error()
		} else {
			m.notice = msg.label
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "n":
		return m, m.do("action queued", func(s *scheduler.Scheduler) error {
			s.NotifyActionQueued()
			return nil
		})
	case "e":
		return m, m.do("ended current unit", func(s *scheduler.Scheduler) error {
			s.EndCurrentImmediately("watch")
			return nil
		})
	case "s":
		if len(m.sparks) < 2 {
			return m, nil
		}
		m.sparkIdx = (m.sparkIdx + 1) % len(m.sparks)
		spark := m.sparks[m.sparkIdx]
		return m, m.do("spark "+sparkLabel(spark), func(s *scheduler.Scheduler) error {
			s.RequestSpark(spark, false)
			return nil
		})
	case "u":
		if len(m.ui) == 0 {
			return m, nil
		}
		capability := m.ui[m.uiIdx]
		m.uiIdx = (m.uiIdx + 1) % len(m.ui)
		return m, m.do("ui "+capability, func(s *scheduler.Scheduler) error {
			return s.RequestUIBehavior(capability)
		})
	case "a":
		if len(m.activities) < 2 {
			return m, nil
		}
		m.actIdx = (m.actIdx + 1) % len(m.activities)
		id := m.activities[m.actIdx]
		return m, m.do("activity "+id, func(s *scheduler.Scheduler) error {
			return s.SetActivity(id)
		})
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(m.voice) {
		capability := m.voice[n-1]
		return m, m.do("voice "+capability, func(s *scheduler.Scheduler) error {
			return s.RequestVoiceCommand(capability)
		})
	}
	return m, nil
}

// do runs fn on a command goroutine, so the tick loop never waits on the
// view while holding the runner lock.
func (m watchModel) do(label string, fn func(s *scheduler.Scheduler) error) tea.Cmd {
	run := m.run
	return func() tea.Msg {
		var err error
		run.Do(func(s *scheduler.Scheduler, _ *world.Blackboard) { err = fn(s) })
		return actionMsg{label: label, err: err}
	}
}

func sparkLabel(s activity.Spark) string {
	if s == activity.NoSpark {
		return "(none)"
	}
	return string(s)
}

func (m watchModel) View() string {
	sty := m.sty
	var sections []string

	header := sty.title.Render("arbiter watch")
	switch {
	case m.stopped && m.err != nil:
		header += "  " + sty.err.Render("stopped: "+m.err.Error())
	case m.stopped:
		header += "  " + sty.dim.Render("stopped")
	case !m.started:
		header += "  " + sty.dim.Render("waiting for first tick")
	}
	sections = append(sections, header)

	if m.started {
		sections = append(sections, sty.box.Render(sty.status(m.snap.Status)))
	}

	if len(m.snap.locks) > 0 {
		var lines []string
		for _, k := range slices.Sorted(maps.Keys(m.snap.locks)) {
			lines = append(lines, sty.reaction.Render(k.String())+" "+sty.err.Render(strings.Join(m.snap.locks[k], ",")))
		}
		sections = append(sections, sty.label.Render("locked reactions")+"\n"+strings.Join(lines, "\n"))
	}

	recent := m.ring.Recent(m.history)
	var tl []string
	for i := len(recent) - 1; i >= 0; i-- {
		tl = append(tl, sty.transition(recent[i]))
	}
	if len(tl) == 0 {
		tl = append(tl, sty.dim.Render("no transitions yet"))
	}
	sections = append(sections, sty.label.Render("recent transitions")+"\n"+strings.Join(tl, "\n"))

	if entries := m.recentLogs(3); len(entries) > 0 {
		var ll []string
		for _, e := range entries {
			ll = append(ll, sty.dim.Render(e.Time.Format("15:04:05")+" "+e.Level.String()+" "+e.Message))
		}
		sections = append(sections, strings.Join(ll, "\n"))
	}

	if m.notice != "" {
		sections = append(sections, sty.override.Render(m.notice))
	}
	sections = append(sections, sty.dim.Render(m.helpLine()))

	view := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if m.width > 0 {
		view = lipgloss.NewStyle().MaxWidth(m.width).Render(view)
	}
	return view
}

func (m watchModel) recentLogs(n int) []telemetry.LogEntry {
	if m.logs == nil {
		return nil
	}
	return m.logs.Recent(n)
}

func (m watchModel) helpLine() string {
	parts := []string{"q quit", "n queue action", "e end current"}
	if len(m.sparks) > 1 {
		parts = append(parts, "s spark")
	}
	if len(m.activities) > 1 {
		parts = append(parts, "a activity")
	}
	if len(m.ui) > 0 {
		parts = append(parts, "u ui "+m.ui[m.uiIdx])
	}
	for i, v := range m.voice {
		if i >= 9 {
			break
		}
		parts = append(parts, fmt.Sprintf("%d %s", i+1, v))
	}
	return strings.Join(parts, " · ")
}
