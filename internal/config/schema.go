package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// Kind is the value type an option must parse as.
type Kind string

const (
	KindString   Kind = "string"
	KindBool     Kind = "bool"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindDuration Kind = "duration"
)

// check reports whether value parses as k. Empty values are always accepted,
// and mean "unset" to the typed resolvers.
func (k Kind) check(value string) error {
	if value == "" {
		return nil
	}
	var err error
	switch k {
	case KindString, "":
	case KindBool:
		_, err = parseBool(value)
	case KindInt:
		_, err = strconv.Atoi(value)
	case KindFloat:
		_, err = strconv.ParseFloat(value, 64)
	case KindDuration:
		_, err = time.ParseDuration(value)
	default:
		return fmt.Errorf("unknown option kind %q", k)
	}
	if err != nil {
		return fmt.Errorf("expected %s, got %q", k, value)
	}
	return nil
}

// parseBool accepts true/false, 1/0, yes/no and on/off, ignoring case.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %s", s)
}

// Option declares one configuration key.
type Option struct {
	Key string
	// Section is "" for global options, otherwise the command name.
	Section     string
	Kind        Kind
	Default     string
	Description string
	// Env, when set, names an environment variable that overrides the file.
	Env string
}

// Check reports whether value is acceptable for o.
func (o Option) Check(value string) error {
	return o.Kind.check(value)
}

func (o Option) qualified() string {
	if o.Section == "" {
		return o.Key
	}
	return "[" + o.Section + "] " + o.Key
}

type optionID struct{ section, key string }

// Schema is an ordered set of options. Global options may also appear in any
// command section, where they override the global value for that command.
type Schema struct {
	options []Option
	index   map[optionID]int
}

// NewSchema returns a schema holding opts, in order.
func NewSchema(opts ...Option) *Schema {
	s := &Schema{index: make(map[optionID]int)}
	for _, o := range opts {
		s.Add(o)
	}
	return s
}

// Add registers o, replacing any option with the same section and key.
func (s *Schema) Add(o Option) {
	id := optionID{o.Section, o.Key}
	if i, ok := s.index[id]; ok {
		s.options[i] = o
		return
	}
	s.index[id] = len(s.options)
	s.options = append(s.options, o)
}

// Lookup finds key in section, falling back to the global option of the same
// name.
func (s *Schema) Lookup(section, key string) (Option, bool) {
	if i, ok := s.index[optionID{section, key}]; ok {
		return s.options[i], true
	}
	if section != "" {
		if i, ok := s.index[optionID{"", key}]; ok {
			return s.options[i], true
		}
	}
	return Option{}, false
}

// Options returns every option in registration order.
func (s *Schema) Options() []Option {
	return slices.Clone(s.options)
}

// Sections returns the sorted names of sections with their own options.
func (s *Schema) Sections() []string {
	var out []string
	for _, o := range s.options {
		if o.Section != "" && !slices.Contains(out, o.Section) {
			out = append(out, o.Section)
		}
	}
	slices.Sort(out)
	return out
}

// Resolve returns the effective value of a global key: its environment
// variable if set, then the config file, then the schema default.
func (s *Schema) Resolve(c *Config, key string) string {
	return s.ResolveIn(c, "", key)
}

// ResolveIn is Resolve for a command section. The section's value wins over
// the global one, and a section default over a global default.
func (s *Schema) ResolveIn(c *Config, section, key string) string {
	opt, known := s.Lookup(section, key)
	if known && opt.Env != "" {
		if v, ok := os.LookupEnv(opt.Env); ok {
			return v
		}
	}
	if c != nil {
		if v, ok := c.GetCommandOption(section, key); ok {
			return v
		}
	}
	return opt.Default
}

func resolveAs[T any](s *Schema, c *Config, section, key string, kind Kind, parse func(string) (T, error)) (T, error) {
	var zero T
	v := s.ResolveIn(c, section, key)
	if v == "" {
		return zero, nil
	}
	out, err := parse(v)
	if err != nil {
		return zero, fmt.Errorf("%s: expected %s, got %q", Option{Key: key, Section: section}.qualified(), kind, v)
	}
	return out, nil
}

// ResolveBool is Resolve parsed as a bool. An empty value is false.
func (s *Schema) ResolveBool(c *Config, key string) (bool, error) {
	return s.ResolveBoolIn(c, "", key)
}

// ResolveBoolIn is ResolveIn parsed as a bool.
func (s *Schema) ResolveBoolIn(c *Config, section, key string) (bool, error) {
	return resolveAs(s, c, section, key, KindBool, parseBool)
}

// ResolveInt is Resolve parsed as an int. An empty value is 0.
func (s *Schema) ResolveInt(c *Config, key string) (int, error) {
	return s.ResolveIntIn(c, "", key)
}

// ResolveIntIn is ResolveIn parsed as an int.
func (s *Schema) ResolveIntIn(c *Config, section, key string) (int, error) {
	return resolveAs(s, c, section, key, KindInt, strconv.Atoi)
}

// ResolveFloat is Resolve parsed as a float64. An empty value is 0.
func (s *Schema) ResolveFloat(c *Config, key string) (float64, error) {
	return resolveAs(s, c, "", key, KindFloat, func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	})
}

// ResolveDuration is Resolve parsed as a time.Duration. An empty value is 0.
func (s *Schema) ResolveDuration(c *Config, key string) (time.Duration, error) {
	return resolveAs(s, c, "", key, KindDuration, time.ParseDuration)
}

// Validate lists, sorted, every unknown option and every value that does not
// parse as its declared kind.
func (s *Schema) Validate(c *Config) []string {
	var issues []string
	check := func(section string, options map[string]string) {
		for key, value := range options {
			where := Option{Key: key, Section: section}.qualified()
			opt, ok := s.Lookup(section, key)
			if !ok {
				issues = append(issues, fmt.Sprintf("unknown option %s (value: %q)", where, value))
				continue
			}
			if err := opt.Kind.check(value); err != nil {
				issues = append(issues, fmt.Sprintf("%s: %v", where, err))
			}
		}
	}
	check("", c.Global)
	for section, options := range c.Commands {
		check(section, options)
	}
	slices.Sort(issues)
	return issues
}

// FormatHelp renders the schema as a table, global options first, then one
// block per section.
func (s *Schema) FormatHelp() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 8, 2, ' ', 0)
	block := func(title, section string) {
		var wrote bool
		for _, o := range s.options {
			if o.Section != section {
				continue
			}
			if !wrote {
				if b.Len() > 0 || section != "" {
					_ = w.Flush()
					b.WriteString("\n")
				}
				_, _ = fmt.Fprintf(w, "%s\n", title)
				wrote = true
			}
			var notes []string
			if o.Kind != "" && o.Kind != KindString {
				notes = append(notes, "type: "+string(o.Kind))
			}
			if o.Default != "" {
				notes = append(notes, "default: "+o.Default)
			}
			if o.Env != "" {
				notes = append(notes, "env: "+o.Env)
			}
			extra := ""
			if len(notes) > 0 {
				extra = " (" + strings.Join(notes, ", ") + ")"
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s%s\n", o.Key, o.Description, extra)
		}
	}
	block("Global Options:", "")
	for _, sec := range s.Sections() {
		block(fmt.Sprintf("[%s] Options:", sec), sec)
	}
	_ = w.Flush()
	return b.String()
}

// DefaultSchema declares every option arbiter reads.
func DefaultSchema() *Schema {
	return NewSchema(
		Option{Key: "color", Kind: KindString, Default: "auto", Description: "Color mode: auto, always, never", Env: "ARBITER_COLOR"},
		Option{Key: "behaviors.file", Kind: KindString, Default: "behaviors.yaml", Description: "Behavior definitions file", Env: "ARBITER_BEHAVIORS"},
		Option{Key: "seed", Kind: KindInt, Default: "0", Description: "Chooser jitter seed (0 seeds from the clock)", Env: "ARBITER_SEED"},

		Option{Key: "tick.interval", Kind: KindDuration, Default: "100ms", Description: "Wall-clock tick period", Env: "ARBITER_TICK_INTERVAL"},
		Option{Key: "tick.sim-step", Kind: KindDuration, Description: "Simulated time per tick (empty uses the wall clock)"},

		Option{Key: "chooser.jitter", Kind: KindFloat, Default: "0.1", Description: "Default random score jitter bound"},
		Option{Key: "chooser.continuity", Kind: KindFloat, Default: "0.1", Description: "Default bonus for the running unit"},

		Option{Key: "condition.cache-size", Kind: KindInt, Default: "1000", Description: "Compiled expression cache entries"},

		Option{Key: "scheduler.restart-on-self-interrupt", Kind: KindBool, Default: "true", Description: "Restart a reaction whose trigger fires again"},
		Option{Key: "scheduler.require-arming", Kind: KindBool, Default: "true", Description: "Skip reactions until an action is queued"},
		Option{Key: "scheduler.idempotent-lock", Kind: KindString, Default: "sdk", Description: "Lock id that may be added more than once"},
		Option{Key: "scheduler.ui-lock", Kind: KindString, Default: "bm_ui_request_game_lock", Description: "Lock id installed by UI overrides"},

		Option{Key: "telemetry.db", Kind: KindString, Description: "SQLite file recording transitions", Env: "ARBITER_TELEMETRY_DB"},
		Option{Key: "telemetry.buffer-size", Kind: KindInt, Default: "1000", Description: "In-memory transition ring size"},

		Option{Key: "log.file", Kind: KindString, Description: "Log file path (JSON output)", Env: "ARBITER_LOG_FILE"},
		Option{Key: "log.level", Kind: KindString, Default: "info", Description: "Log level: debug, info, warn, error", Env: "ARBITER_LOG_LEVEL"},
		Option{Key: "log.max-size-mb", Kind: KindInt, Default: "10", Description: "Max log file size in MB before rotation"},
		Option{Key: "log.max-files", Kind: KindInt, Default: "5", Description: "Max number of rotated log backup files"},
		Option{Key: "log.buffer-size", Kind: KindInt, Default: "1000", Description: "In-memory log buffer size (entries)"},

		Option{Section: "run", Key: "ticks", Kind: KindInt, Default: "0", Description: "Stop after this many ticks (0 runs until interrupted)"},
		Option{Section: "run", Key: "quiet", Kind: KindBool, Default: "false", Description: "Print only the final status"},
		Option{Section: "watch", Key: "history", Kind: KindInt, Default: "12", Description: "Transitions shown in the live view"},
	)
}
