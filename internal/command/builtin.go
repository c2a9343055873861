package command

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/joeycumines/go-arbiter/internal/config"
)

var errUnexpectedArgs = errors.New("unexpected arguments")

func rejectArgs(args []string, stderr io.Writer) error {
	if len(args) == 0 {
		return nil
	}
	_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
	return errUnexpectedArgs
}

// HelpCommand lists commands, or describes one command and its flags.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand("help", "Display help information for commands", "help [command]"),
		registry:    registry,
	}
}

func (c *HelpCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stdout, "arbiter - arbitrate robot behaviors, reactions and overrides from a definitions file\n\n")
		_, _ = fmt.Fprint(stdout, "Usage: arbiter <command> [options] [args...]\n\nAvailable commands:\n")
		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, name := range c.registry.List() {
			if cmd, err := c.registry.Get(name); err == nil {
				_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, cmd.Description())
			}
		}
		_ = w.Flush()
		_, _ = fmt.Fprint(stdout, "\nRun 'arbiter help <command>' for its flags.\n")
		return nil
	}

	cmd, err := c.registry.Get(args[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Usage: arbiter %s\n\n%s\n", cmd.Usage(), cmd.Description())

	var flags strings.Builder
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(&flags)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	if flags.Len() > 0 {
		_, _ = fmt.Fprintf(stdout, "\nFlags:\n%s", flags.String())
	}
	return nil
}

// VersionCommand prints the build version.
type VersionCommand struct {
	*BaseCommand
	version string
}

func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand("version", "Display version information", "version"),
		version:     version,
	}
}

func (c *VersionCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "arbiter version %s\n", c.version)
	return nil
}

// ConfigCommand reads and writes options in the config file. Values are
// checked against the schema before they are written.
type ConfigCommand struct {
	*BaseCommand
	config     *config.Config
	configPath string
	section    string
	showGlobal bool
	showAll    bool
}

// NewConfigCommand creates the config command. An optional configPath pins
// where `config <key> <value>` persists; otherwise config.Path is used.
func NewConfigCommand(cfg *config.Config, configPath ...string) *ConfigCommand {
	c := &ConfigCommand{
		BaseCommand: NewBaseCommand("config", "Manage configuration settings", "config [options] [key [value] | validate | schema | path]"),
		config:      cfg,
	}
	if len(configPath) > 0 {
		c.configPath = configPath[0]
	}
	return c
}

func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.showGlobal, "global", false, "Show only global configuration")
	fs.BoolVar(&c.showAll, "all", false, "Show all configuration (global and command-specific)")
	fs.StringVar(&c.section, "section", "", "Get or set the option in this command's [section]")
}

func (c *ConfigCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if c.config == nil {
		c.config = config.NewConfig()
	}
	schema := config.DefaultSchema()

	switch {
	case len(args) == 0 && c.showAll:
		_, _ = fmt.Fprintln(stdout, "Global configuration:")
		printOptions(stdout, "  ", c.config.Global)
		_, _ = fmt.Fprintln(stdout, "\nCommand-specific configuration:")
		for _, name := range slices.Sorted(maps.Keys(c.config.Commands)) {
			_, _ = fmt.Fprintf(stdout, "  [%s]\n", name)
			printOptions(stdout, "    ", c.config.Commands[name])
		}
		return nil
	case len(args) == 0 && c.showGlobal:
		_, _ = fmt.Fprintln(stdout, "Global configuration:")
		printOptions(stdout, "  ", c.config.Global)
		return nil
	case len(args) == 0:
		_, _ = fmt.Fprint(stdout, `Configuration management:
  config <key>                     Get the effective value (env, file, default)
  config <key> <value>             Set a value and write it to the config file
  config --section run <key> ...   Scope get/set to a command section
  config --global | --all          Show the loaded configuration
  config validate                  Check the configuration against the schema
  config schema                    List every option
  config path                      Print the config file location
`)
		return nil
	}

	switch args[0] {
	case "validate":
		return c.validate(schema, stdout)
	case "schema":
		_, _ = fmt.Fprint(stdout, schema.FormatHelp())
		return nil
	case "path":
		path, err := c.path()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, path)
		return nil
	}

	key := args[0]
	label := key
	if c.section != "" {
		label = "[" + c.section + "] " + key
	}

	switch len(args) {
	case 1:
		value := schema.ResolveIn(c.config, c.section, key)
		_, set := c.config.GetCommandOption(c.section, key)
		if _, known := schema.Lookup(c.section, key); value == "" && !set && !known {
			_, _ = fmt.Fprintf(stdout, "Configuration key '%s' not found\n", label)
			return nil
		}
		_, _ = fmt.Fprintf(stdout, "%s: %s\n", label, value)
		return nil

	case 2:
		value := args[1]
		if opt, known := schema.Lookup(c.section, key); !known {
			_, _ = fmt.Fprintf(stderr, "Warning: %s is not a known option\n", label)
		} else if err := opt.Check(value); err != nil {
			_, _ = fmt.Fprintf(stderr, "Invalid value for %s: %v\n", label, err)
			return fmt.Errorf("invalid value for %s: %w", label, err)
		}
		c.config.SetCommandOption(c.section, key, value)

		if path, err := c.path(); err == nil {
			if err := config.SetOption(path, c.section, key, value); err != nil {
				_, _ = fmt.Fprintf(stderr, "Warning: failed to persist config to disk: %v\n", err)
			}
		}
		_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", label, value)
		return nil
	}

	_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
	return errors.New("invalid arguments")
}

func (c *ConfigCommand) path() (string, error) {
	if c.configPath != "" {
		return c.configPath, nil
	}
	return config.Path()
}

func printOptions(w io.Writer, indent string, options map[string]string) {
	for _, key := range slices.Sorted(maps.Keys(options)) {
		_, _ = fmt.Fprintf(w, "%s%s: %s\n", indent, key, options[key])
	}
}

func (c *ConfigCommand) validate(schema *config.Schema, stdout io.Writer) error {
	var issues []string
	for _, w := range c.config.Warnings {
		if strings.HasPrefix(w, "line ") {
			issues = append(issues, w)
		}
	}
	issues = append(issues, schema.Validate(c.config)...)
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	return nil
}

// InitCommand writes a starter configuration file.
type InitCommand struct {
	*BaseCommand
	force bool
}

func NewInitCommand() *InitCommand {
	return &InitCommand{
		BaseCommand: NewBaseCommand("init", "Write a starter configuration file", "init [--force]"),
	}
}

func (c *InitCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "Overwrite an existing configuration file")
}

func (c *InitCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}
	path, err := config.Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil && !c.force {
		_, _ = fmt.Fprintf(stdout, "Configuration already exists at: %s\n", path)
		_, _ = fmt.Fprintln(stdout, "Use --force to overwrite existing configuration")
		return nil
	}

	if _, err := config.EnsureDir(); err != nil {
		return err
	}
	if err := config.WriteFileAtomic(path, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	written, err := config.LoadFromPath(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Warning: failed to load created config: %v\n", err)
	} else {
		if n := len(written.Warnings); n > 0 {
			_, _ = fmt.Fprintf(stderr, "Warning: created config has %d issue(s)\n", n)
		}
		_, _ = fmt.Fprintf(stdout, "Behavior definitions will be read from: %s\n",
			config.DefaultSchema().Resolve(written, "behaviors.file"))
	}
	_, _ = fmt.Fprintf(stdout, "Initialized arbiter configuration at: %s\n", path)
	return nil
}

const defaultConfig = `# arbiter configuration
# Each line is an option name followed by its value. [command] sections
# override options for one command. Run 'arbiter config schema' for all of them.

color auto
behaviors.file behaviors.yaml

tick.interval 100ms
# tick.sim-step 1s

chooser.jitter 0.1
chooser.continuity 0.1

scheduler.restart-on-self-interrupt true
scheduler.require-arming true

# telemetry.db arbiter.db
# log.file arbiter.log
log.level info

[run]
ticks 0

[watch]
history 12
`
