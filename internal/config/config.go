// Package config reads the arbiter options file. Each line is an option name
// followed by the rest of the line as its value; '#' starts a comment and a
// [command] header scopes the following options to that command.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"
)

// Config holds the options read from a file.
type Config struct {
	Global   map[string]string
	Commands map[string]map[string]string
	// Warnings are non-fatal problems found while loading.
	Warnings []string
}

// NewConfig returns an empty configuration.
func NewConfig() *Config {
	return &Config{
		Global:   make(map[string]string),
		Commands: make(map[string]map[string]string),
	}
}

// Load reads the file named by Path.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadFromPath(path)
}

// LoadFromPath reads path. A missing file yields an empty configuration. The
// final path component must not be a symlink.
func LoadFromPath(path string) (*Config, error) {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return NewConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader parses r and checks the result against DefaultSchema. Parse
// and schema problems become Warnings; only read errors are returned.
func LoadFromReader(r io.Reader) (*Config, error) {
	p := parser{cfg: NewConfig(), seen: make(map[optionID]int)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line++
		p.parse(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	for _, issue := range DefaultSchema().Validate(p.cfg) {
		p.cfg.warn("%s", issue)
	}
	return p.cfg, nil
}

type parser struct {
	cfg     *Config
	section string
	line    int
	seen    map[optionID]int
}

func (p *parser) parse(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" || line[0] == '#' {
		return
	}

	if line[0] == '[' {
		name, ok := strings.CutSuffix(line[1:], "]")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			p.cfg.warn("line %d: malformed section header %q", p.line, line)
			return
		}
		p.section = name
		if p.cfg.Commands[name] == nil {
			p.cfg.Commands[name] = make(map[string]string)
		}
		return
	}

	name, value := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		name, value = line[:i], strings.TrimSpace(line[i:])
	}
	id := optionID{p.section, name}
	if prev, ok := p.seen[id]; ok {
		p.cfg.warn("line %d: %s already set on line %d, using the later value",
			p.line, Option{Key: name, Section: p.section}.qualified(), prev)
	}
	p.seen[id] = p.line
	p.cfg.SetCommandOption(p.section, name, value)
}

func (c *Config) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	slog.Warn("[config] " + msg)
}

// GetGlobalOption returns a global option.
func (c *Config) GetGlobalOption(name string) (string, bool) {
	v, ok := c.Global[name]
	return v, ok
}

// GetCommandOption returns the command's own value for name, falling back
// to the global option.
func (c *Config) GetCommandOption(command, name string) (string, bool) {
	if v, ok := c.Commands[command][name]; ok {
		return v, true
	}
	return c.GetGlobalOption(name)
}

// SetGlobalOption sets a global option.
func (c *Config) SetGlobalOption(name, value string) {
	c.Global[name] = value
}

// SetCommandOption sets an option for command, or a global option when
// command is empty.
func (c *Config) SetCommandOption(command, name, value string) {
	if command == "" {
		c.SetGlobalOption(name, value)
		return
	}
	if c.Commands[command] == nil {
		c.Commands[command] = make(map[string]string)
	}
	c.Commands[command][name] = value
}
