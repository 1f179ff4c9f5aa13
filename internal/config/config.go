// Package config holds the user configuration of the daemon.
package config

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultLEDLevel is the LED brightness applied when nothing is configured.
const DefaultLEDLevel = 80

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the user configuration, read from daemon.kdl.
type Config struct {
	// EnableSniffing allows clients to Observe sources.
	EnableSniffing bool `kdl:"enable-sniffing"`

	// LEDLevel is the initial controller LED brightness (0-100).
	LEDLevel int `kdl:"led-level"`

	// Autoswitch maps rule names to window-title rules. The autoswitch
	// companion only runs when at least one rule exists.
	Autoswitch map[string]*AutoswitchRule `kdl:"autoswitch"`

	// Search directories. Empty values fall back to the XDG defaults.
	MenusDir     string `kdl:"menus-dir"`
	ProfilesDir  string `kdl:"profiles-dir"`
	CompanionDir string `kdl:"companion-dir"`

	// MetricsAddr enables the Prometheus endpoint when set.
	MetricsAddr string `kdl:"metrics-addr"`
}

// AutoswitchRule switches to Profile when a window matching Title gains
// focus.
type AutoswitchRule struct {
	Title   string `kdl:"title"`
	Profile string `kdl:"profile"`
}

// Rule is a named autoswitch rule.
type Rule struct {
	Name string
	AutoswitchRule
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		EnableSniffing: false,
		LEDLevel:       DefaultLEDLevel,
		Autoswitch:     make(map[string]*AutoswitchRule),
	}
}

// HasAutoswitch reports whether any autoswitch rule is configured.
func (c *Config) HasAutoswitch() bool {
	for _, r := range c.Autoswitch {
		if r != nil {
			return true
		}
	}
	return false
}

// Rules returns the autoswitch rules sorted by name.
func (c *Config) Rules() []Rule {
	rules := make([]Rule, 0, len(c.Autoswitch))
	for name, r := range c.Autoswitch {
		if r == nil {
			continue
		}
		rules = append(rules, Rule{Name: name, AutoswitchRule: *r})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// MenuDirs returns the menu search path, most specific last.
func (c *Config) MenuDirs() []string {
	return withDefault(DefaultDir("menus"), c.MenusDir)
}

// ProfileDirs returns the profile search path, most specific last.
func (c *Config) ProfileDirs() []string {
	return withDefault(DefaultDir("profiles"), c.ProfilesDir)
}

func withDefault(def, custom string) []string {
	var dirs []string
	if def != "" {
		dirs = append(dirs, def)
	}
	if custom != "" && custom != def {
		dirs = append(dirs, custom)
	}
	return dirs
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.LEDLevel < 0 || c.LEDLevel > 100 {
		return fmt.Errorf("%w: led-level %d out of range 0-100", ErrInvalidConfig, c.LEDLevel)
	}
	for _, r := range c.Rules() {
		if r.Profile == "" {
			return fmt.Errorf("%w: autoswitch rule %q has no profile", ErrInvalidConfig, r.Name)
		}
	}
	return nil
}
