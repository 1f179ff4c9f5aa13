package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
)

// FileName is the name of the configuration file inside the scc config
// directory.
const FileName = "daemon.kdl"

// ConfigDir returns $XDG_CONFIG_HOME/scc, or ~/.config/scc.
func ConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "scc")
}

// DefaultDir returns a subdirectory of ConfigDir, or "" when the home
// directory is unknown.
func DefaultDir(name string) string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name)
}

// DefaultPath returns the path of the user configuration file.
func DefaultPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, FileName)
}

// Load reads the configuration at path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses KDL configuration data on top of the defaults.
func Parse(data string) (*Config, error) {
	cfg := DefaultConfig()
	if err := kdl.Unmarshal([]byte(data), cfg); err != nil {
		return nil, err
	}
	if cfg.Autoswitch == nil {
		cfg.Autoswitch = make(map[string]*AutoswitchRule)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes a commented default configuration file.
func WriteDefault(path string) error {
	defaultKDL := `// scc-daemon configuration

// Allow clients to observe inputs without locking them.
// enable-sniffing true

led-level 80

// Profiles and menus are searched in the default directories first.
// profiles-dir "/usr/share/scc/profiles"
// menus-dir "/usr/share/scc/menus"

// Where scc-osd-daemon and scc-autoswitch-daemon live, before $PATH.
// companion-dir "/usr/lib/scc"

// metrics-addr "127.0.0.1:9117"

autoswitch {
    // browser { title "Firefox"; profile "Desktop" }
}
`
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(defaultKDL)+"\n"), 0644)
}
