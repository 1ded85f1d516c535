package config

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader reads the YAML config file and hands out the current Config. It
// starts out holding DefaultConfig so callers can run with no file at all.
type Loader struct {
	mu       sync.RWMutex
	cfg      *Config
	filePath string
}

// NewLoader creates a Loader pre-populated with defaults.
func NewLoader() *Loader {
	return &Loader{cfg: DefaultConfig()}
}

// Load reads and parses the config file at path, layering it over the
// defaults. Unknown keys are rejected so typos fail loudly.
func (l *Loader) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return fmt.Errorf("invalid config in %s: %w", path, err)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.filePath = path
	l.mu.Unlock()
	return nil
}

// Get returns the current config.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// FilePath returns the path of the last loaded file, or "" when running on
// defaults.
func (l *Loader) FilePath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filePath
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "rest":
		if cfg.Store.URL == "" {
			return fmt.Errorf("store.url is required for the rest driver")
		}
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}

	if cfg.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if cfg.Session.SyncInterval <= 0 {
		return fmt.Errorf("session.sync_interval must be positive")
	}
	for _, rule := range cfg.PrintRules {
		if rule.Name == "" || rule.Condition == "" {
			return fmt.Errorf("print rules need both a name and a condition")
		}
		if rule.Effect != "allow" && rule.Effect != "deny" {
			return fmt.Errorf("print rule %q has unknown effect %q", rule.Name, rule.Effect)
		}
	}
	return nil
}
