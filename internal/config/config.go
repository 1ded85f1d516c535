package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "1s" or
// "500ms". Bare integers are read as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		var secs int64
		if err := node.Decode(&secs); err != nil {
			return fmt.Errorf("invalid duration at line %d: %w", node.Line, err)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration at line %d: %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level PrintWarden configuration.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Store      StoreConfig       `yaml:"store"`
	Spooler    SpoolerConfig     `yaml:"spooler"`
	Monitor    MonitorConfig     `yaml:"monitor"`
	Session    SessionConfig     `yaml:"session"`
	Pricing    PricingConfig     `yaml:"pricing"`
	Recovery   RecoveryConfig    `yaml:"recovery"`
	KillSwitch KillSwitchConfig  `yaml:"kill_switch"`
	Alerts     AlertsConfig      `yaml:"alerts"`
	PrintRules []PrintRuleConfig `yaml:"print_rules"`
}

// ServerConfig configures the local status API and event feed.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	CORS     bool   `yaml:"cors"`
	LogLevel string `yaml:"log_level"`
}

// StoreConfig selects and configures the budget store backend.
type StoreConfig struct {
	Driver    string   `yaml:"driver"` // "rest" or "sqlite"
	URL       string   `yaml:"url"`
	AuthToken string   `yaml:"auth_token"`
	Path      string   `yaml:"path"` // sqlite file for the sqlite driver
	Timeout   Duration `yaml:"timeout"`
}

// SpoolerConfig configures the print subsystem adapter.
type SpoolerConfig struct {
	Driver         string   `yaml:"driver"` // only "cups" is built in
	CommandTimeout Duration `yaml:"command_timeout"`
}

// MonitorConfig configures the print monitor.
type MonitorConfig struct {
	PollInterval Duration `yaml:"poll_interval"`

	// PrinterPause enables the queue-level pause around each batch of new
	// jobs. Disabling it falls back to per-job pause only.
	PrinterPause bool `yaml:"printer_pause"`
}

// SessionConfig configures the countdown timer.
type SessionConfig struct {
	SyncInterval   Duration `yaml:"sync_interval"`
	WarnThresholds []int    `yaml:"warn_thresholds"` // seconds remaining, descending
}

// PricingConfig sets the fallback per-page prices used when the remote
// metadata document is unreachable.
type PricingConfig struct {
	DefaultBlackWhite float64 `yaml:"default_black_white"`
	DefaultColor      float64 `yaml:"default_color"`
}

// RecoveryConfig configures the paused-printers journal.
type RecoveryConfig struct {
	JournalPath string `yaml:"journal_path"`
}

// KillSwitchConfig configures the operator forced-logout sentinel.
type KillSwitchConfig struct {
	SentinelPath string `yaml:"sentinel_path"`
}

// AlertsConfig configures administrator alert delivery.
type AlertsConfig struct {
	Webhook WebhookAlertConfig `yaml:"webhook"`
}

// WebhookAlertConfig configures the generic webhook alert channel.
type WebhookAlertConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// PrintRuleConfig is one operator-defined print rule. The condition is a CEL
// expression over the job and session; a matching "deny" rule cancels the
// job before the budget is consulted.
type PrintRuleConfig struct {
	Name      string `yaml:"name"`
	Condition string `yaml:"condition"`
	Effect    string `yaml:"effect"` // allow, deny
	Message   string `yaml:"message"`
}

// DefaultConfig returns a config with sensible defaults for zero-config
// startup on a single-printer kiosk.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     6878,
			CORS:     false,
			LogLevel: "info",
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			Path:    "./printwarden.db",
			Timeout: Duration(10 * time.Second),
		},
		Spooler: SpoolerConfig{
			Driver:         "cups",
			CommandTimeout: Duration(5 * time.Second),
		},
		Monitor: MonitorConfig{
			PollInterval: Duration(time.Second),
			PrinterPause: true,
		},
		Session: SessionConfig{
			SyncInterval:   Duration(60 * time.Second),
			WarnThresholds: []int{300, 60},
		},
		Pricing: PricingConfig{
			DefaultBlackWhite: 1.0,
			DefaultColor:      2.0,
		},
		Recovery: RecoveryConfig{
			JournalPath: "./printwarden-recovery.db",
		},
		KillSwitch: KillSwitchConfig{
			SentinelPath: "./STOP_SESSION",
		},
	}
}
