// Package config provides YAML-based configuration loading for the AI Office client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level client configuration, loaded from config.yaml.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	State         StateConfig         `yaml:"state"`
	Polling       PollingConfig       `yaml:"polling"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Log           LogConfig           `yaml:"log"`
	User          UserConfig          `yaml:"user"`
}

// ServerConfig locates the AI Office backend.
type ServerConfig struct {
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	PushPath string `yaml:"push_path"`
}

// StateConfig locates the persistent UI-state store.
type StateConfig struct {
	Path string `yaml:"path"`
}

// PollingConfig holds refresh intervals for the polling fleet.
type PollingConfig struct {
	Channels  time.Duration `yaml:"channels"`
	Agents    time.Duration `yaml:"agents"`
	Activity  time.Duration `yaml:"activity"`
	Providers time.Duration `yaml:"providers"`
	Processes time.Duration `yaml:"processes"`
	Audit     time.Duration `yaml:"audit"`
	Console   time.Duration `yaml:"console"`
	Approvals time.Duration `yaml:"approvals"`
}

// NotificationsConfig toggles the unread beep.
type NotificationsConfig struct {
	Beep    *bool `yaml:"beep"`
	Desktop bool  `yaml:"desktop"`
}

// BeepEnabled reports whether the unread tone should play.
func (n NotificationsConfig) BeepEnabled() bool {
	return n.Beep == nil || *n.Beep
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
	OTel   bool   `yaml:"otel"`
}

// UserConfig identifies the human driving the workspace.
type UserConfig struct {
	ID string `yaml:"id"`
}

// Default polling intervals.
const (
	DefaultChannelsInterval  = 30 * time.Second
	DefaultAgentsInterval    = 30 * time.Second
	DefaultActivityInterval  = 4 * time.Second
	DefaultProvidersInterval = 60 * time.Second
	DefaultProcessesInterval = 10 * time.Second
	DefaultAuditInterval     = 15 * time.Second
	DefaultConsoleInterval   = 5 * time.Second
	DefaultApprovalsInterval = 5 * time.Second
)

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "aioffice", "config.yaml")
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if c.Server.PushPath == "" {
		c.Server.PushPath = "/ws"
	}
	if c.State.Path == "" {
		c.State.Path = defaultStatePath()
	}
	p := &c.Polling
	setDefault(&p.Channels, DefaultChannelsInterval)
	setDefault(&p.Agents, DefaultAgentsInterval)
	setDefault(&p.Activity, DefaultActivityInterval)
	setDefault(&p.Providers, DefaultProvidersInterval)
	setDefault(&p.Processes, DefaultProcessesInterval)
	setDefault(&p.Audit, DefaultAuditInterval)
	setDefault(&p.Console, DefaultConsoleInterval)
	setDefault(&p.Approvals, DefaultApprovalsInterval)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.User.ID == "" {
		c.User.ID = "user"
	}
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}

func defaultStatePath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "aioffice", "state.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "aioffice-state.db"
	}
	return filepath.Join(home, ".local", "state", "aioffice", "state.db")
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.BaseURL == "" {
		errs = append(errs, "server.base_url is required")
	} else if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "server.base_url must include scheme and host (http://...)")
	}
	if !strings.HasPrefix(c.Server.PushPath, "/") {
		errs = append(errs, "server.push_path must start with /")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Default returns a config pointing at baseURL with all defaults applied.
func Default(baseURL string) *Config {
	cfg := &Config{Server: ServerConfig{BaseURL: baseURL}}
	cfg.applyDefaults()
	return cfg
}
