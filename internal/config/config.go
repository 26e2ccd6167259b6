// Package config loads drift configuration from file, environment and
// defaults, in that order of increasing precedence for the environment.
//
// The file is YAML, found at the path given explicitly, or at
// $XDG_CONFIG_HOME/drift/config.yaml, or ~/.config/drift/config.yaml.
// Environment variables use the DRIFT_ prefix with underscores, e.g.
// DRIFT_SYNC_WIFI_ONLY=true.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full drift configuration tree.
type Config struct {
	UserID       string `mapstructure:"user_id" yaml:"user_id"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Daemon    DaemonConfig    `mapstructure:"daemon" yaml:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
}

// RemoteConfig points at the sync API.
type RemoteConfig struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token,omitempty"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	MaxRetries       int           `mapstructure:"max_retries" yaml:"max_retries"`
	AutoSyncInterval time.Duration `mapstructure:"auto_sync_interval" yaml:"auto_sync_interval"`
	BaseBackoff      time.Duration `mapstructure:"base_backoff" yaml:"base_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	SyncTimeout      time.Duration `mapstructure:"sync_timeout" yaml:"sync_timeout"`
	PoorSyncTimeout  time.Duration `mapstructure:"poor_sync_timeout" yaml:"poor_sync_timeout"`
	WifiOnly         bool          `mapstructure:"wifi_only" yaml:"wifi_only"`
}

// NetworkConfig tunes the network monitor.
type NetworkConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// PolicyFile optionally points at a TOML quality policy.
	PolicyFile string `mapstructure:"policy_file" yaml:"policy_file,omitempty"`
}

// DaemonConfig tunes background-mode logging.
type DaemonConfig struct {
	LogFile       string `mapstructure:"log_file" yaml:"log_file,omitempty"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days" yaml:"log_max_age_days"`
}

// DashboardConfig tunes the local status dashboard.
type DashboardConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		UserID:       "local",
		DatabasePath: defaultDatabasePath(),
		Sync: SyncConfig{
			MaxRetries:       3,
			AutoSyncInterval: 5 * time.Minute,
			BaseBackoff:      2 * time.Second,
			MaxBackoff:       5 * time.Minute,
			SyncTimeout:      30 * time.Second,
			PoorSyncTimeout:  10 * time.Second,
		},
		Network: NetworkConfig{
			PollInterval: 30 * time.Second,
		},
		Daemon: DaemonConfig{
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
			LogMaxAgeDays: 14,
		},
		Dashboard: DashboardConfig{
			Addr: "localhost:8421",
		},
	}
}

// Validate checks the loaded configuration for values the engine cannot
// work with.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id cannot be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path cannot be empty")
	}
	if c.Sync.MaxRetries <= 0 {
		return fmt.Errorf("sync.max_retries must be positive (got %d)", c.Sync.MaxRetries)
	}
	if c.Sync.AutoSyncInterval <= 0 {
		return fmt.Errorf("sync.auto_sync_interval must be positive (got %v)", c.Sync.AutoSyncInterval)
	}
	if c.Sync.BaseBackoff <= 0 || c.Sync.MaxBackoff < c.Sync.BaseBackoff {
		return fmt.Errorf("sync backoff range is invalid (%v..%v)", c.Sync.BaseBackoff, c.Sync.MaxBackoff)
	}
	return nil
}

// Loader reads configuration and watches it for changes.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a loader. path, when non-empty, names an explicit
// config file; otherwise the standard locations are searched and a
// missing file is not an error.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "drift"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "drift"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DRIFT")
	v.AutomaticEnv()
	bindEnvKeys(v)

	setDefaults(v, Default())
	return &Loader{v: v}
}

// Load reads the configuration. An explicit file that does not exist is
// an error; a missing file in the search path falls back to defaults.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch re-reads the file on change and invokes fn with the fresh
// configuration. Unparseable or invalid edits are reported to fn as an
// error with a nil config; the previous configuration stays in effect.
func (l *Loader) Watch(fn func(*Config, error)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg := &Config{}
		if err := l.v.Unmarshal(cfg); err != nil {
			fn(nil, fmt.Errorf("failed to parse config: %w", err))
			return
		}
		if err := cfg.Validate(); err != nil {
			fn(nil, err)
			return
		}
		fn(cfg, nil)
	})
	l.v.WatchConfig()
}

// ConfigFileUsed returns the resolved file path, empty when running on
// defaults only.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// WriteDefault renders the built-in configuration as YAML to path,
// refusing to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	d := Default()
	// Durations render as strings ("5m0s"), not nanosecond integers.
	doc := map[string]any{
		"user_id":       d.UserID,
		"database_path": d.DatabasePath,
		"remote": map[string]any{
			"base_url":   d.Remote.BaseURL,
			"auth_token": d.Remote.AuthToken,
		},
		"sync": map[string]any{
			"max_retries":        d.Sync.MaxRetries,
			"auto_sync_interval": d.Sync.AutoSyncInterval.String(),
			"base_backoff":       d.Sync.BaseBackoff.String(),
			"max_backoff":        d.Sync.MaxBackoff.String(),
			"sync_timeout":       d.Sync.SyncTimeout.String(),
			"poor_sync_timeout":  d.Sync.PoorSyncTimeout.String(),
			"wifi_only":          d.Sync.WifiOnly,
		},
		"network": map[string]any{
			"poll_interval": d.Network.PollInterval.String(),
			"policy_file":   d.Network.PolicyFile,
		},
		"daemon": map[string]any{
			"log_file":         d.Daemon.LogFile,
			"log_max_size_mb":  d.Daemon.LogMaxSizeMB,
			"log_max_backups":  d.Daemon.LogMaxBackups,
			"log_max_age_days": d.Daemon.LogMaxAgeDays,
		},
		"dashboard": map[string]any{
			"addr": d.Dashboard.Addr,
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}
	header := "# drift configuration. Environment variables with the DRIFT_ prefix\n# override any value here, e.g. DRIFT_SYNC_WIFI_ONLY=true.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "drift.db"
	}
	return filepath.Join(home, ".local", "share", "drift", "drift.db")
}

// setDefaults registers every default so viper's Unmarshal sees the full
// tree even with no file present.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("user_id", d.UserID)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.auth_token", d.Remote.AuthToken)
	v.SetDefault("sync.max_retries", d.Sync.MaxRetries)
	v.SetDefault("sync.auto_sync_interval", d.Sync.AutoSyncInterval)
	v.SetDefault("sync.base_backoff", d.Sync.BaseBackoff)
	v.SetDefault("sync.max_backoff", d.Sync.MaxBackoff)
	v.SetDefault("sync.sync_timeout", d.Sync.SyncTimeout)
	v.SetDefault("sync.poor_sync_timeout", d.Sync.PoorSyncTimeout)
	v.SetDefault("sync.wifi_only", d.Sync.WifiOnly)
	v.SetDefault("network.poll_interval", d.Network.PollInterval)
	v.SetDefault("network.policy_file", d.Network.PolicyFile)
	v.SetDefault("daemon.log_file", d.Daemon.LogFile)
	v.SetDefault("daemon.log_max_size_mb", d.Daemon.LogMaxSizeMB)
	v.SetDefault("daemon.log_max_backups", d.Daemon.LogMaxBackups)
	v.SetDefault("daemon.log_max_age_days", d.Daemon.LogMaxAgeDays)
	v.SetDefault("dashboard.addr", d.Dashboard.Addr)
}

// bindEnvKeys maps nested keys to DRIFT_ environment variables, since
// AutomaticEnv alone does not see keys it has never been asked about.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"user_id", "database_path",
		"remote.base_url", "remote.auth_token",
		"sync.max_retries", "sync.auto_sync_interval", "sync.base_backoff",
		"sync.max_backoff", "sync.sync_timeout", "sync.poor_sync_timeout",
		"sync.wifi_only",
		"network.poll_interval", "network.policy_file",
		"daemon.log_file", "daemon.log_max_size_mb", "daemon.log_max_backups",
		"daemon.log_max_age_days",
		"dashboard.addr",
	} {
		env := "DRIFT_" + envKey(key)
		_ = v.BindEnv(key, env)
	}
}

func envKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '.' {
			c = '_'
		}
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
