// Package config holds warren's runtime configuration, backed by viper.
// Settings come from (in increasing precedence) built-in defaults, the
// warren.yaml config file, WARREN_* environment variables, and flags.
package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// DefaultStateDir is the state directory used when none is configured.
const DefaultStateDir = ".warren"

// Config represents the complete warren configuration
type Config struct {
	// StateDir is the directory holding the shared JSON documents and
	// their lock sidecars. All coordinating processes must agree on it.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Lock    LockConfig    `mapstructure:"lock" yaml:"lock"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Claims  ClaimsConfig  `mapstructure:"claims" yaml:"claims"`
	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue"`
}

// LoggingConfig controls the structured log output
type LoggingConfig struct {
	// Enabled turns file logging on. When false, logs go to stderr.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum level to record: DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level" yaml:"level"`
}

// LockConfig controls sidecar lock acquisition
type LockConfig struct {
	// TimeoutSeconds is the acquisition deadline before failing open
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// SessionConfig controls session registry behavior
type SessionConfig struct {
	// StaleAfterMinutes is how long without a heartbeat before a
	// session is evicted (lower bound; eviction is lazy)
	StaleAfterMinutes int `mapstructure:"stale_after_minutes" yaml:"stale_after_minutes"`
	// ActiveWindowMinutes is how recently a session must have been
	// seen to count as active in listings
	ActiveWindowMinutes int `mapstructure:"active_window_minutes" yaml:"active_window_minutes"`
}

// ClaimsConfig controls task and file claim behavior
type ClaimsConfig struct {
	// Strict turns claim conflicts into hard denials instead of the
	// default advisory warnings
	Strict bool `mapstructure:"strict" yaml:"strict"`
	// FileTTLMinutes is how long since last touch before a file claim
	// is treated as abandoned and may be overwritten
	FileTTLMinutes int `mapstructure:"file_ttl_minutes" yaml:"file_ttl_minutes"`
}

// QueueConfig controls the work queue
type QueueConfig struct {
	// StaleClaimMinutes is how long a claim may sit unfinished before
	// the sweep releases the task back to available
	StaleClaimMinutes int `mapstructure:"stale_claim_minutes" yaml:"stale_claim_minutes"`
}

// LockTimeout returns the lock acquisition deadline as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Lock.TimeoutSeconds) * time.Second
}

// StaleSessionAfter returns the session staleness threshold.
func (c *Config) StaleSessionAfter() time.Duration {
	return time.Duration(c.Session.StaleAfterMinutes) * time.Minute
}

// ActiveWindow returns the active-session listing window.
func (c *Config) ActiveWindow() time.Duration {
	return time.Duration(c.Session.ActiveWindowMinutes) * time.Minute
}

// FileClaimTTL returns the file claim time-to-live.
func (c *Config) FileClaimTTL() time.Duration {
	return time.Duration(c.Claims.FileTTLMinutes) * time.Minute
}

// StaleQueueClaimAfter returns the queue stale-claim threshold.
func (c *Config) StaleQueueClaimAfter() time.Duration {
	return time.Duration(c.Queue.StaleClaimMinutes) * time.Minute
}

// Shared document paths within the state directory.

// SessionsFile returns the path of the session registry document.
func (c *Config) SessionsFile() string {
	return filepath.Join(c.StateDir, "sessions.json")
}

// TaskLocksFile returns the path of the task claim document.
func (c *Config) TaskLocksFile() string {
	return filepath.Join(c.StateDir, "task_locks.json")
}

// FileLocksFile returns the path of the file claim document.
func (c *Config) FileLocksFile() string {
	return filepath.Join(c.StateDir, "file_locks.json")
}

// QueueFile returns the path of the work queue document.
func (c *Config) QueueFile() string {
	return filepath.Join(c.StateDir, "work_queue.json")
}

// TagFile returns the path of the per-process tag side file.
func (c *Config) TagFile() string {
	return filepath.Join(c.StateDir, "current_session_tag.txt")
}

// IDFile returns the path of the per-process session id side file.
func (c *Config) IDFile() string {
	return filepath.Join(c.StateDir, "current_session_id.txt")
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		StateDir: DefaultStateDir,
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "INFO",
		},
		Lock: LockConfig{
			TimeoutSeconds: 4,
		},
		Session: SessionConfig{
			StaleAfterMinutes:   30,
			ActiveWindowMinutes: 5,
		},
		Claims: ClaimsConfig{
			Strict:         false,
			FileTTLMinutes: 10,
		},
		Queue: QueueConfig{
			StaleClaimMinutes: 30,
		},
	}
}

// SetDefaults registers the built-in defaults with viper so they apply
// even without a config file.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("state_dir", defaults.StateDir)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("lock.timeout_seconds", defaults.Lock.TimeoutSeconds)

	viper.SetDefault("session.stale_after_minutes", defaults.Session.StaleAfterMinutes)
	viper.SetDefault("session.active_window_minutes", defaults.Session.ActiveWindowMinutes)

	viper.SetDefault("claims.strict", defaults.Claims.Strict)
	viper.SetDefault("claims.file_ttl_minutes", defaults.Claims.FileTTLMinutes)

	viper.SetDefault("queue.stale_claim_minutes", defaults.Queue.StaleClaimMinutes)
}

// Load reads the configuration from viper into a Config struct
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if
// unmarshaling fails
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}
