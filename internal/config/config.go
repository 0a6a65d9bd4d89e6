// Package config provides the configuration schema, loader, and file watcher
// for the vim-deepl vocabulary server.
package config

import (
	"os"
	"path/filepath"
)

// LogLevel controls log verbosity for the vim-deepl server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for vim-deepl.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// environment variables override file values.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Providers ProvidersConfig `yaml:"providers"`
	Trainer   TrainerConfig   `yaml:"trainer"`
	Audio     AudioConfig     `yaml:"audio"`
}

// ServerConfig holds network and logging settings for the vim-deepl server.
type ServerConfig struct {
	// Host is the interface the HTTP server binds to.
	Host string `yaml:"host"`

	// Port is the TCP port the HTTP server listens on.
	Port int `yaml:"port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogPath is the log file location. Empty means <data_dir>/vim-deepl.log.
	LogPath string `yaml:"log_path"`

	// HTTPTimeoutSec bounds outbound provider calls, in seconds.
	HTTPTimeoutSec int `yaml:"http_timeout_sec"`
}

// StorageConfig locates the data directory and the vocabulary database.
type StorageConfig struct {
	// DataDir is the root for all persisted state (database, audio cache,
	// logs). Empty means $XDG_DATA_HOME/vim-deepl or ~/.local/share/vim-deepl.
	DataDir string `yaml:"data_dir"`

	// DBPath is the SQLite database file. Empty means <data_dir>/vocab.db.
	DBPath string `yaml:"db_path"`
}

// ProvidersConfig holds credentials and endpoints for the external services.
type ProvidersConfig struct {
	DeepL      ProviderEntry `yaml:"deepl"`
	Dictionary ProviderEntry `yaml:"dictionary"`
}

// ProviderEntry is the common configuration block shared by both providers.
type ProviderEntry struct {
	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// Endpoint overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	Endpoint string `yaml:"endpoint"`
}

// TrainerConfig tunes word selection for training sessions.
type TrainerConfig struct {
	// RecentDays is the age boundary between the recent and old pools.
	RecentDays int `yaml:"recent_days"`

	// MasteryCount is the lookup count at which a word is considered mastered
	// and leaves the fallback rotation.
	MasteryCount int `yaml:"mastery_count"`

	// RecentRatio is the probability of drawing from the recent pool.
	RecentRatio float64 `yaml:"recent_ratio"`

	// SRSNewRatio is the probability of introducing a new card when no card
	// is due.
	SRSNewRatio float64 `yaml:"srs_new_ratio"`

	// HardRandomTopN is the size of the top slice sampled when picking a
	// hard card.
	HardRandomTopN int `yaml:"hard_random_top_n"`
}

// AudioConfig controls pronunciation playback on the server host.
type AudioConfig struct {
	// PlayServer enables playback through a local media player. When false,
	// audio requests only ensure the clip is cached.
	PlayServer *bool `yaml:"play_server"`

	// GapSec is the pause between the two plays of a clip, in seconds.
	GapSec float64 `yaml:"gap_sec"`

	// PulseServer is the PULSE_SERVER value exported to the player process.
	// Empty means unix:/tmp/pulse-native.
	PulseServer string `yaml:"pulse_server"`

	// Volume, when non-empty, is applied to the default sink via pactl
	// before playback (e.g. "60%").
	Volume string `yaml:"volume"`
}

// PlayServerEnabled reports whether server-side playback is on. Unset means on.
func (a AudioConfig) PlayServerEnabled() bool {
	return a.PlayServer == nil || *a.PlayServer
}

// Default returns a Config with every tunable at its built-in default.
// Paths that depend on the data directory are resolved in [Load].
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8787,
			LogLevel:       LogInfo,
			HTTPTimeoutSec: 25,
		},
		Trainer: TrainerConfig{
			RecentDays:     7,
			MasteryCount:   7,
			RecentRatio:    0.7,
			SRSNewRatio:    0.2,
			HardRandomTopN: 5,
		},
		Audio: AudioConfig{
			GapSec:      1.0,
			PulseServer: "unix:/tmp/pulse-native",
		},
	}
}

// DefaultDataDir resolves the platform data directory for vim-deepl:
// $XDG_DATA_HOME/vim-deepl when set, otherwise ~/.local/share/vim-deepl.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "vim-deepl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "vim-deepl")
	}
	return filepath.Join(home, ".local", "share", "vim-deepl")
}

// DBPath returns the resolved database file path.
func (c *Config) DBPath() string {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath
	}
	return filepath.Join(c.DataDir(), "vocab.db")
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DefaultDataDir()
}

// AudioCacheDir returns the directory holding cached pronunciation clips.
func (c *Config) AudioCacheDir() string {
	return filepath.Join(c.DataDir(), "mw_audio")
}

// LogPath returns the resolved log file path.
func (c *Config) LogPath() string {
	if c.Server.LogPath != "" {
		return c.Server.LogPath
	}
	return filepath.Join(c.DataDir(), "vim-deepl.log")
}
