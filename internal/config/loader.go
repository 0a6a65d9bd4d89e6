package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. A missing file is not an
// error: the defaults plus environment variables are used instead.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			applyEnv(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg. Environment values win
// over file values so a key never has to be written to disk.
func applyEnv(cfg *Config) {
	setString(&cfg.Providers.DeepL.APIKey, "DEEPL_API_KEY")
	setString(&cfg.Providers.Dictionary.APIKey, "MW_SD3_API_KEY")
	setString(&cfg.Storage.DataDir, "VIM_DEEPL_DATA_DIR")
	setString(&cfg.Storage.DBPath, "VIM_DEEPL_DB_PATH")
	setString(&cfg.Server.LogPath, "VIM_DEEPL_LOG_PATH")
	setString(&cfg.Server.Host, "VIM_DEEPL_HTTP_HOST")
	setInt(&cfg.Server.Port, "VIM_DEEPL_HTTP_PORT")
	setInt(&cfg.Server.HTTPTimeoutSec, "VIM_DEEPL_HTTP_TIMEOUT_SEC")

	if v := os.Getenv("VIM_DEEPL_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring non-numeric environment override", "key", key, "value", v)
		return
	}
	*dst = n
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if cfg.Server.HTTPTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("server.http_timeout_sec %d must be positive", cfg.Server.HTTPTimeoutSec))
	}

	// Trainer
	if cfg.Trainer.RecentDays <= 0 {
		errs = append(errs, fmt.Errorf("trainer.recent_days %d must be positive", cfg.Trainer.RecentDays))
	}
	if cfg.Trainer.MasteryCount <= 0 {
		errs = append(errs, fmt.Errorf("trainer.mastery_count %d must be positive", cfg.Trainer.MasteryCount))
	}
	if cfg.Trainer.RecentRatio < 0 || cfg.Trainer.RecentRatio > 1 {
		errs = append(errs, fmt.Errorf("trainer.recent_ratio %.2f is out of range [0, 1]", cfg.Trainer.RecentRatio))
	}
	if cfg.Trainer.SRSNewRatio < 0 || cfg.Trainer.SRSNewRatio > 1 {
		errs = append(errs, fmt.Errorf("trainer.srs_new_ratio %.2f is out of range [0, 1]", cfg.Trainer.SRSNewRatio))
	}
	if cfg.Trainer.HardRandomTopN <= 0 {
		errs = append(errs, fmt.Errorf("trainer.hard_random_top_n %d must be positive", cfg.Trainer.HardRandomTopN))
	}

	// Audio
	if cfg.Audio.GapSec < 0 {
		errs = append(errs, fmt.Errorf("audio.gap_sec %.2f must not be negative", cfg.Audio.GapSec))
	}

	// Provider availability warnings — missing keys degrade, not fail.
	if cfg.Providers.DeepL.APIKey == "" {
		slog.Warn("providers.deepl.api_key is empty; translation requests will fail until DEEPL_API_KEY is set")
	}
	if cfg.Providers.Dictionary.APIKey == "" {
		slog.Warn("providers.dictionary.api_key is empty; dictionary metadata will be skipped")
	}

	return errors.Join(errs...)
}
