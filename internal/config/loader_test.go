package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8787 {
		t.Errorf("server defaults = %s:%d, want 127.0.0.1:8787", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.HTTPTimeoutSec != 25 {
		t.Errorf("http_timeout_sec = %d, want 25", cfg.Server.HTTPTimeoutSec)
	}
	if cfg.Trainer.RecentDays != 7 || cfg.Trainer.MasteryCount != 7 {
		t.Errorf("trainer defaults = %+v", cfg.Trainer)
	}
	if cfg.Trainer.RecentRatio != 0.7 || cfg.Trainer.SRSNewRatio != 0.2 || cfg.Trainer.HardRandomTopN != 5 {
		t.Errorf("trainer ratios = %+v", cfg.Trainer)
	}
	if !cfg.Audio.PlayServerEnabled() {
		t.Error("play_server should default to enabled")
	}
	if cfg.Audio.PulseServer != "unix:/tmp/pulse-native" {
		t.Errorf("pulse_server = %q", cfg.Audio.PulseServer)
	}
}

func TestLoadFromReaderYAML(t *testing.T) {
	in := `
server:
  host: 0.0.0.0
  port: 9000
  log_level: debug
trainer:
  recent_days: 14
audio:
  play_server: false
  volume: "60%"
`
	cfg, err := LoadFromReader(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Errorf("server = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Trainer.RecentDays != 14 {
		t.Errorf("recent_days = %d, want 14", cfg.Trainer.RecentDays)
	}
	// Unset trainer fields keep their defaults.
	if cfg.Trainer.MasteryCount != 7 {
		t.Errorf("mastery_count = %d, want 7", cfg.Trainer.MasteryCount)
	}
	if cfg.Audio.PlayServerEnabled() {
		t.Error("play_server: false should disable playback")
	}
	if cfg.Audio.Volume != "60%" {
		t.Errorf("volume = %q", cfg.Audio.Volume)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  prot: 9000\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEEPL_API_KEY", "dk-test")
	t.Setenv("VIM_DEEPL_HTTP_PORT", "9191")
	t.Setenv("VIM_DEEPL_LOG_LEVEL", "warn")

	cfg, err := LoadFromReader(strings.NewReader("server:\n  port: 8000\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.DeepL.APIKey != "dk-test" {
		t.Errorf("api key = %q, want dk-test", cfg.Providers.DeepL.APIKey)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d, want env override 9191", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != LogWarn {
		t.Errorf("log_level = %q, want warn", cfg.Server.LogLevel)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Server.LogLevel = "loud"
	cfg.Trainer.RecentRatio = 1.5
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "server.log_level", "trainer.recent_ratio"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestDataDirResolution(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdgtest")
	cfg := Default()
	if got, want := cfg.DataDir(), filepath.Join("/tmp/xdgtest", "vim-deepl"); got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}
	if got, want := cfg.DBPath(), filepath.Join("/tmp/xdgtest", "vim-deepl", "vocab.db"); got != want {
		t.Errorf("DBPath() = %q, want %q", got, want)
	}

	cfg.Storage.DataDir = "/srv/vd"
	if got, want := cfg.AudioCacheDir(), filepath.Join("/srv/vd", "mw_audio"); got != want {
		t.Errorf("AudioCacheDir() = %q, want %q", got, want)
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("trainer:\n  recent_days: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(_, new *Config) { changed <- new }, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Trainer.RecentDays; got != 7 {
		t.Fatalf("initial recent_days = %d, want 7", got)
	}

	// Ensure the mtime moves past filesystem granularity.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("trainer:\n  recent_days: 21\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Trainer.RecentDays != 21 {
			t.Errorf("reloaded recent_days = %d, want 21", cfg.Trainer.RecentDays)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
