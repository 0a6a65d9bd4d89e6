// Command vim-deepl is the personal vocabulary server: translation caching,
// dictionary metadata with pronunciation audio, spaced-repetition training,
// and reading bookmarks behind a local HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Romariozh/vim-deepl/internal/app"
	"github.com/Romariozh/vim-deepl/internal/config"
	"github.com/Romariozh/vim-deepl/internal/observe"
	"github.com/Romariozh/vim-deepl/pkg/provider/dictionary/mw"
	"github.com/Romariozh/vim-deepl/pkg/provider/translate/deepl"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vim-deepl: %v\n", err)
		return 1
	}

	logger, logClose, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vim-deepl: %v\n", err)
		return 1
	}
	if logClose != nil {
		defer logClose()
	}
	slog.SetDefault(logger)

	slog.Info("vim-deepl starting",
		"config", *configPath,
		"data_dir", cfg.DataDir(),
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"log_level", cfg.Server.LogLevel,
	)

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "vim-deepl",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Reapply trainer and audio tunables when the config file changes.
	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
		application.ApplyConfig(next)
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders constructs the DeepL and Merriam-Webster clients from the
// configured API keys. The keys also arrive via DEEPL_API_KEY and
// MW_SD3_API_KEY (applied by config.Load).
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	ps := &app.Providers{}
	timeout := time.Duration(cfg.Server.HTTPTimeoutSec) * time.Second

	var deeplOpts []deepl.Option
	if cfg.Providers.DeepL.Endpoint != "" {
		deeplOpts = append(deeplOpts, deepl.WithEndpoint(cfg.Providers.DeepL.Endpoint))
	}
	if timeout > 0 {
		deeplOpts = append(deeplOpts, deepl.WithTimeout(timeout))
	}
	tp, err := deepl.New(cfg.Providers.DeepL.APIKey, deeplOpts...)
	if err != nil {
		return nil, fmt.Errorf("create deepl provider: %w", err)
	}
	ps.Translate = tp
	slog.Info("provider created", "kind", "translate", "name", "deepl")

	var mwOpts []mw.Option
	if cfg.Providers.Dictionary.Endpoint != "" {
		mwOpts = append(mwOpts, mw.WithEndpoint(cfg.Providers.Dictionary.Endpoint))
	}
	if timeout > 0 {
		mwOpts = append(mwOpts, mw.WithTimeout(timeout))
	}
	dp, err := mw.New(cfg.Providers.Dictionary.APIKey, mwOpts...)
	if err != nil {
		return nil, fmt.Errorf("create dictionary provider: %w", err)
	}
	ps.Dictionary = dp
	slog.Info("provider created", "kind", "dictionary", "name", "merriam-webster")

	return ps, nil
}

// defaultConfigPath prefers a config.yaml next to the data directory, falling
// back to the working directory.
func defaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg + "/vim-deepl/config.yaml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.config/vim-deepl/config.yaml"
	}
	return "config.yaml"
}

// newLogger builds the process logger: text to the configured log file, or
// stderr when the file cannot be opened.
func newLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	var lvl slog.Level
	switch cfg.Server.LogLevel {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	var closeFn func() error
	if err := os.MkdirAll(cfg.DataDir(), 0o755); err == nil {
		if f, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
			closeFn = f.Close
		} else {
			fmt.Fprintf(os.Stderr, "vim-deepl: log file unavailable, using stderr: %v\n", err)
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}
