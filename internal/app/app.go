// Package app wires all vim-deepl subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock providers and stores via functional options.
// When an option is not provided, New creates real implementations from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Romariozh/vim-deepl/internal/audio"
	"github.com/Romariozh/vim-deepl/internal/bookmarks"
	"github.com/Romariozh/vim-deepl/internal/config"
	"github.com/Romariozh/vim-deepl/internal/dict"
	"github.com/Romariozh/vim-deepl/internal/httpapi"
	"github.com/Romariozh/vim-deepl/internal/observe"
	"github.com/Romariozh/vim-deepl/internal/resilience"
	"github.com/Romariozh/vim-deepl/internal/storage"
	"github.com/Romariozh/vim-deepl/internal/trainer"
	"github.com/Romariozh/vim-deepl/internal/translation"
	"github.com/Romariozh/vim-deepl/pkg/provider/dictionary"
	"github.com/Romariozh/vim-deepl/pkg/provider/translate"
)

// shutdownTimeout bounds the HTTP server drain during Shutdown.
const shutdownTimeout = 10 * time.Second

// Providers holds one interface value per upstream slot. Populated by
// main.go from API keys; tests inject mocks.
type Providers struct {
	Translate  translate.Provider
	Dictionary dictionary.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store     *storage.Store
	metrics   *observe.Metrics
	dict      *dict.Service
	translate *translation.Service
	trainer   *trainer.Service
	bookmarks *bookmarks.Service
	audio     *audio.Service
	worker    *audio.Worker
	server    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects an opened store instead of opening the configured
// database file.
func WithStore(s *storage.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics set instead of using the default meter.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithAudioWorker injects a playback worker instead of probing for a player.
func WithAudioWorker(w *audio.Worker) Option {
	return func(a *App) { a.worker = w }
}

// New creates an App by wiring all subsystems together: storage, the cache
// services, the trainer, the audio pipeline, and the HTTP façade.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initAudio()
	a.initServices()
	a.initServer()

	return a, nil
}

// ApplyConfig pushes reloadable settings into the running services. Wired as
// the config watcher callback.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.trainer.SetConfig(cfg.Trainer)
	a.audio.SetPlayServer(cfg.Audio.PlayServerEnabled())
	if a.worker != nil && cfg.Audio.GapSec > 0 {
		a.worker.SetGap(time.Duration(cfg.Audio.GapSec * float64(time.Second)))
	}
	slog.Info("config reloaded",
		"recent_days", cfg.Trainer.RecentDays,
		"play_server", cfg.Audio.PlayServerEnabled())
}

func (a *App) initStore() error {
	if a.store != nil {
		return nil
	}
	store, err := storage.Open(a.cfg.DBPath())
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	slog.Info("database opened", "path", a.cfg.DBPath())
	return nil
}

func (a *App) initAudio() {
	cache := audio.NewCache(a.cfg.AudioCacheDir(), audio.WithCacheMetrics(a.metrics))

	if a.worker == nil {
		workerOpts := []audio.WorkerOption{audio.WithWorkerMetrics(a.metrics)}
		if a.cfg.Audio.GapSec > 0 {
			workerOpts = append(workerOpts, audio.WithGap(time.Duration(a.cfg.Audio.GapSec*float64(time.Second))))
		}
		if a.cfg.Audio.PulseServer != "" {
			workerOpts = append(workerOpts, audio.WithPulseServer(a.cfg.Audio.PulseServer))
		}
		if a.cfg.Audio.Volume != "" {
			workerOpts = append(workerOpts, audio.WithVolume(a.cfg.Audio.Volume))
		}
		a.worker = audio.NewWorker(workerOpts...)
	}
	a.closers = append(a.closers, func() error {
		a.worker.Stop()
		return nil
	})

	a.audio = audio.NewService(cache, a.worker, a.store, a.cfg.Audio.PlayServerEnabled())
}

func (a *App) initServices() {
	// Upstreams go behind circuit breakers so a dead API fails fast while
	// the cache tiers keep serving hits.
	dictProvider := resilience.GuardDictionary(a.providers.Dictionary,
		resilience.CircuitBreakerConfig{Name: "mw"})
	translateProvider := resilience.GuardTranslate(a.providers.Translate,
		resilience.CircuitBreakerConfig{Name: "deepl"})

	a.dict = dict.New(a.store, dictProvider,
		dict.WithPrefetcher(a.audio),
		dict.WithMetrics(a.metrics),
	)
	a.translate = translation.New(a.store, translateProvider,
		translation.WithMetadata(a.dict),
		translation.WithMetrics(a.metrics),
	)
	a.trainer = trainer.New(a.store, a.cfg.Trainer,
		trainer.WithMetadata(a.dict),
		trainer.WithMetrics(a.metrics),
	)
	a.bookmarks = bookmarks.New(a.store)
}

func (a *App) initServer() {
	api := httpapi.New(a.store, a.translate, a.trainer, a.bookmarks, a.audio,
		httpapi.WithMetrics(a.metrics))

	a.server = &http.Server{
		Addr:              net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port)),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Addr returns the configured listen address.
func (a *App) Addr() string { return a.server.Addr }

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires, remaining closers are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
