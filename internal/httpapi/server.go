// Package httpapi is the HTTP façade of the vim-deepl server: a chi router
// over the cache, trainer, audio, and bookmark services, plus health and
// metrics endpoints.
//
// Error mapping happens in exactly one place (writeError): ARGS → 400,
// NOT_FOUND → 404, PROVIDER → 502, everything else → 500. Translation
// provider failures never reach this mapping — the services report them
// in-band with HTTP 200.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/audio"
	"github.com/Romariozh/vim-deepl/internal/bookmarks"
	"github.com/Romariozh/vim-deepl/internal/health"
	"github.com/Romariozh/vim-deepl/internal/observe"
	"github.com/Romariozh/vim-deepl/internal/storage"
	"github.com/Romariozh/vim-deepl/internal/trainer"
	"github.com/Romariozh/vim-deepl/internal/translation"
)

// Server bundles the services behind the HTTP surface.
type Server struct {
	store     *storage.Store
	translate *translation.Service
	trainer   *trainer.Service
	bookmarks *bookmarks.Service
	audio     *audio.Service
	metrics   *observe.Metrics
	now       func() time.Time
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics attaches request metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates the HTTP façade over the given services.
func New(
	store *storage.Store,
	translate *translation.Service,
	train *trainer.Service,
	marks *bookmarks.Service,
	player *audio.Service,
	opts ...Option,
) *Server {
	s := &Server{
		store:     store,
		translate: translate,
		trainer:   train,
		bookmarks: marks,
		audio:     player,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(observe.Middleware(s.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	hc := health.New(health.Checker{Name: "database", Check: s.pingDB})
	r.Get("/healthz", hc.Healthz)
	r.Get("/readyz", hc.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/entries", s.handleGetEntry)
	r.Post("/entries", s.handlePostEntry)
	r.Post("/entries/use", s.handleUseEntry)

	r.Post("/translate/word", s.handleTranslateWord)
	r.Post("/translate/selection", s.handleTranslateSelection)

	r.Post("/train/next", s.handleTrainNext)
	r.Post("/train/review", s.handleTrainReview)
	r.Post("/train/mark_hard", s.handleMarkHard)
	r.Post("/train/mark_ignore", s.handleMarkIgnore)

	r.Post("/mw/audio/play", s.handleAudioPlay)
	r.Get("/mw/audio/file/{audio_id}", s.handleAudioFile)

	r.Post("/bookmarks/mark", s.handleBookmarkMark)
	r.Get("/bookmarks/list", s.handleBookmarkList)

	return r
}

// pingDB verifies the database accepts a read transaction.
func (s *Server) pingDB(ctx context.Context) error {
	return s.store.View(ctx, func(*storage.Repo) error { return nil })
}

// decode parses a JSON request body into dst. An empty body is allowed and
// leaves dst zeroed.
func decode(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.CodeArgs, err, "invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: response encode failed", "err", err)
	}
}

// errorBody is the JSON shape of a non-200 response.
type errorBody struct {
	Code   apperr.Code `json:"code,omitempty"`
	Detail string      `json:"detail"`
}

// writeError maps an application error to its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeArgs:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeProvider:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("httpapi: internal error", "err", err)
	}
	writeJSON(w, status, errorBody{Code: code, Detail: err.Error()})
}
