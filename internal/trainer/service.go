// Package trainer implements the spaced-repetition trainer: candidate
// selection across four pools (due, new, hard, legacy fallback), SM-2 grade
// processing, daily progress tracking, and the manual hard/ignore marks.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/config"
	"github.com/Romariozh/vim-deepl/internal/observe"
	"github.com/Romariozh/vim-deepl/internal/storage"
	"github.com/Romariozh/vim-deepl/pkg/types"
)

// dayLayout is the ISO day key used by the review log.
const dayLayout = "2006-01-02"

// supportedLangs is the full source-language set used when no filter is
// given.
var supportedLangs = []string{"EN", "DA"}

// Metadata supplies dictionary definitions for training items. Lookups are
// best-effort.
type Metadata interface {
	EnsureDefinitions(ctx context.Context, term, srcLang string) (*types.DefinitionSet, error)
}

// Service drives training sessions.
type Service struct {
	store   *storage.Store
	meta    Metadata
	metrics *observe.Metrics
	now     func() time.Time
	randF   func() float64

	mu  sync.RWMutex
	cfg config.TrainerConfig
}

// Option customises a Service.
type Option func(*Service)

// WithMetadata attaches the dictionary service for item enrichment.
func WithMetadata(m Metadata) Option {
	return func(s *Service) { s.meta = m }
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand overrides the randomness source with a fixed function. Tests use
// this to pin pool and index choices.
func WithRand(f func() float64) Option {
	return func(s *Service) { s.randF = f }
}

// New creates a trainer with the given tunables.
func New(store *storage.Store, cfg config.TrainerConfig, opts ...Option) *Service {
	s := &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		randF: rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetConfig swaps the trainer tunables. Called by the config watcher so a
// running server picks up ratio changes without restart.
func (s *Service) SetConfig(cfg config.TrainerConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() config.TrainerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Review grades a card, applies the SM-2 update, logs the review, bumps the
// owning entry's usage, and returns the next training item (excluding the
// card just reviewed).
func (s *Service) Review(ctx context.Context, cardID int64, grade int, srcFilter string) (types.TrainerItem, error) {
	if grade < 0 || grade > 5 {
		return types.TrainerItem{}, apperr.New(apperr.CodeArgs, "grade must be 0..5, got %d", grade)
	}

	card, err := s.store.Repo().GetCard(ctx, cardID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.TrainerItem{}, apperr.Wrap(apperr.CodeNotFound, err, "card %d", cardID)
		}
		return types.TrainerItem{}, apperr.Wrap(apperr.CodeStorage, err, "load card %d", cardID)
	}
	if card.Suspended {
		return types.TrainerItem{}, apperr.New(apperr.CodeArgs, "card %d is suspended", cardID)
	}

	now := s.now()
	nowTS := now.Unix()
	state := computeSRS(card, grade, nowTS)
	day := now.Format(dayLayout)

	err = s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
		if err := r.UpdateCardSRS(ctx, cardID, state); err != nil {
			return err
		}
		if err := r.InsertReview(ctx, cardID, nowTS, grade, day); err != nil {
			return err
		}
		if card.EntryID != 0 {
			return r.TouchBaseUsage(ctx, card.EntryID, storage.NowString(now))
		}
		return nil
	})
	if err != nil {
		return types.TrainerItem{}, apperr.Wrap(apperr.CodeStorage, err, "apply review")
	}
	s.metrics.RecordTrainerReview(ctx, grade)

	return s.Next(ctx, srcFilter, []int64{cardID})
}

// MarkResult is the response shape of the manual mark operations.
type MarkResult struct {
	Type    string `json:"type"`
	Word    string `json:"word,omitempty"`
	SrcLang string `json:"src_lang,omitempty"`
	EntryID int64  `json:"entry_id,omitempty"`
	Hard    int    `json:"hard,omitempty"`
	Ignore  bool   `json:"ignore,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MarkHard increments the manual difficulty counter for (word, src_lang) and
// reports the new value. Unsupported languages are reported in-band.
func (s *Service) MarkHard(ctx context.Context, word, srcLang string) (MarkResult, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return MarkResult{}, apperr.New(apperr.CodeArgs, "word is required")
	}
	src := strings.ToUpper(strings.TrimSpace(srcLang))
	if src != "EN" && src != "DA" {
		return MarkResult{
			Type:  "mark_hard",
			Word:  word,
			Error: fmt.Sprintf("unsupported src_lang %q", srcLang),
		}, nil
	}

	hard, err := s.store.Repo().IncHard(ctx, word, src)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return MarkResult{}, apperr.Wrap(apperr.CodeNotFound, err, "no entry for %q/%s", word, src)
		}
		return MarkResult{}, apperr.Wrap(apperr.CodeStorage, err, "mark hard")
	}
	return MarkResult{Type: "mark_hard", Word: word, SrcLang: src, Hard: hard}, nil
}

// MarkIgnore excludes an entry from training, addressed either by entry id
// or by (word, src_lang).
func (s *Service) MarkIgnore(ctx context.Context, word, srcLang string, entryID int64) (MarkResult, error) {
	repo := s.store.Repo()

	if entryID > 0 {
		n, err := repo.SetIgnoreByID(ctx, entryID)
		if err != nil {
			return MarkResult{}, apperr.Wrap(apperr.CodeStorage, err, "mark ignore")
		}
		if n == 0 {
			return MarkResult{}, apperr.New(apperr.CodeNotFound, "no entry with id %d", entryID)
		}
		return MarkResult{Type: "ignore", EntryID: entryID, Ignore: true}, nil
	}

	word = strings.TrimSpace(word)
	if word == "" {
		return MarkResult{}, apperr.New(apperr.CodeArgs, "word or entry_id is required")
	}
	src := strings.ToUpper(strings.TrimSpace(srcLang))
	if src != "EN" && src != "DA" {
		return MarkResult{
			Type:  "ignore",
			Word:  word,
			Error: fmt.Sprintf("unsupported src_lang %q", srcLang),
		}, nil
	}

	n, err := repo.SetIgnoreByTerm(ctx, word, src)
	if err != nil {
		return MarkResult{}, apperr.Wrap(apperr.CodeStorage, err, "mark ignore")
	}
	if n == 0 {
		return MarkResult{}, apperr.New(apperr.CodeNotFound, "no entry for %q/%s", word, src)
	}
	return MarkResult{Type: "ignore", Word: word, SrcLang: src, Ignore: true}, nil
}
