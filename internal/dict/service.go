// Package dict implements the dictionary-metadata service: Merriam-Webster
// definitions bucketed by part of speech plus pronunciation audio
// identifiers, cached per (term, src_lang).
//
// Lookups are English-only. Unknown spellings cache an empty definition set
// so repeat lookups stay cheap; cached rows written before audio support are
// backfilled from the stored raw payload without another provider call.
package dict

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/observe"
	"github.com/Romariozh/vim-deepl/internal/storage"
	"github.com/Romariozh/vim-deepl/pkg/provider/dictionary"
	"github.com/Romariozh/vim-deepl/pkg/types"
)

// Prefetcher schedules a non-blocking download of a pronunciation file. The
// audio cache implements it; calls must return immediately.
type Prefetcher interface {
	Prefetch(audioID string)
}

// Service resolves dictionary metadata through the cache and the upstream
// provider.
type Service struct {
	store    *storage.Store
	provider dictionary.Provider
	prefetch Prefetcher
	metrics  *observe.Metrics
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithPrefetcher attaches the audio cache so reads schedule pronunciation
// downloads.
func WithPrefetcher(p Prefetcher) Option {
	return func(s *Service) { s.prefetch = p }
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a dictionary service.
func New(store *storage.Store, provider dictionary.Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureDefinitions returns the definition set for term, fetching and caching
// it on first sight. Non-English terms return an empty set without touching
// cache or provider. Every read schedules a non-blocking prefetch of the main
// pronunciation file.
func (s *Service) EnsureDefinitions(ctx context.Context, term, srcLang string) (*types.DefinitionSet, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, apperr.New(apperr.CodeArgs, "term is required")
	}
	if strings.ToUpper(strings.TrimSpace(srcLang)) != "EN" {
		return &types.DefinitionSet{}, nil
	}

	row, err := s.store.Repo().GetDefinitions(ctx, term, "EN")
	switch {
	case err == nil:
		s.metrics.RecordCacheLookup(ctx, "dictionary", true)
		if row.AudioMain == "" && len(row.AudioIDs) == 0 && row.RawJSON != "" {
			row = s.backfillAudio(ctx, row)
		}
		set := rowToSet(row)
		s.schedulePrefetch(set.AudioMain)
		return set, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, apperr.Wrap(apperr.CodeStorage, err, "definitions lookup")
	}
	s.metrics.RecordCacheLookup(ctx, "dictionary", false)

	start := time.Now()
	raw, err := s.provider.Lookup(ctx, term)
	s.metrics.RecordProviderCall(ctx, "mw", "lookup", time.Since(start), err)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProvider, err, "dictionary lookup %q", term)
	}

	p, err := parsePayload(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProvider, err, "dictionary payload %q", term)
	}

	newRow := storage.DefinitionRow{
		Term:    term,
		SrcLang: "EN",
		RawJSON: string(raw),
	}
	switch {
	case len(p.Suggestions) > 0:
		// Unknown spelling: cache the empty set, keep the ranked suggestions
		// in the raw payload for later inspection.
		ranked := rankSuggestions(term, p.Suggestions)
		if len(ranked) > 3 {
			ranked = ranked[:3]
		}
		slog.Info("dict: term unknown upstream", "term", term, "closest", ranked)
	case len(p.Entries) > 0:
		fillRow(&newRow, pickMainEntry(p.Entries, term))
	}

	nowStr := storage.NowString(s.now())
	if err := s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
		return r.UpsertDefinitions(ctx, newRow, nowStr)
	}); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorage, err, "persist definitions %q", term)
	}
	newRow.CreatedAt = nowStr

	set := rowToSet(&newRow)
	s.schedulePrefetch(set.AudioMain)
	return set, nil
}

// backfillAudio re-derives audio identifiers for a row cached before audio
// support, using the stored payload only. Best effort: on any failure the
// original row is returned unchanged.
func (s *Service) backfillAudio(ctx context.Context, row *storage.DefinitionRow) *storage.DefinitionRow {
	p, err := parsePayload([]byte(row.RawJSON))
	if err != nil || len(p.Entries) == 0 {
		return row
	}
	ids := extractAudioIDs(pickMainEntry(p.Entries, row.Term))
	if len(ids) == 0 {
		return row
	}

	updated := *row
	updated.AudioMain = ids[0]
	updated.AudioIDs = ids
	if err := s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
		return r.UpsertDefinitions(ctx, updated, storage.NowString(s.now()))
	}); err != nil {
		slog.Warn("dict: audio backfill failed", "term", row.Term, "err", err)
		return row
	}
	slog.Debug("dict: audio backfilled", "term", row.Term, "audio_main", ids[0])
	return &updated
}

// fillRow populates buckets and audio identifiers from the main entry.
func fillRow(row *storage.DefinitionRow, main *mwEntry) {
	if main == nil {
		return
	}
	defs := dedupCap(main.Shortdef)
	switch bucketFor(main.Fl) {
	case "noun":
		row.Noun = defs
	case "verb":
		row.Verb = defs
	case "adjective":
		row.Adjective = defs
	case "adverb":
		row.Adverb = defs
	default:
		row.Other = defs
	}
	if ids := extractAudioIDs(main); len(ids) > 0 {
		row.AudioMain = ids[0]
		row.AudioIDs = ids
	}
}

// rowToSet converts a storage row to the wire shape with non-nil buckets.
func rowToSet(row *storage.DefinitionRow) *types.DefinitionSet {
	return &types.DefinitionSet{
		Noun:      orEmpty(row.Noun),
		Verb:      orEmpty(row.Verb),
		Adjective: orEmpty(row.Adjective),
		Adverb:    orEmpty(row.Adverb),
		Other:     orEmpty(row.Other),
		AudioMain: row.AudioMain,
		AudioIDs:  row.AudioIDs,
		CreatedAt: row.CreatedAt,
	}
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func (s *Service) schedulePrefetch(audioID string) {
	if s.prefetch == nil || audioID == "" {
		return
	}
	s.prefetch.Prefetch(audioID)
}
