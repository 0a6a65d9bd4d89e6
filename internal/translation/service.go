// Package translation implements the cached word and selection translation
// flows.
//
// Word lookups run against a two-tier cache: a base tier keyed by
// (term, src, dst) and a context tier additionally keyed by the hash of the
// surrounding sentence. Cache hits never call the upstream provider; misses
// translate upstream and persist both tiers in a single transaction.
// Selections are translated pass-through and never cached.
package translation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/observe"
	"github.com/Romariozh/vim-deepl/internal/storage"
	"github.com/Romariozh/vim-deepl/pkg/provider/translate"
	"github.com/Romariozh/vim-deepl/pkg/types"
)

// ctxListLimit caps the alternate context translations attached to a word
// result.
const ctxListLimit = 5

// Metadata supplies dictionary definitions for a term. Implemented by the
// dictionary service; lookups are best-effort and must never fail a
// translation request.
type Metadata interface {
	EnsureDefinitions(ctx context.Context, term, srcLang string) (*types.DefinitionSet, error)
}

// Service is the translation façade over the cache and the upstream
// provider.
type Service struct {
	store    *storage.Store
	provider translate.Provider
	meta     Metadata
	metrics  *observe.Metrics
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithMetadata attaches the dictionary service used to enrich word results.
func WithMetadata(m Metadata) Option {
	return func(s *Service) { s.meta = m }
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Tests use this to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a translation service.
func New(store *storage.Store, provider translate.Provider, opts ...Option) *Service {
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

// WordRequest is one word-lookup request.
type WordRequest struct {
	// Word is the term to translate.
	Word string

	// TargetLang is the target language code; empty defaults to "RU".
	TargetLang string

	// Context is the optional sentence the word was selected from. When
	// present the context cache tier is consulted.
	Context string

	// SrcHint is the caller's expected source language, used to pick between
	// homographs cached under different source languages.
	SrcHint string
}

// TranslateWord resolves a word through the cache tiers, calling the
// provider only on a miss. Provider failures are reported in-band: the
// returned result carries Error and nothing is written. A non-nil error
// means invalid arguments or storage failure.
func (s *Service) TranslateWord(ctx context.Context, req WordRequest) (types.WordResult, error) {
	word := strings.TrimSpace(req.Word)
	if word == "" {
		return types.WordResult{}, apperr.New(apperr.CodeArgs, "word is required")
	}
	target := strings.ToUpper(strings.TrimSpace(req.TargetLang))
	if target == "" {
		target = "RU"
	}

	if ctxText := NormalizeContext(req.Context); ctxText != "" {
		return s.wordWithContext(ctx, word, target, ctxText, req.SrcHint)
	}
	return s.wordBase(ctx, word, target, req.SrcHint)
}

// wordWithContext handles the context-tier flow.
func (s *Service) wordWithContext(ctx context.Context, word, target, ctxText, srcHint string) (types.WordResult, error) {
	hash := CtxHash(ctxText)
	nowStr := storage.NowString(s.now())

	hit, err := s.lookupCtx(ctx, word, target, hash, srcHint)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.WordResult{}, apperr.Wrap(apperr.CodeStorage, err, "context cache lookup")
	}
	s.metrics.RecordCacheLookup(ctx, "context", hit != nil)

	if hit != nil {
		err := s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
			if err := r.TouchCtxUsage(ctx, hit.Term, hit.SrcLang, hit.DstLang, hit.CtxHash, nowStr); err != nil {
				return err
			}
			// Keep the base tier browsable: derive a base row when absent.
			_, err := r.GetBaseEntry(ctx, word, hit.SrcLang, target)
			if errors.Is(err, storage.ErrNotFound) {
				return r.UpsertBaseEntry(ctx, storage.UpsertBaseParams{
					Term:        word,
					Translation: hit.Translation,
					SrcLang:     hit.SrcLang,
					DstLang:     target,
					DetectedRaw: ctxText,
					Now:         nowStr,
				})
			}
			return err
		})
		if err != nil {
			return types.WordResult{}, apperr.Wrap(apperr.CodeStorage, err, "touch context entry")
		}

		return types.WordResult{
			Type:               "word",
			Source:             word,
			Text:               hit.Translation,
			TargetLang:         target,
			DetectedSourceLang: hit.SrcLang,
			FromCache:          true,
			CacheSource:        types.CacheContext,
			ContextUsed:        true,
			ContextRaw:         ctxText,
			Timestamp:          hit.CreatedAt,
			LastUsed:           nowStr,
			Count:              int64(hit.Count) + 1,
			MWDefinitions:      s.definitions(ctx, word, hit.SrcLang),
			CtxTranslations:    s.ctxTranslations(ctx, word, hit.SrcLang, target),
		}, nil
	}

	// Miss: translate upstream with the sentence as disambiguation context.
	start := time.Now()
	pr, err := s.provider.Translate(ctx, translate.Request{
		Text:       word,
		TargetLang: target,
		Context:    ctxText,
	})
	s.metrics.RecordProviderCall(ctx, "deepl", "translate", time.Since(start), err)
	if err != nil {
		slog.Warn("translation: provider failed", "word", word, "err", err)
		return types.WordResult{
			Type:        "word",
			Source:      word,
			TargetLang:  target,
			ContextUsed: true,
			ContextRaw:  ctxText,
			Error:       err.Error(),
		}, nil
	}

	src := NormalizeSrcLang(pr.DetectedSourceLang, srcHint)
	detectedRaw := pr.DetectedSourceLang
	if sentenceLike(ctxText) {
		detectedRaw = ctxText
	}

	err = s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
		if err := r.UpsertBaseEntry(ctx, storage.UpsertBaseParams{
			Term:        word,
			Translation: pr.Text,
			SrcLang:     src,
			DstLang:     target,
			DetectedRaw: detectedRaw,
			Now:         nowStr,
		}); err != nil {
			return err
		}
		return r.UpsertCtxEntry(ctx, storage.UpsertCtxParams{
			Term:        word,
			Translation: pr.Text,
			SrcLang:     src,
			DstLang:     target,
			CtxHash:     hash,
			CtxText:     ctxText,
			Now:         nowStr,
		})
	})
	if err != nil {
		return types.WordResult{}, apperr.Wrap(apperr.CodeStorage, err, "persist context translation")
	}

	return types.WordResult{
		Type:               "word",
		Source:             word,
		Text:               pr.Text,
		TargetLang:         target,
		DetectedSourceLang: src,
		ContextUsed:        true,
		ContextRaw:         ctxText,
		Timestamp:          nowStr,
		LastUsed:           nowStr,
		Count:              1,
		MWDefinitions:      s.definitions(ctx, word, src),
		CtxTranslations:    s.ctxTranslations(ctx, word, src, target),
	}, nil
}

// wordBase handles the base-tier flow (no sentence context).
func (s *Service) wordBase(ctx context.Context, word, target, srcHint string) (types.WordResult, error) {
	nowStr := storage.NowString(s.now())

	e, err := s.store.Repo().GetBaseEntryAnySrc(ctx, word, target, srcHint)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.WordResult{}, apperr.Wrap(apperr.CodeStorage, err, "base cache lookup")
	}
	s.metrics.RecordCacheLookup(ctx, "base", e != nil)

	if e != nil {
		if err := s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
			return r.TouchBaseUsage(ctx, e.ID, nowStr)
		}); err != nil {
			return types.WordResult{}, apperr.Wrap(apperr.CodeStorage, err, "touch base entry")
		}

		res := types.WordResult{
			Type:               "word",
			Source:             word,
			Text:               e.Translation,
			TargetLang:         target,
			DetectedSourceLang: e.SrcLang,
			FromCache:          true,
			CacheSource:        types.CacheBase,
			Timestamp:          e.CreatedAt,
			LastUsed:           nowStr,
			Count:              int64(e.Count) + 1,
			MWDefinitions:      s.definitions(ctx, word, e.SrcLang),
		}
		// A stored sentence context survives as context_raw so the editor can
		// show where the word was first met.
		if sentenceLike(e.DetectedRaw) {
			res.ContextRaw = e.DetectedRaw
		}
		return res, nil
	}

	start := time.Now()
	pr, err := s.provider.Translate(ctx, translate.Request{Text: word, TargetLang: target})
	s.metrics.RecordProviderCall(ctx, "deepl", "translate", time.Since(start), err)
	if err != nil {
		slog.Warn("translation: provider failed", "word", word, "err", err)
		return types.WordResult{
			Type:       "word",
			Source:     word,
			TargetLang: target,
			Error:      err.Error(),
		}, nil
	}

	src := NormalizeSrcLang(pr.DetectedSourceLang, srcHint)
	if err := s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
		return r.UpsertBaseEntry(ctx, storage.UpsertBaseParams{
			Term:        word,
			Translation: pr.Text,
			SrcLang:     src,
			DstLang:     target,
			DetectedRaw: pr.DetectedSourceLang,
			Now:         nowStr,
		})
	}); err != nil {
		return types.WordResult{}, apperr.Wrap(apperr.CodeStorage, err, "persist base translation")
	}

	return types.WordResult{
		Type:               "word",
		Source:             word,
		Text:               pr.Text,
		TargetLang:         target,
		DetectedSourceLang: src,
		Timestamp:          nowStr,
		LastUsed:           nowStr,
		Count:              1,
		MWDefinitions:      s.definitions(ctx, word, src),
	}, nil
}

// TranslateSelection translates free text pass-through. Selections are never
// cached; provider failures are reported in-band.
func (s *Service) TranslateSelection(ctx context.Context, text, targetLang string) (types.SelectionResult, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return types.SelectionResult{}, apperr.New(apperr.CodeArgs, "text is required")
	}
	target := strings.ToUpper(strings.TrimSpace(targetLang))
	if target == "" {
		target = "RU"
	}

	start := time.Now()
	pr, err := s.provider.Translate(ctx, translate.Request{Text: t, TargetLang: target})
	s.metrics.RecordProviderCall(ctx, "deepl", "translate", time.Since(start), err)
	if err != nil {
		slog.Warn("translation: provider failed", "len", len(t), "err", err)
		return types.SelectionResult{
			Type:       "selection",
			Source:     t,
			TargetLang: target,
			Error:      err.Error(),
		}, nil
	}

	return types.SelectionResult{
		Type:               "selection",
		Source:             t,
		Text:               pr.Text,
		TargetLang:         target,
		DetectedSourceLang: pr.DetectedSourceLang,
	}, nil
}

// lookupCtx probes the context tier: the hinted source language first, then
// any source holding this exact sentence.
func (s *Service) lookupCtx(ctx context.Context, word, target, hash, srcHint string) (*storage.CtxEntry, error) {
	repo := s.store.Repo()
	srcExpected := strings.ToUpper(strings.TrimSpace(srcHint))
	if srcExpected != "" {
		e, err := repo.GetCtxEntry(ctx, word, srcExpected, target, hash)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return repo.GetCtxEntryAnySrc(ctx, word, target, hash)
}

// definitions fetches dictionary metadata, degrading to an empty set on any
// failure.
func (s *Service) definitions(ctx context.Context, term, srcLang string) *types.DefinitionSet {
	if s.meta == nil {
		return &types.DefinitionSet{}
	}
	ds, err := s.meta.EnsureDefinitions(ctx, term, srcLang)
	if err != nil {
		slog.Warn("translation: dictionary metadata unavailable", "term", term, "err", err)
		return &types.DefinitionSet{}
	}
	if ds == nil {
		ds = &types.DefinitionSet{}
	}
	return ds
}

// ctxTranslations lists alternate context-tier translations, best effort.
func (s *Service) ctxTranslations(ctx context.Context, term, srcLang, dstLang string) []string {
	list, err := s.store.Repo().ListCtxTranslations(ctx, term, srcLang, dstLang, ctxListLimit)
	if err != nil {
		slog.Warn("translation: list context translations", "term", term, "err", err)
		return nil
	}
	return list
}
