package audio

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/storage"
)

// Playback status values returned to clients.
const (
	StatusPlaying    = "playing"
	StatusCachedOnly = "cached_only"
)

// Service ties the clip cache to the playback worker and resolves audio
// identifiers from cached dictionary entries.
type Service struct {
	cache  *Cache
	worker *Worker
	store  *storage.Store

	playServer atomic.Bool
}

// NewService creates the audio service. store may be nil when playback by
// word is not needed.
func NewService(cache *Cache, worker *Worker, store *storage.Store, playServer bool) *Service {
	s := &Service{cache: cache, worker: worker, store: store}
	s.playServer.Store(playServer)
	return s
}

// SetPlayServer toggles server-side playback; used on config reload.
func (s *Service) SetPlayServer(on bool) { s.playServer.Store(on) }

// Prefetch implements the dictionary prefetch hook: it warms the clip cache
// in the background.
func (s *Service) Prefetch(audioID string) { s.cache.Prefetch(audioID) }

// PlayResult is the response of a playback request.
type PlayResult struct {
	Status     string `json:"status"`
	AudioID    string `json:"audio_id"`
	CachedPath string `json:"cached_path"`
	Playback   string `json:"playback"` // "server" | "none"
}

// Play ensures the clip is cached and, when a player is available and
// server playback is enabled, schedules it to play twice. With an empty
// audioID the word's main pronunciation from the dictionary cache is used.
// playServer, when non-nil, overrides the configured toggle for this
// request only.
func (s *Service) Play(ctx context.Context, audioID, word string, playServer *bool) (PlayResult, error) {
	if audioID == "" {
		id, err := s.resolveWord(ctx, word)
		if err != nil {
			return PlayResult{}, err
		}
		audioID = id
	}
	if !ValidID(audioID) {
		return PlayResult{}, apperr.New(apperr.CodeArgs, "invalid audio id %q", audioID)
	}

	path, err := s.cache.Ensure(ctx, audioID)
	if err != nil {
		return PlayResult{}, err
	}

	play := s.playServer.Load()
	if playServer != nil {
		play = *playServer
	}
	if !play || s.worker == nil || !s.worker.Available() {
		return PlayResult{Status: StatusCachedOnly, AudioID: audioID, CachedPath: path, Playback: "none"}, nil
	}
	s.worker.PlayTwice(path)
	return PlayResult{Status: StatusPlaying, AudioID: audioID, CachedPath: path, Playback: "server"}, nil
}

// FilePath validates the id and returns the local path of the cached clip,
// downloading it first when needed.
func (s *Service) FilePath(ctx context.Context, audioID string) (string, error) {
	if !ValidID(audioID) {
		return "", apperr.New(apperr.CodeArgs, "invalid audio id %q", audioID)
	}
	return s.cache.Ensure(ctx, audioID)
}

// resolveWord looks up the main pronunciation id of a cached dictionary
// entry.
func (s *Service) resolveWord(ctx context.Context, word string) (string, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return "", apperr.New(apperr.CodeArgs, "audio_id or word is required")
	}
	if s.store == nil {
		return "", apperr.New(apperr.CodeNotFound, "no pronunciation for %q", word)
	}
	row, err := s.store.Repo().GetDefinitions(ctx, word, "EN")
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperr.New(apperr.CodeNotFound, "no pronunciation for %q", word)
		}
		return "", apperr.Wrap(apperr.CodeStorage, err, "lookup pronunciation for %q", word)
	}
	if row.AudioMain == "" {
		return "", apperr.New(apperr.CodeNotFound, "no pronunciation for %q", word)
	}
	return row.AudioMain, nil
}
