package audio

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "vocab.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedDefinitions(t *testing.T, store *storage.Store, term, audioMain string) {
	t.Helper()
	err := store.Update(context.Background(), func(r *storage.Repo) error {
		return r.UpsertDefinitions(context.Background(), storage.DefinitionRow{
			Term:      term,
			SrcLang:   "EN",
			Noun:      []string{"a fruit"},
			AudioMain: audioMain,
			AudioIDs:  []string{audioMain},
		}, storage.NowString(time.Now()))
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPlayResolvesWordFromDictionaryCache(t *testing.T) {
	cache, _ := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3"))
	})
	store := newTestStore(t)
	seedDefinitions(t, store, "apple", "apple001")

	svc := NewService(cache, nil, store, false)
	res, err := svc.Play(context.Background(), "", "Apple", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCachedOnly || res.AudioID != "apple001" {
		t.Errorf("res = %+v", res)
	}
	if _, err := os.Stat(cache.PathFor("apple001")); err != nil {
		t.Errorf("clip not cached: %v", err)
	}
}

func TestPlayUnknownWordIsNotFound(t *testing.T) {
	cache := NewCache(t.TempDir())
	svc := NewService(cache, nil, newTestStore(t), false)

	_, err := svc.Play(context.Background(), "", "nosuchword", nil)
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestPlayRejectsBadAudioID(t *testing.T) {
	cache := NewCache(t.TempDir())
	svc := NewService(cache, nil, nil, false)

	if _, err := svc.Play(context.Background(), "../evil", "", nil); !apperr.IsArgs(err) {
		t.Errorf("err = %v, want ARGS", err)
	}
	if _, err := svc.Play(context.Background(), "", "", nil); !apperr.IsArgs(err) {
		t.Errorf("empty request: err = %v, want ARGS", err)
	}
}

func TestPlaySchedulesWhenPlayerAvailable(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "plays.log")
	t.Setenv("PLAYLOG", log)

	cache, _ := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3"))
	})
	worker := NewWorker(WithPlayer("sh", "-c", `echo run >> "$PLAYLOG"`), WithGap(0))
	defer worker.Stop()

	svc := NewService(cache, worker, nil, true)
	res, err := svc.Play(context.Background(), "apple001", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusPlaying {
		t.Errorf("status = %q, want %q", res.Status, StatusPlaying)
	}
	waitLines(t, log, 2)
}

func TestPlayServerDisabledReturnsCachedOnly(t *testing.T) {
	cache, _ := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3"))
	})
	worker := NewWorker(WithPlayer("sh", "-c", "true"))
	defer worker.Stop()

	svc := NewService(cache, worker, nil, true)
	svc.SetPlayServer(false)

	res, err := svc.Play(context.Background(), "apple001", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCachedOnly {
		t.Errorf("status = %q, want %q", res.Status, StatusCachedOnly)
	}

	// Per-request override takes precedence over the configured toggle.
	on := true
	res, err = svc.Play(context.Background(), "apple001", "", &on)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusPlaying || res.Playback != "server" {
		t.Errorf("override res = %+v", res)
	}
}

func TestFilePathDownloadsAndValidates(t *testing.T) {
	cache, _ := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3"))
	})
	svc := NewService(cache, nil, nil, false)

	path, err := svc.FilePath(context.Background(), "apple001")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error(err)
	}
	if _, err := svc.FilePath(context.Background(), "a/b"); !apperr.IsArgs(err) {
		t.Errorf("err = %v, want ARGS", err)
	}
}
