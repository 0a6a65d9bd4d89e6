// Package audio caches Merriam-Webster pronunciation clips on disk and plays
// them through a local media player. Downloads are deduplicated and atomic;
// playback runs on a single worker so clips never overlap.
package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/observe"
)

const (
	downloadTimeout  = 30 * time.Second
	maxDownloadTries = 3
)

// Cache stores pronunciation clips under <dir>/<audio_id>.mp3, downloading
// them from the Merriam-Webster media host on first use.
type Cache struct {
	dir     string
	base    string
	client  *http.Client
	metrics *observe.Metrics
	group   singleflight.Group
}

// CacheOption customises a Cache.
type CacheOption func(*Cache)

// WithHTTPClient overrides the download client.
func WithHTTPClient(c *http.Client) CacheOption {
	return func(cc *Cache) { cc.client = c }
}

// WithBaseURL overrides the media host, mainly for tests.
func WithBaseURL(u string) CacheOption {
	return func(cc *Cache) { cc.base = u }
}

// WithCacheMetrics attaches download metrics.
func WithCacheMetrics(m *observe.Metrics) CacheOption {
	return func(cc *Cache) { cc.metrics = m }
}

// NewCache creates an audio cache rooted at dir.
func NewCache(dir string, opts ...CacheOption) *Cache {
	c := &Cache{
		dir:    dir,
		base:   baseURL,
		client: &http.Client{Timeout: downloadTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PathFor returns the on-disk location of a clip, cached or not.
func (c *Cache) PathFor(id string) string {
	return filepath.Join(c.dir, id+".mp3")
}

// Ensure returns the local path of the clip, downloading it when absent.
// Concurrent calls for the same id share a single download.
func (c *Cache) Ensure(ctx context.Context, id string) (string, error) {
	if !ValidID(id) {
		return "", apperr.New(apperr.CodeArgs, "invalid audio id %q", id)
	}
	path := c.PathFor(id)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	_, err, _ := c.group.Do(id, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have won.
		if _, err := os.Stat(path); err == nil {
			return nil, nil
		}
		return nil, c.download(ctx, id, path)
	})
	if err != nil {
		c.metrics.RecordAudioDownload(ctx, "error")
		return "", apperr.Wrap(apperr.CodeProvider, err, "download audio %s", id)
	}
	c.metrics.RecordAudioDownload(ctx, "ok")
	return path, nil
}

// Prefetch downloads a clip in the background. Failures are logged and
// otherwise ignored; the next Ensure retries.
func (c *Cache) Prefetch(id string) {
	if !ValidID(id) {
		return
	}
	if _, err := os.Stat(c.PathFor(id)); err == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
		defer cancel()
		if _, err := c.Ensure(ctx, id); err != nil {
			slog.Debug("audio: prefetch failed", "audio_id", id, "err", err)
		}
	}()
}

// download fetches the clip into a temp file in the cache directory and
// renames it into place, so readers never see a partial file.
func (c *Cache) download(ctx context.Context, id, path string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/%s.mp3", c.base, SubdirFor(id), id)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("audio %s: %s", id, resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("audio %s: %s", id, resp.Status)
		}
		return writeAtomic(c.dir, id, path, resp.Body)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxDownloadTries-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	slog.Debug("audio: cached clip", "audio_id", id, "url", url)
	return nil
}

func writeAtomic(dir, id, path string, body io.Reader) error {
	tmp := filepath.Join(dir, "."+id+".mp3.tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
