// Package bookmarks implements reading highlights anchored to positions in
// book files. Marks are keyed by (path, lnum, col, kind) and additionally
// carry a content fingerprint of the file, so a renamed or moved book finds
// its marks again and the stored paths self-heal.
package bookmarks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/storage"
	"github.com/Romariozh/vim-deepl/pkg/types"
)

// Service persists and retrieves reading marks.
type Service struct {
	store *storage.Store
	now   func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a bookmarks service.
func New(store *storage.Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertRequest describes one mark to store.
type UpsertRequest struct {
	Path   string
	Lnum   int
	Col    int
	Length int
	Term   string
	Kind   string // "f2" | "mw"
}

// UpsertResult is the response of a mark upsert.
type UpsertResult struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
}

// ListResult is the response of a mark listing.
type ListResult struct {
	Path        string       `json:"path"`
	Fingerprint string       `json:"fingerprint"`
	Marks       []types.Mark `json:"marks"`
}

// Upsert stores or refreshes a mark. The path is canonicalized and the
// file's current content fingerprint is recorded alongside.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (UpsertResult, error) {
	if strings.TrimSpace(req.Path) == "" {
		return UpsertResult{}, apperr.New(apperr.CodeArgs, "path is required")
	}
	if req.Lnum < 1 {
		return UpsertResult{}, apperr.New(apperr.CodeArgs, "lnum must be >= 1")
	}
	kind := strings.TrimSpace(req.Kind)
	if kind != "f2" && kind != "mw" {
		return UpsertResult{}, apperr.New(apperr.CodeArgs, "kind must be \"f2\" or \"mw\", got %q", req.Kind)
	}

	path := canonPath(req.Path)
	fp := fileFingerprint(path)

	var id int64
	err := s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
		var err error
		id, err = r.UpsertMark(ctx, storage.Mark{
			Path:        path,
			Fingerprint: fp,
			Lnum:        req.Lnum,
			Col:         req.Col,
			Length:      req.Length,
			Term:        req.Term,
			Kind:        kind,
		}, storage.NowString(s.now()))
		return err
	})
	if err != nil {
		return UpsertResult{}, apperr.Wrap(apperr.CodeStorage, err, "upsert mark")
	}
	return UpsertResult{ID: id, Path: path, Fingerprint: fp}, nil
}

// List returns the marks for a file. When the stored path yields nothing but
// the file's content fingerprint is known, marks are recovered by
// fingerprint and their stored paths are relinked to the new location.
func (s *Service) List(ctx context.Context, reqPath string) (ListResult, error) {
	if strings.TrimSpace(reqPath) == "" {
		return ListResult{}, apperr.New(apperr.CodeArgs, "path is required")
	}
	path := canonPath(reqPath)
	fp := fileFingerprint(path)

	repo := s.store.Repo()
	marks, err := repo.ListMarksByPath(ctx, path)
	if err != nil {
		return ListResult{}, apperr.Wrap(apperr.CodeStorage, err, "list marks")
	}

	if len(marks) == 0 && fp != "" {
		marks, err = repo.ListMarksByFingerprint(ctx, fp)
		if err != nil {
			return ListResult{}, apperr.Wrap(apperr.CodeStorage, err, "list marks by fingerprint")
		}
		if len(marks) > 0 {
			slog.Info("bookmarks: relinking marks to moved file",
				"path", path, "marks", len(marks))
			if err := s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
				return r.RelinkFingerprint(ctx, fp, path, storage.NowString(s.now()))
			}); err != nil {
				return ListResult{}, apperr.Wrap(apperr.CodeStorage, err, "relink marks")
			}
		}
	}

	out := ListResult{Path: path, Fingerprint: fp, Marks: make([]types.Mark, 0, len(marks))}
	for _, m := range marks {
		out.Marks = append(out.Marks, types.Mark{
			ID:     m.ID,
			Lnum:   m.Lnum,
			Col:    m.Col,
			Length: m.Length,
			Term:   m.Term,
			Kind:   m.Kind,
		})
	}
	return out, nil
}

// canonPath resolves symlinks and relative segments. When resolution fails
// (dangling link, missing file) the absolute form of the input is used so a
// mark can still be stored.
func canonPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// fileFingerprint hashes the file content. Unreadable files yield an empty
// fingerprint; the mark then anchors by path alone.
func fileFingerprint(path string) string {
	f, err := os.Open(path)
	if err != nil {
		slog.Debug("bookmarks: fingerprint unavailable", "path", path, "err", err)
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		slog.Warn("bookmarks: fingerprint read failed", "path", path, "err", err)
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}
