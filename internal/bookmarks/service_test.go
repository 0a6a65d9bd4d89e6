package bookmarks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "vocab.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func writeBook(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUpsertAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	book := writeBook(t, t.TempDir(), "alpha.txt", "He threw a stone.\n")

	res, err := svc.Upsert(ctx, UpsertRequest{
		Path: book, Lnum: 1, Col: 12, Length: 5, Term: "stone", Kind: "mw",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ID == 0 || res.Fingerprint == "" {
		t.Errorf("result = %+v", res)
	}

	// Same anchor updates in place.
	res2, err := svc.Upsert(ctx, UpsertRequest{
		Path: book, Lnum: 1, Col: 12, Length: 6, Term: "stones", Kind: "mw",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res2.ID != res.ID {
		t.Errorf("second upsert created new row: %d vs %d", res2.ID, res.ID)
	}

	list, err := svc.List(ctx, book)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Marks) != 1 || list.Marks[0].Term != "stones" {
		t.Errorf("marks = %+v", list.Marks)
	}
	if list.Fingerprint != res.Fingerprint {
		t.Errorf("fingerprint mismatch: %q vs %q", list.Fingerprint, res.Fingerprint)
	}
}

func TestListRecoversMovedFileByFingerprint(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()
	book := writeBook(t, dir, "alpha.txt", "Identical content.\n")

	if _, err := svc.Upsert(ctx, UpsertRequest{
		Path: book, Lnum: 3, Col: 1, Length: 9, Term: "identical", Kind: "f2",
	}); err != nil {
		t.Fatal(err)
	}

	// Move the file; content (and fingerprint) stay the same.
	moved := filepath.Join(dir, "beta.txt")
	if err := os.Rename(book, moved); err != nil {
		t.Fatal(err)
	}

	list, err := svc.List(ctx, moved)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Marks) != 1 || list.Marks[0].Term != "identical" {
		t.Fatalf("marks not recovered: %+v", list.Marks)
	}

	// The relink is persistent: a second list hits the path fast path.
	again, err := svc.List(ctx, moved)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Marks) != 1 {
		t.Errorf("relinked marks lost: %+v", again.Marks)
	}
}

func TestUpsertValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []UpsertRequest{
		{Path: "", Lnum: 1, Kind: "mw"},
		{Path: "/tmp/x", Lnum: 0, Kind: "mw"},
		{Path: "/tmp/x", Lnum: 1, Kind: "bogus"},
	}
	for _, req := range cases {
		if _, err := svc.Upsert(ctx, req); !apperr.IsArgs(err) {
			t.Errorf("Upsert(%+v): err = %v, want ARGS", req, err)
		}
	}
}

func TestUpsertMissingFileStillStores(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ghost := filepath.Join(t.TempDir(), "ghost.txt")

	res, err := svc.Upsert(ctx, UpsertRequest{
		Path: ghost, Lnum: 2, Col: 0, Length: 4, Term: "word", Kind: "mw",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fingerprint != "" {
		t.Errorf("fingerprint = %q, want empty for missing file", res.Fingerprint)
	}

	list, err := svc.List(ctx, ghost)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Marks) != 1 {
		t.Errorf("marks = %+v", list.Marks)
	}
}
