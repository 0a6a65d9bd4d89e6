package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vocab.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func now() string { return NowString(time.Now()) }

func TestMigrateSetsVersion(t *testing.T) {
	s := openTestStore(t)
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		t.Fatal(err)
	}
	if v != len(migrations) {
		t.Errorf("user_version = %d, want %d", v, len(migrations))
	}

	// Reopening an already-migrated database is a no-op.
	s2, err := Open(s.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Close()
}

func TestUpsertBaseEntryBumpsCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := UpsertBaseParams{
		Term: "apple", Translation: "яблоко", SrcLang: "EN", DstLang: "RU",
		DetectedRaw: "EN", Now: now(),
	}

	for i := 1; i <= 2; i++ {
		if err := s.Update(ctx, func(r *Repo) error {
			return r.UpsertBaseEntry(ctx, p)
		}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
		e, err := s.Repo().GetBaseEntryAnySrc(ctx, "apple", "RU", "")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if e.Count != i {
			t.Errorf("after upsert %d: count = %d, want %d", i, e.Count, i)
		}
		if e.Translation != "яблоко" {
			t.Errorf("translation = %q", e.Translation)
		}
	}

	// Only one row per (term, src, dst).
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE term='apple'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("entries rows = %d, want 1", n)
	}
}

func TestGetBaseEntryAnySrcPrefersHint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, src := range []string{"EN", "DA"} {
		err := s.Update(ctx, func(r *Repo) error {
			return r.UpsertBaseEntry(ctx, UpsertBaseParams{
				Term: "tag", Translation: "t-" + src, SrcLang: src, DstLang: "RU", Now: now(),
			})
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	e, err := s.Repo().GetBaseEntryAnySrc(ctx, "tag", "RU", "DA")
	if err != nil {
		t.Fatal(err)
	}
	if e.SrcLang != "DA" {
		t.Errorf("src hint ignored: got %s", e.SrcLang)
	}
}

func TestVariantRejectsTermEcho(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(r *Repo) error {
		if err := r.UpsertVariant(ctx, "stone", "Stone.", "EN", "RU", now()); err != nil {
			return err
		}
		return r.UpsertVariant(ctx, "stone", "камень", "EN", "RU", now())
	})
	if err != nil {
		t.Fatal(err)
	}

	vs, err := s.Repo().ListVariants(ctx, "stone", "EN", "RU", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 1 || vs[0].Translation != "камень" {
		t.Errorf("variants = %+v, want only камень", vs)
	}
}

func TestCtxEvictionKeepsThreeAndCurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var lastHash string
	for i := 0; i < 4; i++ {
		lastHash = fmt.Sprintf("hash-%d", i)
		ts := NowString(time.Now().Add(time.Duration(i) * time.Minute))
		err := s.Update(ctx, func(r *Repo) error {
			return r.UpsertCtxEntry(ctx, UpsertCtxParams{
				Term: "apple", Translation: fmt.Sprintf("перевод-%d", i),
				SrcLang: "EN", DstLang: "RU",
				CtxHash: lastHash, CtxText: fmt.Sprintf("sentence %d", i),
				Now: ts,
			})
		})
		if err != nil {
			t.Fatalf("upsert ctx %d: %v", i, err)
		}
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries_ctx WHERE term='apple'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("ctx rows = %d, want 3", n)
	}

	if _, err := s.Repo().GetCtxEntry(ctx, "apple", "EN", "RU", lastHash); err != nil {
		t.Errorf("current hash evicted: %v", err)
	}
}

func TestListDueNormalizesLegacyMilliseconds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	nowTS := time.Now().Unix()

	if err := s.Update(ctx, func(r *Repo) error {
		return r.UpsertBaseEntry(ctx, UpsertBaseParams{
			Term: "legacy", Translation: "старый", SrcLang: "EN", DstLang: "RU", Now: now(),
		})
	}); err != nil {
		t.Fatal(err)
	}
	e, err := s.Repo().GetBaseEntryAnySrc(ctx, "legacy", "RU", "")
	if err != nil {
		t.Fatal(err)
	}

	// Millisecond due_at in the past once divided by 1000.
	legacyDue := (nowTS - 100) * 1000
	if _, err := s.db.Exec(
		`INSERT INTO training_cards (entry_id, src_lang, due_at) VALUES (?, 'EN', ?)`,
		e.ID, legacyDue); err != nil {
		t.Fatal(err)
	}

	due, err := s.Repo().ListDue(ctx, []string{"EN"}, nowTS, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %d rows, want 1", len(due))
	}
	if due[0].DueAt != nowTS-100 {
		t.Errorf("normalized due_at = %d, want %d", due[0].DueAt, nowTS-100)
	}
}

func TestEnsureCardIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Update(ctx, func(r *Repo) error {
		return r.UpsertBaseEntry(ctx, UpsertBaseParams{
			Term: "card", Translation: "карта", SrcLang: "EN", DstLang: "RU", Now: now(),
		})
	}); err != nil {
		t.Fatal(err)
	}
	e, err := s.Repo().GetBaseEntryAnySrc(ctx, "card", "RU", "")
	if err != nil {
		t.Fatal(err)
	}

	var first, second int64
	if err := s.Update(ctx, func(r *Repo) error {
		var err error
		first, err = r.EnsureCardForEntry(ctx, e.ID, "EN", time.Now().Unix())
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, func(r *Repo) error {
		var err error
		second, err = r.EnsureCardForEntry(ctx, e.ID, "EN", time.Now().Unix())
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("card ids differ: %d vs %d", first, second)
	}
}

func TestIncHardNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Repo().IncHard(context.Background(), "ghost", "EN")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBookmarksUpsertAndRelink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := Mark{
		Path: "/books/alpha.txt", Fingerprint: "fp-1",
		Lnum: 10, Col: 4, Length: 5, Term: "apple", Kind: "mw",
	}
	id1, err := s.Repo().UpsertMark(ctx, m, now())
	if err != nil {
		t.Fatal(err)
	}

	m.Term = "apples"
	id2, err := s.Repo().UpsertMark(ctx, m, now())
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("upsert created a second row: %d vs %d", id1, id2)
	}

	if err := s.Repo().RelinkFingerprint(ctx, "fp-1", "/books/beta.txt", now()); err != nil {
		t.Fatal(err)
	}
	marks, err := s.Repo().ListMarksByPath(ctx, "/books/beta.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(marks) != 1 || marks[0].Term != "apples" {
		t.Errorf("relinked marks = %+v", marks)
	}
}

func TestDefinitionsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := DefinitionRow{
		Term: "apple", SrcLang: "EN",
		Noun:      []string{"a fruit", "a tree"},
		AudioMain: "apple001",
		AudioIDs:  []string{"apple001", "apple002"},
		RawJSON:   `[{"meta":{"id":"apple"}}]`,
	}
	if err := s.Update(ctx, func(r *Repo) error {
		return r.UpsertDefinitions(ctx, d, now())
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Repo().GetDefinitions(ctx, "apple", "EN")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Noun) != 2 || got.Noun[0] != "a fruit" {
		t.Errorf("noun bucket = %v", got.Noun)
	}
	if got.AudioMain != "apple001" || len(got.AudioIDs) != 2 {
		t.Errorf("audio = %q %v", got.AudioMain, got.AudioIDs)
	}
	if len(got.Verb) != 0 {
		t.Errorf("verb bucket should be empty, got %v", got.Verb)
	}

	// created_at survives a second upsert.
	first := got.CreatedAt
	if err := s.Update(ctx, func(r *Repo) error {
		return r.UpsertDefinitions(ctx, d, NowString(time.Now().Add(time.Hour)))
	}); err != nil {
		t.Fatal(err)
	}
	got2, err := s.Repo().GetDefinitions(ctx, "apple", "EN")
	if err != nil {
		t.Fatal(err)
	}
	if got2.CreatedAt != first {
		t.Errorf("created_at changed on upsert: %q -> %q", first, got2.CreatedAt)
	}
}

func TestParseTimeLayouts(t *testing.T) {
	for _, in := range []string{
		"2025-01-02T15:04:05Z",
		"2025-01-02 15:04:05",
		"2025-01-02 15:04:05.123456",
		"2025-01-02",
	} {
		if _, err := ParseTime(in); err != nil {
			t.Errorf("ParseTime(%q): %v", in, err)
		}
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("ParseTime should reject junk")
	}
}
