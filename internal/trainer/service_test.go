package trainer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/config"
	"github.com/Romariozh/vim-deepl/internal/storage"
	"github.com/Romariozh/vim-deepl/pkg/types"
)

func testConfig() config.TrainerConfig {
	return config.TrainerConfig{
		RecentDays:     7,
		MasteryCount:   7,
		RecentRatio:    0.7,
		SRSNewRatio:    0.2,
		HardRandomTopN: 5,
	}
}

func newTestTrainer(t *testing.T, opts ...Option) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "vocab.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, testConfig(), opts...), store
}

func insertEntry(t *testing.T, store *storage.Store, term, src string) int64 {
	t.Helper()
	ctx := context.Background()
	if err := store.Update(ctx, func(r *storage.Repo) error {
		return r.UpsertBaseEntry(ctx, storage.UpsertBaseParams{
			Term: term, Translation: "перевод-" + term, SrcLang: src, DstLang: "RU",
			Now: storage.NowString(time.Now()),
		})
	}); err != nil {
		t.Fatal(err)
	}
	e, err := store.Repo().GetBaseEntry(ctx, term, src, "RU")
	if err != nil {
		t.Fatal(err)
	}
	return e.ID
}

func insertCard(t *testing.T, store *storage.Store, entryID, dueAt int64) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	if err := store.Update(ctx, func(r *storage.Repo) error {
		var err error
		id, err = r.EnsureCardForEntry(ctx, entryID, "EN", dueAt)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	return id
}

// fixedRand always skips the probabilistic new pool and picks index 0 in
// triangular draws.
func fixedRand() float64 { return 0.99 }

func TestNextPrefersDueCard(t *testing.T) {
	svc, store := newTestTrainer(t, WithRand(fixedRand))
	ctx := context.Background()
	now := time.Now().Unix()

	a := insertEntry(t, store, "overdue", "EN")
	b := insertEntry(t, store, "future", "EN")
	insertCard(t, store, a, now-10)
	insertCard(t, store, b, now+99999)

	item, err := svc.Next(ctx, "EN", nil)
	if err != nil {
		t.Fatal(err)
	}
	if item.Mode != types.ModeSRSDue {
		t.Errorf("mode = %q, want srs_due", item.Mode)
	}
	if item.Term != "overdue" {
		t.Errorf("term = %q, want overdue", item.Term)
	}
	if item.Stats == nil || item.Stats.Total != 2 {
		t.Errorf("stats = %+v", item.Stats)
	}
}

func TestNextNewPoolCreatesCard(t *testing.T) {
	// rand 0 < srs_new_ratio forces the new pool; the triangular draw also
	// lands on index 0.
	svc, store := newTestTrainer(t, WithRand(func() float64 { return 0 }))
	ctx := context.Background()

	insertEntry(t, store, "unseen", "EN")

	item, err := svc.Next(ctx, "EN", nil)
	if err != nil {
		t.Fatal(err)
	}
	if item.Mode != types.ModeSRSNew {
		t.Fatalf("mode = %q, want srs_new", item.Mode)
	}
	if item.CardID == 0 {
		t.Error("new pick did not create a card")
	}

	card, err := store.Repo().GetCard(ctx, item.CardID)
	if err != nil {
		t.Fatal(err)
	}
	if card.DueAt == 0 || card.DueAt > time.Now().Unix()+1 {
		t.Errorf("fresh card due_at = %d, want due now", card.DueAt)
	}
}

func TestNextHardPoolWhenNothingDue(t *testing.T) {
	svc, store := newTestTrainer(t, WithRand(fixedRand))
	ctx := context.Background()
	future := time.Now().Unix() + 50000

	easy := insertEntry(t, store, "easy", "EN")
	tough := insertEntry(t, store, "tough", "EN")
	insertCard(t, store, easy, future)
	toughCard := insertCard(t, store, tough, future)

	// Give the tough card lapses so it sorts first in the hard pool.
	if err := store.Update(ctx, func(r *storage.Repo) error {
		return r.UpdateCardSRS(ctx, toughCard, storage.SRSState{
			Lapses: 5, EF: 1.3, IntervalDays: 1,
			DueAt: future, WrongStreak: 3,
		})
	}); err != nil {
		t.Fatal(err)
	}

	item, err := svc.Next(ctx, "EN", nil)
	if err != nil {
		t.Fatal(err)
	}
	if item.Mode != types.ModeSRSHard {
		t.Fatalf("mode = %q, want srs_hard", item.Mode)
	}
	if item.Term != "tough" {
		t.Errorf("term = %q, want tough (index 0 of hard pool)", item.Term)
	}
}

func TestNextFallbackWithoutCards(t *testing.T) {
	svc, store := newTestTrainer(t, WithRand(fixedRand))
	ctx := context.Background()

	insertEntry(t, store, "plain", "EN")

	before, err := store.Repo().GetBaseEntry(ctx, "plain", "EN", "RU")
	if err != nil {
		t.Fatal(err)
	}

	item, err := svc.Next(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if item.Mode != types.ModeFallback {
		t.Fatalf("mode = %q, want fallback", item.Mode)
	}
	if item.CardID == 0 {
		t.Error("fallback did not ensure a card")
	}

	// Fallback selection never bumps usage.
	after, err := store.Repo().GetBaseEntry(ctx, "plain", "EN", "RU")
	if err != nil {
		t.Fatal(err)
	}
	if after.Count != before.Count || after.LastUsed != before.LastUsed {
		t.Errorf("usage changed by pick: count %d->%d last_used %q->%q",
			before.Count, after.Count, before.LastUsed, after.LastUsed)
	}
}

func TestNextNoCandidates(t *testing.T) {
	svc, _ := newTestTrainer(t, WithRand(fixedRand))

	item, err := svc.Next(context.Background(), "EN", nil)
	if err != nil {
		t.Fatal(err)
	}
	if item.Error == "" {
		t.Error("empty vocabulary must report an in-band error")
	}
}

func TestReviewUpdatesCardAndEntry(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, store := newTestTrainer(t,
		WithRand(fixedRand),
		WithClock(func() time.Time { return fixed }),
	)
	ctx := context.Background()

	entryID := insertEntry(t, store, "word", "EN")
	cardID := insertCard(t, store, entryID, fixed.Unix()-10)

	item, err := svc.Review(ctx, cardID, 5, "EN")
	if err != nil {
		t.Fatal(err)
	}
	if item.Type != "train" {
		t.Errorf("next item type = %q", item.Type)
	}

	card, err := store.Repo().GetCard(ctx, cardID)
	if err != nil {
		t.Fatal(err)
	}
	if card.Reps != 1 || card.Lapses != 0 || card.IntervalDays != 1 {
		t.Errorf("card = reps %d lapses %d interval %d", card.Reps, card.Lapses, card.IntervalDays)
	}
	if card.DueAt-card.LastReviewAt != daySeconds {
		t.Errorf("due-last = %d, want %d", card.DueAt-card.LastReviewAt, daySeconds)
	}
	if card.LastGrade != 5 {
		t.Errorf("last_grade = %d", card.LastGrade)
	}

	// Review bumps the owning entry's usage.
	e, err := store.Repo().EntryByID(ctx, entryID)
	if err != nil {
		t.Fatal(err)
	}
	if e.Count != 2 {
		t.Errorf("entry count = %d, want 2 after one review", e.Count)
	}

	n, err := store.Repo().CountReviewsForDay(ctx, fixed.Format(dayLayout))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("reviews today = %d, want 1", n)
	}
}

func TestReviewValidation(t *testing.T) {
	svc, store := newTestTrainer(t)
	ctx := context.Background()

	if _, err := svc.Review(ctx, 1, 9, ""); !apperr.IsArgs(err) {
		t.Errorf("bad grade: err = %v, want ARGS", err)
	}
	if _, err := svc.Review(ctx, 12345, 3, ""); !apperr.IsNotFound(err) {
		t.Errorf("missing card: err = %v, want NOT_FOUND", err)
	}

	entryID := insertEntry(t, store, "susp", "EN")
	cardID := insertCard(t, store, entryID, time.Now().Unix())
	if err := store.Repo().SetCardSuspended(ctx, cardID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Review(ctx, cardID, 3, ""); !apperr.IsArgs(err) {
		t.Errorf("suspended card: err = %v, want ARGS", err)
	}
}

func TestProgressStreak(t *testing.T) {
	fixed := time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)
	svc, store := newTestTrainer(t,
		WithRand(fixedRand),
		WithClock(func() time.Time { return fixed }),
	)
	ctx := context.Background()

	entryID := insertEntry(t, store, "streak", "EN")
	cardID := insertCard(t, store, entryID, fixed.Unix())
	for _, day := range []string{"2025-01-01", "2025-01-02", "2025-01-04"} {
		if err := store.Update(ctx, func(r *storage.Repo) error {
			return r.InsertReview(ctx, cardID, fixed.Unix(), 4, day)
		}); err != nil {
			t.Fatal(err)
		}
	}

	item, err := svc.Next(ctx, "EN", nil)
	if err != nil {
		t.Fatal(err)
	}
	if item.Day != "2025-01-04" || item.TodayDone != 1 {
		t.Errorf("day/today = %q/%d", item.Day, item.TodayDone)
	}
	if item.StreakDays != 1 {
		t.Errorf("streak = %d, want 1 (gap on Jan 3)", item.StreakDays)
	}

	// From Jan 2 the streak covers Jan 1-2.
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC) }
	item, err = svc.Next(ctx, "EN", nil)
	if err != nil {
		t.Fatal(err)
	}
	if item.StreakDays != 2 {
		t.Errorf("streak = %d, want 2", item.StreakDays)
	}
}

func TestMarkHard(t *testing.T) {
	svc, store := newTestTrainer(t)
	ctx := context.Background()

	insertEntry(t, store, "stone", "EN")

	res, err := svc.MarkHard(ctx, "stone", "en")
	if err != nil {
		t.Fatal(err)
	}
	if res.Hard != 1 || res.SrcLang != "EN" {
		t.Errorf("result = %+v", res)
	}

	// Unsupported language reports in-band.
	res, err = svc.MarkHard(ctx, "stone", "DE")
	if err != nil {
		t.Fatal(err)
	}
	if res.Error == "" {
		t.Error("unsupported language must set Error")
	}

	if _, err := svc.MarkHard(ctx, "ghost", "EN"); !apperr.IsNotFound(err) {
		t.Errorf("missing entry: err = %v, want NOT_FOUND", err)
	}
}

func TestMarkIgnoreExcludesFromTraining(t *testing.T) {
	svc, store := newTestTrainer(t, WithRand(fixedRand))
	ctx := context.Background()

	insertEntry(t, store, "noise", "EN")

	res, err := svc.MarkIgnore(ctx, "noise", "EN", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ignore {
		t.Errorf("result = %+v", res)
	}

	item, err := svc.Next(ctx, "EN", nil)
	if err != nil {
		t.Fatal(err)
	}
	if item.Error == "" {
		t.Errorf("ignored entry still trainable: %+v", item)
	}
}

func TestReviewExcludesJustReviewedFromDuePool(t *testing.T) {
	svc, store := newTestTrainer(t, WithRand(fixedRand))
	ctx := context.Background()
	now := time.Now().Unix()

	a := insertEntry(t, store, "first", "EN")
	b := insertEntry(t, store, "second", "EN")
	cardA := insertCard(t, store, a, now-100)
	insertCard(t, store, b, now-50)

	next, err := svc.Review(ctx, cardA, 2, "EN")
	if err != nil {
		t.Fatal(err)
	}
	// Grade < 3 reschedules A for tomorrow; B is the remaining due card.
	if next.Term != "second" || next.Mode != types.ModeSRSDue {
		t.Errorf("next = %q mode %q, want second/srs_due", next.Term, next.Mode)
	}
}
