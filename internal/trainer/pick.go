package trainer

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/storage"
	"github.com/Romariozh/vim-deepl/pkg/types"
)

// Next selects the next training item. Pool precedence: due cards, then
// (with probability srs_new_ratio) an unseen entry, then the hardest cards,
// then the legacy usage-based fallback. When no candidate exists at all the
// returned item carries an in-band error.
func (s *Service) Next(ctx context.Context, srcFilter string, excludeCardIDs []int64) (types.TrainerItem, error) {
	cfg := s.config()
	srcLangs := supportedLangs
	if f := strings.ToUpper(strings.TrimSpace(srcFilter)); f != "" {
		srcLangs = []string{f}
	}
	nowTS := s.now().Unix()
	repo := s.store.Repo()

	// 1. Due pool: the most overdue, most-lapsed card wins outright.
	due, err := repo.ListDue(ctx, srcLangs, nowTS, 1, excludeCardIDs)
	if err != nil {
		return types.TrainerItem{}, apperr.Wrap(apperr.CodeStorage, err, "due pool")
	}
	if len(due) > 0 {
		return s.finalize(ctx, itemFromRow(due[0], types.ModeSRSDue), srcLangs)
	}

	// 2. New pool, probabilistically: surface an unseen entry and give it a
	// card due now.
	if s.randF() < cfg.SRSNewRatio {
		fresh, err := repo.ListNew(ctx, srcLangs, 1)
		if err != nil {
			return types.TrainerItem{}, apperr.Wrap(apperr.CodeStorage, err, "new pool")
		}
		if len(fresh) > 0 {
			item, err := s.itemFromEntry(ctx, &fresh[0], types.ModeSRSNew, nowTS)
			if err != nil {
				return types.TrainerItem{}, err
			}
			return s.finalize(ctx, item, srcLangs)
		}
	}

	// 3. Hard pool: triangular draw inside the hardest few so sessions do not
	// fixate on one card.
	hard, err := repo.ListHard(ctx, srcLangs, cfg.HardRandomTopN, excludeCardIDs)
	if err != nil {
		return types.TrainerItem{}, apperr.Wrap(apperr.CodeStorage, err, "hard pool")
	}
	if len(hard) > 0 {
		row := hard[s.triangularIndex(len(hard))]
		return s.finalize(ctx, itemFromRow(row, types.ModeSRSHard), srcLangs)
	}

	// 4. Legacy fallback: usage-based selection over raw entries, for
	// databases predating cards.
	return s.pickFallback(ctx, srcLangs, excludeCardIDs, nowTS)
}

// pickFallback implements the pre-SRS selection: recent/old bucketing,
// mastery filter, deterministic sort, triangular draw in the top slice. It
// never bumps usage counters.
func (s *Service) pickFallback(ctx context.Context, srcLangs []string, excludeCardIDs []int64, nowTS int64) (types.TrainerItem, error) {
	cfg := s.config()
	repo := s.store.Repo()

	entries, err := repo.ListEntriesForTraining(ctx, srcLangs)
	if err != nil {
		return types.TrainerItem{}, apperr.Wrap(apperr.CodeStorage, err, "fallback pool")
	}
	if len(entries) == 0 {
		return types.TrainerItem{Type: "train", Error: "no words to train"}, nil
	}

	if excluded := s.excludedEntryIDs(ctx, excludeCardIDs); len(excluded) > 0 {
		kept := entries[:0:0]
		for _, e := range entries {
			if _, skip := excluded[e.ID]; !skip {
				kept = append(kept, e)
			}
		}
		// When everything is excluded the session has cycled the whole
		// vocabulary; repeats beat an empty answer.
		if len(kept) > 0 {
			entries = kept
		}
	}

	// Bucket by age, then prefer recent words with the configured
	// probability.
	var recent, old []storage.Entry
	cutoff := nowTS - int64(cfg.RecentDays)*daySeconds
	for _, e := range entries {
		if entryTime(e.CreatedAt) >= cutoff {
			recent = append(recent, e)
		} else {
			old = append(old, e)
		}
	}
	pool := entries
	switch {
	case len(recent) > 0 && len(old) > 0:
		if s.randF() < cfg.RecentRatio {
			pool = recent
		} else {
			pool = old
		}
	case len(recent) > 0:
		pool = recent
	case len(old) > 0:
		pool = old
	}

	// Unmastered words first, when any remain.
	var unmastered []storage.Entry
	for _, e := range pool {
		if e.Count < cfg.MasteryCount {
			unmastered = append(unmastered, e)
		}
	}
	if len(unmastered) > 0 {
		pool = unmastered
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.Count != b.Count {
			return a.Count < b.Count
		}
		if a.Hard != b.Hard {
			return a.Hard > b.Hard
		}
		return lastTouched(a) < lastTouched(b)
	})

	top := int(math.Ceil(float64(len(pool)) * 0.2))
	if top < 1 {
		top = 1
	}
	chosen := pool[s.triangularIndex(top)]

	item, err := s.itemFromEntry(ctx, &chosen, types.ModeFallback, nowTS)
	if err != nil {
		return types.TrainerItem{}, err
	}
	return s.finalize(ctx, item, srcLangs)
}

// excludedEntryIDs maps the excluded card ids onto their entry ids.
func (s *Service) excludedEntryIDs(ctx context.Context, cardIDs []int64) map[int64]struct{} {
	if len(cardIDs) == 0 {
		return nil
	}
	out := make(map[int64]struct{}, len(cardIDs))
	repo := s.store.Repo()
	for _, id := range cardIDs {
		card, err := repo.GetCard(ctx, id)
		if err != nil {
			continue
		}
		if card.EntryID != 0 {
			out[card.EntryID] = struct{}{}
		}
	}
	return out
}

// itemFromEntry ensures the entry has a card and builds the item from the
// stored card state.
func (s *Service) itemFromEntry(ctx context.Context, e *storage.Entry, mode types.TrainerMode, nowTS int64) (types.TrainerItem, error) {
	var cardID int64
	err := s.store.UpdateWithRetry(ctx, func(r *storage.Repo) error {
		var err error
		cardID, err = r.EnsureCardForEntry(ctx, e.ID, e.SrcLang, nowTS)
		return err
	})
	if err != nil {
		return types.TrainerItem{}, apperr.Wrap(apperr.CodeStorage, err, "ensure card")
	}
	card, err := s.store.Repo().GetCard(ctx, cardID)
	if err != nil {
		return types.TrainerItem{}, apperr.Wrap(apperr.CodeStorage, err, "load card")
	}

	return types.TrainerItem{
		Type:          "train",
		Mode:          mode,
		CardID:        card.ID,
		EntryID:       e.ID,
		Term:          e.Term,
		Translation:   e.Translation,
		SrcLang:       e.SrcLang,
		DstLang:       e.DstLang,
		DetectedRaw:   e.DetectedRaw,
		Reps:          card.Reps,
		Lapses:        card.Lapses,
		EF:            card.EF,
		IntervalDays:  card.IntervalDays,
		DueAt:         card.DueAt,
		CorrectStreak: card.CorrectStreak,
		WrongStreak:   card.WrongStreak,
		Count:         int64(e.Count),
		Hard:          int64(e.Hard),
	}, nil
}

// itemFromRow converts a card+entry join row.
func itemFromRow(row storage.TrainerRow, mode types.TrainerMode) types.TrainerItem {
	return types.TrainerItem{
		Type:          "train",
		Mode:          mode,
		CardID:        row.CardID,
		EntryID:       row.EntryID,
		Term:          row.Term,
		Translation:   row.Translation,
		SrcLang:       row.SrcLang,
		DstLang:       row.DstLang,
		DetectedRaw:   row.DetectedRaw,
		Reps:          row.Reps,
		Lapses:        row.Lapses,
		EF:            row.EF,
		IntervalDays:  row.IntervalDays,
		DueAt:         row.DueAt,
		CorrectStreak: row.CorrectStreak,
		WrongStreak:   row.WrongStreak,
		Count:         int64(row.Count),
		Hard:          int64(row.Hard),
	}
}

// finalize attaches the progress snapshot, reconciles the context fields,
// and enriches the item with dictionary metadata, variants, and context
// translations. Enrichment failures degrade silently.
func (s *Service) finalize(ctx context.Context, item types.TrainerItem, srcLangs []string) (types.TrainerItem, error) {
	s.metrics.RecordTrainerPick(ctx, string(item.Mode))

	stats, day, todayDone, streak, err := s.progress(ctx, srcLangs)
	if err != nil {
		return types.TrainerItem{}, err
	}
	item.Stats = stats
	item.Day = day
	item.TodayDone = todayDone
	item.StreakDays = streak

	// Whichever of the two context fields is missing inherits the other, so
	// the editor always has something to show.
	if item.ContextRaw == "" {
		item.ContextRaw = item.DetectedRaw
	}
	if item.DetectedRaw == "" {
		item.DetectedRaw = item.ContextRaw
	}

	if s.meta != nil && item.SrcLang == "EN" {
		if set, err := s.meta.EnsureDefinitions(ctx, item.Term, item.SrcLang); err == nil && !set.Empty() {
			item.MWDefinitions = set
		}
	}

	repo := s.store.Repo()
	if vs, err := repo.ListVariants(ctx, item.Term, item.SrcLang, item.DstLang, 10); err == nil {
		for _, v := range vs {
			item.Variants = append(item.Variants, v.Translation)
		}
	} else {
		slog.Warn("trainer: list variants", "term", item.Term, "err", err)
	}
	if ctxList, err := repo.ListCtxTranslations(ctx, item.Term, item.SrcLang, item.DstLang, 5); err == nil {
		item.CtxList = ctxList
	} else {
		slog.Warn("trainer: list context translations", "term", item.Term, "err", err)
	}

	return item, nil
}

// progress computes the mastery snapshot and the daily streak.
func (s *Service) progress(ctx context.Context, srcLangs []string) (*types.TrainerStats, string, int, int, error) {
	cfg := s.config()
	repo := s.store.Repo()

	entries, err := repo.ListEntriesForTraining(ctx, srcLangs)
	if err != nil {
		return nil, "", 0, 0, apperr.Wrap(apperr.CodeStorage, err, "progress entries")
	}
	mastered := 0
	for _, e := range entries {
		if e.Count >= cfg.MasteryCount {
			mastered++
		}
	}
	stats := &types.TrainerStats{
		Total:            len(entries),
		Mastered:         mastered,
		MasteryThreshold: cfg.MasteryCount,
	}
	if stats.Total > 0 {
		stats.MasteryPercent = mastered * 100 / stats.Total
	}

	now := s.now()
	day := now.Format(dayLayout)
	todayDone, err := repo.CountReviewsForDay(ctx, day)
	if err != nil {
		return nil, "", 0, 0, apperr.Wrap(apperr.CodeStorage, err, "progress reviews")
	}

	days, err := repo.ListActiveDays(ctx)
	if err != nil {
		return nil, "", 0, 0, apperr.Wrap(apperr.CodeStorage, err, "progress days")
	}
	active := make(map[string]struct{}, len(days))
	for _, d := range days {
		active[d] = struct{}{}
	}
	streak := 0
	for cur := now; ; cur = cur.AddDate(0, 0, -1) {
		if _, ok := active[cur.Format(dayLayout)]; !ok {
			break
		}
		streak++
	}

	return stats, day, todayDone, streak, nil
}

// triangularIndex draws an index in [0, n) with linearly decreasing
// probability, so index 0 is the most likely.
func (s *Service) triangularIndex(n int) int {
	if n <= 1 {
		return 0
	}
	idx := int(float64(n) * (1 - math.Sqrt(1-s.randF())))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// entryTime parses a textual created_at; unparseable values sort as ancient.
func entryTime(ts string) int64 {
	t, err := storage.ParseTime(ts)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// lastTouched is last_used when present, else created_at.
func lastTouched(e storage.Entry) int64 {
	if e.LastUsed != "" {
		return entryTime(e.LastUsed)
	}
	return entryTime(e.CreatedAt)
}
