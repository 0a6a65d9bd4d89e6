package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// Card is one spaced-repetition card. DueAt and LastReviewAt are unix
// seconds; legacy millisecond values are normalized at query time.
type Card struct {
	ID            int64
	EntryID       int64
	SrcLang       string
	Reps          int
	Lapses        int
	EF            float64
	IntervalDays  int
	DueAt         int64
	LastReviewAt  int64
	LastGrade     int
	CorrectStreak int
	WrongStreak   int
	Suspended     bool
}

// SRSState is the post-review card state written by UpdateCardSRS.
type SRSState struct {
	Reps          int
	Lapses        int
	EF            float64
	IntervalDays  int
	DueAt         int64
	LastReviewAt  int64
	LastGrade     int
	CorrectStreak int
	WrongStreak   int
}

// TrainerRow joins a card with its entry: everything the trainer needs to
// build one training item.
type TrainerRow struct {
	CardID        int64
	EntryID       int64
	Term          string
	Translation   string
	SrcLang       string
	DstLang       string
	DetectedRaw   string
	CreatedAt     string
	LastUsed      string
	Count         int
	Hard          int
	Reps          int
	Lapses        int
	EF            float64
	IntervalDays  int
	DueAt         int64
	LastReviewAt  int64
	CorrectStreak int
	WrongStreak   int
}

// normDue converts legacy millisecond due_at values to seconds in SQL, so
// ordering and due comparisons treat old and new rows uniformly.
const normDue = `CASE WHEN COALESCE(c.due_at, 0) > 10000000000
	THEN c.due_at / 1000 ELSE COALESCE(c.due_at, 0) END`

const trainerRowColumns = `c.id, e.id, e.term, e.translation, e.src_lang,
	e.dst_lang, COALESCE(e.detected_raw, ''), e.created_at,
	COALESCE(e.last_used, ''), e.count, e.hard,
	c.reps, c.lapses, c.ef, c.interval_days, ` + normDue + `,
	COALESCE(CASE WHEN COALESCE(c.last_review_at, 0) > 10000000000
	    THEN c.last_review_at / 1000 ELSE c.last_review_at END, 0),
	c.correct_streak, c.wrong_streak`

func scanTrainerRows(rows *sql.Rows) ([]TrainerRow, error) {
	defer rows.Close()
	var out []TrainerRow
	for rows.Next() {
		var t TrainerRow
		if err := rows.Scan(&t.CardID, &t.EntryID, &t.Term, &t.Translation,
			&t.SrcLang, &t.DstLang, &t.DetectedRaw, &t.CreatedAt, &t.LastUsed,
			&t.Count, &t.Hard, &t.Reps, &t.Lapses, &t.EF, &t.IntervalDays,
			&t.DueAt, &t.LastReviewAt, &t.CorrectStreak, &t.WrongStreak); err != nil {
			return nil, wrapDBError("scan trainer row", err)
		}
		out = append(out, t)
	}
	return out, wrapDBError("trainer rows", rows.Err())
}

// placeholders returns "?,?,…" with n slots.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func appendStrings(args []any, ss []string) []any {
	for _, s := range ss {
		args = append(args, s)
	}
	return args
}

func appendIDs(args []any, ids []int64) []any {
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

// ListDue returns due cards: non-suspended, entry not ignored, source
// language in srcLangs, normalized due_at at or before nowTS, card not in
// excludeCardIDs. Most overdue and most-lapsed first.
func (r *Repo) ListDue(ctx context.Context, srcLangs []string, nowTS int64, limit int, excludeCardIDs []int64) ([]TrainerRow, error) {
	if len(srcLangs) == 0 {
		return nil, nil
	}
	q := `
		SELECT ` + trainerRowColumns + `
		FROM training_cards c
		JOIN entries e ON e.id = c.entry_id
		WHERE c.suspended = 0
		  AND e.ignore = 0
		  AND e.src_lang IN (` + placeholders(len(srcLangs)) + `)
		  AND ` + normDue + ` > 0
		  AND ` + normDue + ` <= ?`
	args := appendStrings(nil, srcLangs)
	args = append(args, nowTS)
	if len(excludeCardIDs) > 0 {
		q += ` AND c.id NOT IN (` + placeholders(len(excludeCardIDs)) + `)`
		args = appendIDs(args, excludeCardIDs)
	}
	q += `
		ORDER BY ` + normDue + ` ASC, c.lapses DESC, c.wrong_streak DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapDBError("list due", err)
	}
	return scanTrainerRows(rows)
}

// ListNew returns entries that have no training card yet, in random order.
func (r *Repo) ListNew(ctx context.Context, srcLangs []string, limit int) ([]Entry, error) {
	if len(srcLangs) == 0 {
		return nil, nil
	}
	q := `
		SELECT ` + baseEntryColumns + `
		FROM entries
		WHERE ignore = 0
		  AND src_lang IN (` + placeholders(len(srcLangs)) + `)
		  AND NOT EXISTS (
		      SELECT 1 FROM training_cards c WHERE c.entry_id = entries.id
		  )
		ORDER BY RANDOM()
		LIMIT ?`
	args := appendStrings(nil, srcLangs)
	args = append(args, limit)

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapDBError("list new", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Term, &e.Translation, &e.SrcLang, &e.DstLang,
			&e.DetectedRaw, &e.CreatedAt, &e.LastUsed, &e.Count, &e.Hard, &e.Ignore); err != nil {
			return nil, wrapDBError("scan new entry", err)
		}
		out = append(out, e)
	}
	return out, wrapDBError("list new", rows.Err())
}

// ListHard returns the hardest cards: most lapses, then longest wrong
// streak, then most overdue, then least recently reviewed.
func (r *Repo) ListHard(ctx context.Context, srcLangs []string, limit int, excludeCardIDs []int64) ([]TrainerRow, error) {
	if len(srcLangs) == 0 {
		return nil, nil
	}
	q := `
		SELECT ` + trainerRowColumns + `
		FROM training_cards c
		JOIN entries e ON e.id = c.entry_id
		WHERE c.suspended = 0
		  AND e.ignore = 0
		  AND e.src_lang IN (` + placeholders(len(srcLangs)) + `)`
	args := appendStrings(nil, srcLangs)
	if len(excludeCardIDs) > 0 {
		q += ` AND c.id NOT IN (` + placeholders(len(excludeCardIDs)) + `)`
		args = appendIDs(args, excludeCardIDs)
	}
	q += `
		ORDER BY c.lapses DESC, c.wrong_streak DESC, ` + normDue + ` ASC,
		         COALESCE(c.last_review_at, 0) ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapDBError("list hard", err)
	}
	return scanTrainerRows(rows)
}

// ListEntriesForTraining returns all non-ignored entries for the fallback
// pool.
func (r *Repo) ListEntriesForTraining(ctx context.Context, srcLangs []string) ([]Entry, error) {
	if len(srcLangs) == 0 {
		return nil, nil
	}
	q := `
		SELECT ` + baseEntryColumns + `
		FROM entries
		WHERE ignore = 0
		  AND src_lang IN (` + placeholders(len(srcLangs)) + `)`
	rows, err := r.q.QueryContext(ctx, q, appendStrings(nil, srcLangs)...)
	if err != nil {
		return nil, wrapDBError("list training entries", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Term, &e.Translation, &e.SrcLang, &e.DstLang,
			&e.DetectedRaw, &e.CreatedAt, &e.LastUsed, &e.Count, &e.Hard, &e.Ignore); err != nil {
			return nil, wrapDBError("scan training entry", err)
		}
		out = append(out, e)
	}
	return out, wrapDBError("list training entries", rows.Err())
}

// EnsureCardForEntry returns the card id for entryID, creating the card due
// immediately when none exists. Idempotent. Call inside [Store.Update].
func (r *Repo) EnsureCardForEntry(ctx context.Context, entryID int64, srcLang string, nowTS int64) (int64, error) {
	var id int64
	err := r.q.QueryRowContext(ctx,
		`SELECT id FROM training_cards WHERE entry_id = ?`, entryID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, wrapDBError("ensure card", err)
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO training_cards (entry_id, src_lang, due_at)
		VALUES (?, ?, ?)`,
		entryID, srcLang, nowTS)
	if err != nil {
		return 0, wrapDBError("ensure card", err)
	}
	id, err = res.LastInsertId()
	return id, wrapDBError("ensure card", err)
}

// GetCard fetches a card by id with timestamps normalized to seconds.
func (r *Repo) GetCard(ctx context.Context, cardID int64) (*Card, error) {
	var c Card
	err := r.q.QueryRowContext(ctx, `
		SELECT c.id, COALESCE(c.entry_id, 0), COALESCE(c.src_lang, ''),
		       c.reps, c.lapses, c.ef, c.interval_days,
		       `+normDue+`,
		       COALESCE(CASE WHEN COALESCE(c.last_review_at, 0) > 10000000000
		           THEN c.last_review_at / 1000 ELSE c.last_review_at END, 0),
		       COALESCE(c.last_grade, 0), c.correct_streak, c.wrong_streak,
		       c.suspended
		FROM training_cards c
		WHERE c.id = ?`,
		cardID).Scan(&c.ID, &c.EntryID, &c.SrcLang, &c.Reps, &c.Lapses, &c.EF,
		&c.IntervalDays, &c.DueAt, &c.LastReviewAt, &c.LastGrade,
		&c.CorrectStreak, &c.WrongStreak, &c.Suspended)
	if err != nil {
		return nil, wrapDBError("get card", err)
	}
	return &c, nil
}

// UpdateCardSRS writes the post-review state. All timestamps are seconds.
func (r *Repo) UpdateCardSRS(ctx context.Context, cardID int64, s SRSState) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE training_cards SET
		    reps = ?, lapses = ?, ef = ?, interval_days = ?,
		    due_at = ?, last_review_at = ?, last_grade = ?,
		    correct_streak = ?, wrong_streak = ?
		WHERE id = ?`,
		s.Reps, s.Lapses, s.EF, s.IntervalDays, s.DueAt, s.LastReviewAt,
		s.LastGrade, s.CorrectStreak, s.WrongStreak, cardID)
	return wrapDBError("update card srs", err)
}

// SetCardSuspended flips the suspension flag on a card.
func (r *Repo) SetCardSuspended(ctx context.Context, cardID int64, suspended bool) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE training_cards SET suspended = ? WHERE id = ?`, suspended, cardID)
	if err != nil {
		return wrapDBError("set card suspended", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return wrapDBError("set card suspended", err)
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertReview appends one row to the immutable review log.
func (r *Repo) InsertReview(ctx context.Context, cardID int64, ts int64, grade int, day string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO training_reviews (card_id, ts, grade, day)
		VALUES (?, ?, ?, ?)`,
		cardID, ts, grade, day)
	return wrapDBError("insert review", err)
}

// CountReviewsForDay returns how many reviews were graded on the ISO day.
func (r *Repo) CountReviewsForDay(ctx context.Context, day string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM training_reviews WHERE day = ?`, day).Scan(&n)
	return n, wrapDBError("count reviews", err)
}

// ListActiveDays returns the distinct days with at least one review, newest
// first.
func (r *Repo) ListActiveDays(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT DISTINCT day FROM training_reviews
		WHERE day IS NOT NULL
		ORDER BY day DESC`)
	if err != nil {
		return nil, wrapDBError("list active days", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, wrapDBError("scan day", err)
		}
		out = append(out, d)
	}
	return out, wrapDBError("list active days", rows.Err())
}
