package storage

import (
	"context"
	"database/sql"
	"strings"
)

// Entry is one row of the base translation cache.
type Entry struct {
	ID          int64
	Term        string
	Translation string
	SrcLang     string
	DstLang     string
	DetectedRaw string
	CreatedAt   string
	LastUsed    string
	Count       int
	Hard        int
	Ignore      bool
}

// CtxEntry is one row of the sentence-context translation cache.
type CtxEntry struct {
	ID          int64
	Term        string
	Translation string
	SrcLang     string
	DstLang     string
	CtxHash     string
	CtxText     string
	CreatedAt   string
	LastUsed    string
	Count       int
}

// Variant is one accumulated meaning of a term.
type Variant struct {
	ID          int64
	Term        string
	Translation string
	SrcLang     string
	DstLang     string
	CreatedAt   string
	LastUsed    string
	Count       int
}

// NormalizeVariant canonicalizes a translation for variant storage: trimmed,
// inner whitespace collapsed to single spaces, trailing punctuation stripped.
func NormalizeVariant(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".,;:!?…")
}

const baseEntryColumns = `id, term, translation, src_lang, dst_lang,
	COALESCE(detected_raw, ''), created_at, COALESCE(last_used, ''),
	count, hard, ignore`

func scanEntry(row *sql.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Term, &e.Translation, &e.SrcLang, &e.DstLang,
		&e.DetectedRaw, &e.CreatedAt, &e.LastUsed, &e.Count, &e.Hard, &e.Ignore)
	if err != nil {
		return nil, wrapDBError("scan entry", err)
	}
	return &e, nil
}

// GetBaseEntry fetches the base-cache row for an exact (term, src, dst)
// triple. Term matching is case-insensitive and whitespace-trimmed; language
// codes are compared upper-cased.
func (r *Repo) GetBaseEntry(ctx context.Context, term, srcLang, dstLang string) (*Entry, error) {
	return scanEntry(r.q.QueryRowContext(ctx, `
		SELECT `+baseEntryColumns+`
		FROM entries
		WHERE trim(term) = trim(?) COLLATE NOCASE
		  AND upper(trim(src_lang)) = upper(trim(?))
		  AND upper(trim(dst_lang)) = upper(trim(?))
		LIMIT 1`,
		term, srcLang, dstLang))
}

// GetBaseEntryAnySrc fetches the best base-cache row for (term, dst)
// regardless of source language. When srcHint is non-empty a row matching it
// is preferred; ties fall to the most recently used row.
func (r *Repo) GetBaseEntryAnySrc(ctx context.Context, term, dstLang, srcHint string) (*Entry, error) {
	return scanEntry(r.q.QueryRowContext(ctx, `
		SELECT `+baseEntryColumns+`
		FROM entries
		WHERE trim(term) = trim(?) COLLATE NOCASE
		  AND upper(trim(dst_lang)) = upper(trim(?))
		ORDER BY
		    CASE WHEN ? <> '' AND upper(trim(src_lang)) = upper(trim(?)) THEN 0 ELSE 1 END,
		    COALESCE(last_used, created_at) DESC,
		    created_at DESC
		LIMIT 1`,
		term, dstLang, srcHint, srcHint))
}

// EntryByID fetches a base entry by primary key.
func (r *Repo) EntryByID(ctx context.Context, id int64) (*Entry, error) {
	return scanEntry(r.q.QueryRowContext(ctx, `
		SELECT `+baseEntryColumns+` FROM entries WHERE id = ?`, id))
}

// TouchBaseUsage stamps last_used and increments count on the entry, and
// bumps the hit counter of the variant holding the entry's translation.
// Call inside [Store.Update].
func (r *Repo) TouchBaseUsage(ctx context.Context, entryID int64, now string) error {
	e, err := r.EntryByID(ctx, entryID)
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, `
		UPDATE entries SET last_used = ?, count = count + 1 WHERE id = ?`,
		now, entryID); err != nil {
		return wrapDBError("touch base usage", err)
	}
	if _, err := r.q.ExecContext(ctx, `
		UPDATE translation_variants
		SET last_used = ?, count = count + 1
		WHERE term = ? AND src_lang = ? AND dst_lang = ? AND translation = ?`,
		now, e.Term, e.SrcLang, e.DstLang, NormalizeVariant(e.Translation)); err != nil {
		return wrapDBError("touch variant usage", err)
	}
	return nil
}

// UpsertBaseParams carries one base-cache write.
type UpsertBaseParams struct {
	Term        string
	Translation string
	SrcLang     string
	DstLang     string
	DetectedRaw string
	Now         string
}

// UpsertBaseEntry inserts or refreshes the base-cache row. On conflict the
// translation and detected_raw are replaced, last_used is stamped, and count
// is incremented. The translation is also recorded as a variant. Call inside
// [Store.Update].
func (r *Repo) UpsertBaseEntry(ctx context.Context, p UpsertBaseParams) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO entries (
		    term, translation, src_lang, dst_lang, detected_raw,
		    created_at, last_used, count, hard, ignore
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, 0, 0)
		ON CONFLICT(term, src_lang, dst_lang) DO UPDATE SET
		    translation  = excluded.translation,
		    detected_raw = excluded.detected_raw,
		    last_used    = excluded.last_used,
		    count        = entries.count + 1`,
		p.Term, p.Translation, p.SrcLang, p.DstLang, nullIfEmpty(p.DetectedRaw), p.Now, p.Now)
	if err != nil {
		return wrapDBError("upsert base entry", err)
	}
	return r.UpsertVariant(ctx, p.Term, p.Translation, p.SrcLang, p.DstLang, p.Now)
}

// UpsertVariant records translation as an accumulated meaning of term. The
// text is normalized first; a variant equal to the term itself (case-folded)
// is rejected silently.
func (r *Repo) UpsertVariant(ctx context.Context, term, translation, srcLang, dstLang, now string) error {
	norm := NormalizeVariant(translation)
	if norm == "" || strings.EqualFold(norm, strings.TrimSpace(term)) {
		return nil
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO translation_variants (
		    term, translation, src_lang, dst_lang, created_at, last_used, count
		)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(term, src_lang, dst_lang, translation) DO UPDATE SET
		    last_used = excluded.last_used,
		    count     = translation_variants.count + 1`,
		term, norm, srcLang, dstLang, now, now)
	return wrapDBError("upsert variant", err)
}

// ListVariants returns accumulated meanings of term, most recently used
// first.
func (r *Repo) ListVariants(ctx context.Context, term, srcLang, dstLang string, limit int) ([]Variant, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, term, translation, src_lang, dst_lang,
		       created_at, COALESCE(last_used, ''), count
		FROM translation_variants
		WHERE term = ? AND src_lang = ? AND dst_lang = ?
		ORDER BY COALESCE(last_used, created_at) DESC
		LIMIT ?`,
		term, srcLang, dstLang, limit)
	if err != nil {
		return nil, wrapDBError("list variants", err)
	}
	defer rows.Close()

	var out []Variant
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.Term, &v.Translation, &v.SrcLang, &v.DstLang,
			&v.CreatedAt, &v.LastUsed, &v.Count); err != nil {
			return nil, wrapDBError("scan variant", err)
		}
		out = append(out, v)
	}
	return out, wrapDBError("list variants", rows.Err())
}

const ctxEntryColumns = `id, term, translation, src_lang, dst_lang, ctx_hash,
	ctx_text, created_at, COALESCE(last_used, ''), count`

func scanCtxEntry(row *sql.Row) (*CtxEntry, error) {
	var e CtxEntry
	err := row.Scan(&e.ID, &e.Term, &e.Translation, &e.SrcLang, &e.DstLang,
		&e.CtxHash, &e.CtxText, &e.CreatedAt, &e.LastUsed, &e.Count)
	if err != nil {
		return nil, wrapDBError("scan ctx entry", err)
	}
	return &e, nil
}

// GetCtxEntry fetches the context-cache row for an exact quadruple.
func (r *Repo) GetCtxEntry(ctx context.Context, term, srcLang, dstLang, ctxHash string) (*CtxEntry, error) {
	return scanCtxEntry(r.q.QueryRowContext(ctx, `
		SELECT `+ctxEntryColumns+`
		FROM entries_ctx
		WHERE term = ? AND src_lang = ? AND dst_lang = ? AND ctx_hash = ?
		LIMIT 1`,
		term, srcLang, dstLang, ctxHash))
}

// GetCtxEntryAnySrc is the fallback lookup ignoring source language, used
// when the hinted language has no row for this context.
func (r *Repo) GetCtxEntryAnySrc(ctx context.Context, term, dstLang, ctxHash string) (*CtxEntry, error) {
	return scanCtxEntry(r.q.QueryRowContext(ctx, `
		SELECT `+ctxEntryColumns+`
		FROM entries_ctx
		WHERE term = ? AND dst_lang = ? AND ctx_hash = ?
		ORDER BY COALESCE(last_used, created_at) DESC
		LIMIT 1`,
		term, dstLang, ctxHash))
}

// TouchCtxUsage stamps last_used and increments count on a context row.
func (r *Repo) TouchCtxUsage(ctx context.Context, term, srcLang, dstLang, ctxHash, now string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE entries_ctx
		SET last_used = ?, count = count + 1
		WHERE term = ? AND src_lang = ? AND dst_lang = ? AND ctx_hash = ?`,
		now, term, srcLang, dstLang, ctxHash)
	return wrapDBError("touch ctx usage", err)
}

// UpsertCtxParams carries one context-cache write.
type UpsertCtxParams struct {
	Term        string
	Translation string
	SrcLang     string
	DstLang     string
	CtxHash     string
	CtxText     string
	Now         string
}

// UpsertCtxEntry inserts or refreshes a context row, records the translation
// as a variant, and evicts oldest-by-usage rows so that at most three
// contexts per (term, src, dst) remain. The row carrying the current
// ctx_hash is never a victim. Call inside [Store.Update].
func (r *Repo) UpsertCtxEntry(ctx context.Context, p UpsertCtxParams) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO entries_ctx (
		    term, translation, src_lang, dst_lang, ctx_hash, ctx_text,
		    created_at, last_used, count
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(term, src_lang, dst_lang, ctx_hash) DO UPDATE SET
		    translation = excluded.translation,
		    ctx_text    = excluded.ctx_text,
		    last_used   = excluded.last_used,
		    count       = entries_ctx.count + 1`,
		p.Term, p.Translation, p.SrcLang, p.DstLang, p.CtxHash, p.CtxText, p.Now, p.Now)
	if err != nil {
		return wrapDBError("upsert ctx entry", err)
	}

	if err := r.UpsertVariant(ctx, p.Term, p.Translation, p.SrcLang, p.DstLang, p.Now); err != nil {
		return err
	}

	// Keep the current row plus the two most recently used others.
	_, err = r.q.ExecContext(ctx, `
		DELETE FROM entries_ctx
		WHERE term = ? AND src_lang = ? AND dst_lang = ?
		  AND ctx_hash <> ?
		  AND id NOT IN (
		      SELECT id FROM entries_ctx
		      WHERE term = ? AND src_lang = ? AND dst_lang = ? AND ctx_hash <> ?
		      ORDER BY COALESCE(last_used, created_at) DESC
		      LIMIT 2
		  )`,
		p.Term, p.SrcLang, p.DstLang, p.CtxHash,
		p.Term, p.SrcLang, p.DstLang, p.CtxHash)
	return wrapDBError("evict ctx entries", err)
}

// ListCtxTranslations returns distinct context translations of term, most
// recently used first.
func (r *Repo) ListCtxTranslations(ctx context.Context, term, srcLang, dstLang string, limit int) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT translation
		FROM entries_ctx
		WHERE term = ? AND src_lang = ? AND dst_lang = ?
		GROUP BY translation
		ORDER BY MAX(COALESCE(last_used, created_at)) DESC
		LIMIT ?`,
		term, srcLang, dstLang, limit)
	if err != nil {
		return nil, wrapDBError("list ctx translations", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, wrapDBError("scan ctx translation", err)
		}
		out = append(out, t)
	}
	return out, wrapDBError("list ctx translations", rows.Err())
}

// SetIgnoreByTerm flags all (term, src) entries as excluded from training.
// Returns the number of affected rows.
func (r *Repo) SetIgnoreByTerm(ctx context.Context, term, srcLang string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE entries SET ignore = 1 WHERE term = ? AND src_lang = ?`,
		term, srcLang)
	if err != nil {
		return 0, wrapDBError("set ignore", err)
	}
	n, err := res.RowsAffected()
	return n, wrapDBError("set ignore", err)
}

// SetIgnoreByID flags a single entry as excluded from training.
func (r *Repo) SetIgnoreByID(ctx context.Context, entryID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE entries SET ignore = 1 WHERE id = ?`, entryID)
	if err != nil {
		return 0, wrapDBError("set ignore by id", err)
	}
	n, err := res.RowsAffected()
	return n, wrapDBError("set ignore by id", err)
}

// IncHard increments the manual difficulty counter for (term, src) and
// returns the new value. ErrNotFound when no such entry exists.
func (r *Repo) IncHard(ctx context.Context, term, srcLang string) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE entries SET hard = hard + 1 WHERE term = ? AND src_lang = ?`,
		term, srcLang)
	if err != nil {
		return 0, wrapDBError("inc hard", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, wrapDBError("inc hard", err)
	} else if n == 0 {
		return 0, ErrNotFound
	}

	var hard int
	err = r.q.QueryRowContext(ctx, `
		SELECT hard FROM entries WHERE term = ? AND src_lang = ?
		ORDER BY hard DESC LIMIT 1`,
		term, srcLang).Scan(&hard)
	return hard, wrapDBError("inc hard", err)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
