package storage

import (
	"context"
)

// Mark is one persisted reading highlight.
type Mark struct {
	ID          int64
	Path        string
	Fingerprint string
	Lnum        int
	Col         int
	Length      int
	Term        string
	Kind        string
}

// UpsertMark inserts or refreshes a bookmark keyed by (path, lnum, col,
// kind) and returns its row id. The path must already be canonical.
func (r *Repo) UpsertMark(ctx context.Context, m Mark, now string) (int64, error) {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO book_marks (path, fingerprint, lnum, col, length, term, kind, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, lnum, col, kind) DO UPDATE SET
		    fingerprint = excluded.fingerprint,
		    length      = excluded.length,
		    term        = excluded.term,
		    updated_at  = excluded.updated_at`,
		m.Path, m.Fingerprint, m.Lnum, m.Col, m.Length, m.Term, m.Kind, now)
	if err != nil {
		return 0, wrapDBError("upsert mark", err)
	}

	var id int64
	err = r.q.QueryRowContext(ctx, `
		SELECT id FROM book_marks
		WHERE path = ? AND lnum = ? AND col = ? AND kind = ?`,
		m.Path, m.Lnum, m.Col, m.Kind).Scan(&id)
	return id, wrapDBError("upsert mark", err)
}

// ListMarksByPath returns all marks for a canonical path, in document order.
func (r *Repo) ListMarksByPath(ctx context.Context, path string) ([]Mark, error) {
	return r.listMarks(ctx, `
		SELECT id, path, fingerprint, lnum, col, length, term, kind
		FROM book_marks
		WHERE path = ?
		ORDER BY lnum, col`, path)
}

// ListMarksByFingerprint returns all marks whose file content hash matches,
// regardless of the stored path. Used to self-heal after renames.
func (r *Repo) ListMarksByFingerprint(ctx context.Context, fingerprint string) ([]Mark, error) {
	return r.listMarks(ctx, `
		SELECT id, path, fingerprint, lnum, col, length, term, kind
		FROM book_marks
		WHERE fingerprint = ?
		ORDER BY path, lnum, col`, fingerprint)
}

// RelinkFingerprint rewrites the stored path for every mark carrying the
// fingerprint, so future lookups hit the path fast path again.
func (r *Repo) RelinkFingerprint(ctx context.Context, fingerprint, newPath, now string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE book_marks SET path = ?, updated_at = ? WHERE fingerprint = ?`,
		newPath, now, fingerprint)
	return wrapDBError("relink fingerprint", err)
}

func (r *Repo) listMarks(ctx context.Context, query string, arg any) ([]Mark, error) {
	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, wrapDBError("list marks", err)
	}
	defer rows.Close()

	var out []Mark
	for rows.Next() {
		var m Mark
		if err := rows.Scan(&m.ID, &m.Path, &m.Fingerprint, &m.Lnum, &m.Col,
			&m.Length, &m.Term, &m.Kind); err != nil {
			return nil, wrapDBError("scan mark", err)
		}
		out = append(out, m)
	}
	return out, wrapDBError("list marks", rows.Err())
}
