package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// ─────────────────────────────────────────────────────────────────────────────
// v1 DDL — translation caches, dictionary metadata, bookmarks
// ─────────────────────────────────────────────────────────────────────────────

const ddlCaches = `
CREATE TABLE IF NOT EXISTS entries (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    term         TEXT    NOT NULL,
    translation  TEXT    NOT NULL,
    src_lang     TEXT    NOT NULL,
    dst_lang     TEXT    NOT NULL,
    detected_raw TEXT,
    created_at   TEXT    NOT NULL,
    last_used    TEXT,
    count        INTEGER NOT NULL DEFAULT 0,
    hard         INTEGER NOT NULL DEFAULT 0,
    ignore       INTEGER NOT NULL DEFAULT 0,
    UNIQUE(term, src_lang, dst_lang)
);

CREATE INDEX IF NOT EXISTS idx_entries_src_ignore
    ON entries(src_lang, ignore);

CREATE TABLE IF NOT EXISTS entries_ctx (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    term         TEXT    NOT NULL,
    translation  TEXT    NOT NULL,
    src_lang     TEXT    NOT NULL,
    dst_lang     TEXT    NOT NULL,
    ctx_hash     TEXT    NOT NULL,
    ctx_text     TEXT    NOT NULL DEFAULT '',
    created_at   TEXT    NOT NULL,
    last_used    TEXT,
    count        INTEGER NOT NULL DEFAULT 0,
    UNIQUE(term, src_lang, dst_lang, ctx_hash)
);

CREATE INDEX IF NOT EXISTS idx_entries_ctx_lookup
    ON entries_ctx(term, src_lang, dst_lang, ctx_hash);

CREATE TABLE IF NOT EXISTS translation_variants (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    term         TEXT    NOT NULL,
    translation  TEXT    NOT NULL,
    src_lang     TEXT    NOT NULL,
    dst_lang     TEXT    NOT NULL,
    created_at   TEXT    NOT NULL,
    last_used    TEXT,
    count        INTEGER NOT NULL DEFAULT 0,
    UNIQUE(term, src_lang, dst_lang, translation)
);

CREATE INDEX IF NOT EXISTS idx_variants_lookup
    ON translation_variants(term, src_lang, dst_lang);

CREATE TABLE IF NOT EXISTS mw_definitions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    term       TEXT NOT NULL,
    src_lang   TEXT NOT NULL,
    defs_noun  TEXT,
    defs_verb  TEXT,
    defs_adj   TEXT,
    defs_adv   TEXT,
    defs_other TEXT,
    raw_json   TEXT,
    created_at TEXT NOT NULL,
    UNIQUE(term, src_lang)
);

CREATE INDEX IF NOT EXISTS idx_mw_def_term_src
    ON mw_definitions(term, src_lang);

CREATE TABLE IF NOT EXISTS book_marks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    path        TEXT    NOT NULL,
    fingerprint TEXT    NOT NULL,
    lnum        INTEGER NOT NULL,
    col         INTEGER NOT NULL,
    length      INTEGER NOT NULL,
    term        TEXT    NOT NULL,
    kind        TEXT    NOT NULL,
    updated_at  TEXT    NOT NULL,
    UNIQUE(path, lnum, col, kind)
);

CREATE INDEX IF NOT EXISTS idx_book_marks_fingerprint
    ON book_marks(fingerprint);
`

// ─────────────────────────────────────────────────────────────────────────────
// v2 DDL — spaced-repetition trainer
// ─────────────────────────────────────────────────────────────────────────────

const ddlTrainer = `
CREATE TABLE IF NOT EXISTS training_cards (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id       INTEGER UNIQUE REFERENCES entries(id),
    src_lang       TEXT,
    reps           INTEGER NOT NULL DEFAULT 0,
    lapses         INTEGER NOT NULL DEFAULT 0,
    ef             REAL    NOT NULL DEFAULT 2.5,
    interval_days  INTEGER NOT NULL DEFAULT 0,
    due_at         INTEGER,
    last_review_at INTEGER,
    last_grade     INTEGER,
    correct_streak INTEGER NOT NULL DEFAULT 0,
    wrong_streak   INTEGER NOT NULL DEFAULT 0,
    suspended      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_training_cards_due
    ON training_cards(due_at);
CREATE INDEX IF NOT EXISTS idx_training_cards_hard
    ON training_cards(lapses, wrong_streak);
CREATE INDEX IF NOT EXISTS idx_training_cards_last_review
    ON training_cards(last_review_at);

CREATE TABLE IF NOT EXISTS training_reviews (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id INTEGER,
    ts      INTEGER,
    grade   INTEGER,
    day     TEXT
);

CREATE INDEX IF NOT EXISTS idx_training_reviews_card_ts
    ON training_reviews(card_id, ts);
CREATE INDEX IF NOT EXISTS idx_training_reviews_day
    ON training_reviews(day);
`

// ─────────────────────────────────────────────────────────────────────────────
// v3 DDL — pronunciation audio identifiers on the definition cache
// ─────────────────────────────────────────────────────────────────────────────

// migration migrates a database one schema version forward.
type migration func(ctx context.Context, r *Repo) error

// migrations is the ordered schema history. Entry i migrates a database at
// user_version i to i+1. Never reorder or edit released entries; append.
var migrations = []migration{
	execDDL(ddlCaches),
	execDDL(ddlTrainer),
	addAudioColumns,
}

func execDDL(ddl string) migration {
	return func(ctx context.Context, r *Repo) error {
		_, err := r.q.ExecContext(ctx, ddl)
		return err
	}
}

// addAudioColumns adds the pronunciation columns to mw_definitions. Databases
// produced by older deployments may already carry them, so each column is
// checked before the ALTER.
func addAudioColumns(ctx context.Context, r *Repo) error {
	existing := map[string]bool{}
	rows, err := r.q.QueryContext(ctx, "PRAGMA table_info(mw_definitions)")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for col, ddl := range map[string]string{
		"audio_main": "ALTER TABLE mw_definitions ADD COLUMN audio_main TEXT",
		"audio_ids":  "ALTER TABLE mw_definitions ADD COLUMN audio_ids TEXT",
	} {
		if existing[col] {
			continue
		}
		if _, err := r.q.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// migrate brings the database to the newest schema version. Each pending
// migration runs in its own immediate transaction and bumps user_version on
// the way out, so a crash mid-way resumes cleanly.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return wrapDBError("read user_version", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this binary supports (%d)", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		step := migrations[v]
		err := s.Update(ctx, func(r *Repo) error {
			if err := step(ctx, r); err != nil {
				return wrapDBError(fmt.Sprintf("apply migration %d", v+1), err)
			}
			// PRAGMA does not accept bind parameters.
			if _, err := r.q.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
				return wrapDBError(fmt.Sprintf("set user_version %d", v+1), err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		slog.Info("storage: schema migrated", "from", v, "to", v+1)
	}
	return nil
}
