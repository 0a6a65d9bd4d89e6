package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DefinitionRow is the cached dictionary metadata for one (term, src_lang).
// Bucket slices and AudioIDs are stored as JSON text columns.
type DefinitionRow struct {
	Term      string
	SrcLang   string
	Noun      []string
	Verb      []string
	Adjective []string
	Adverb    []string
	Other     []string
	RawJSON   string
	AudioMain string
	AudioIDs  []string
	CreatedAt string
}

// GetDefinitions fetches the cached definition set, or ErrNotFound.
func (r *Repo) GetDefinitions(ctx context.Context, term, srcLang string) (*DefinitionRow, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT term, src_lang,
		       defs_noun, defs_verb, defs_adj, defs_adv, defs_other,
		       COALESCE(raw_json, ''), COALESCE(audio_main, ''),
		       audio_ids, created_at
		FROM mw_definitions
		WHERE term = ? AND src_lang = ?
		LIMIT 1`,
		term, srcLang)

	var (
		d                                  DefinitionRow
		noun, verb, adj, adv, other, audio sql.NullString
	)
	err := row.Scan(&d.Term, &d.SrcLang, &noun, &verb, &adj, &adv, &other,
		&d.RawJSON, &d.AudioMain, &audio, &d.CreatedAt)
	if err != nil {
		return nil, wrapDBError("get definitions", err)
	}

	for _, col := range []struct {
		src sql.NullString
		dst *[]string
	}{
		{noun, &d.Noun}, {verb, &d.Verb}, {adj, &d.Adjective},
		{adv, &d.Adverb}, {other, &d.Other}, {audio, &d.AudioIDs},
	} {
		if !col.src.Valid || col.src.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.src.String), col.dst); err != nil {
			return nil, fmt.Errorf("get definitions: decode bucket %q: %w", col.src.String, err)
		}
	}
	return &d, nil
}

// UpsertDefinitions inserts or replaces the definition set. created_at is
// written once and preserved on conflict.
func (r *Repo) UpsertDefinitions(ctx context.Context, d DefinitionRow, now string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO mw_definitions (
		    term, src_lang,
		    defs_noun, defs_verb, defs_adj, defs_adv, defs_other,
		    raw_json, audio_main, audio_ids, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(term, src_lang) DO UPDATE SET
		    defs_noun  = excluded.defs_noun,
		    defs_verb  = excluded.defs_verb,
		    defs_adj   = excluded.defs_adj,
		    defs_adv   = excluded.defs_adv,
		    defs_other = excluded.defs_other,
		    raw_json   = excluded.raw_json,
		    audio_main = excluded.audio_main,
		    audio_ids  = excluded.audio_ids`,
		d.Term, d.SrcLang,
		encodeBucket(d.Noun), encodeBucket(d.Verb), encodeBucket(d.Adjective),
		encodeBucket(d.Adverb), encodeBucket(d.Other),
		nullIfEmpty(d.RawJSON), nullIfEmpty(d.AudioMain), encodeBucket(d.AudioIDs),
		now)
	return wrapDBError("upsert definitions", err)
}

// encodeBucket marshals a string list to its JSON column form; nil and empty
// both store as an empty JSON array so cached "no definitions" responses are
// distinguishable from an absent row.
func encodeBucket(list []string) any {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}
