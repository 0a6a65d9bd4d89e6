// Package types defines the shared wire types used across all vim-deepl
// packages.
//
// These types form the lingua franca between the cache services, the trainer,
// and the HTTP façade. Each package defines its own domain types; the
// cross-cutting result shapes live here to avoid circular imports and to pin
// the JSON field set the editor side depends on.
package types

// CacheSource names the cache tier that satisfied a word lookup.
type CacheSource string

const (
	// CacheBase — the hit came from the base cache (no sentence context).
	CacheBase CacheSource = "base"

	// CacheContext — the hit came from the sentence-context cache.
	CacheContext CacheSource = "context"
)

// WordResult is the response shape for single-word translation lookups.
// The field set is stable: on provider failure Text is empty, Error is set,
// and all cache fields are zeroed.
type WordResult struct {
	Type               string         `json:"type"` // always "word"
	Source             string         `json:"source"`
	Text               string         `json:"text"`
	TargetLang         string         `json:"target_lang"`
	DetectedSourceLang string         `json:"detected_source_lang"`
	FromCache          bool           `json:"from_cache"`
	Timestamp          string         `json:"timestamp"`
	LastUsed           string         `json:"last_used"`
	Count              int64          `json:"count"`
	Error              string         `json:"error,omitempty"`
	MWDefinitions      *DefinitionSet `json:"mw_definitions"`
	ContextUsed        bool           `json:"context_used"`
	CacheSource        CacheSource    `json:"cache_source,omitempty"`
	ContextRaw         string         `json:"context_raw,omitempty"`
	CtxTranslations    []string       `json:"ctx_translations,omitempty"`
}

// SelectionResult is the response shape for free-text selection translation.
// Selections are never cached.
type SelectionResult struct {
	Type               string `json:"type"` // always "selection"
	Source             string `json:"source"`
	Text               string `json:"text"`
	TargetLang         string `json:"target_lang"`
	DetectedSourceLang string `json:"detected_source_lang"`
	Error              string `json:"error,omitempty"`
}

// DefinitionSet holds dictionary metadata for a term: short definitions
// bucketed by part of speech plus pronunciation audio identifiers.
type DefinitionSet struct {
	Noun      []string `json:"noun"`
	Verb      []string `json:"verb"`
	Adjective []string `json:"adjective"`
	Adverb    []string `json:"adverb"`
	Other     []string `json:"other"`

	// AudioMain is the identifier the audio URL is derived from. Empty when
	// the provider reported no pronunciation.
	AudioMain string `json:"audio_main,omitempty"`

	// AudioIDs lists all known identifiers, deduplicated preserving order.
	// AudioIDs[0] == AudioMain when non-empty.
	AudioIDs []string `json:"audio_ids,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
}

// Empty reports whether the set carries no definitions in any bucket.
func (d *DefinitionSet) Empty() bool {
	return d == nil ||
		len(d.Noun) == 0 && len(d.Verb) == 0 && len(d.Adjective) == 0 &&
			len(d.Adverb) == 0 && len(d.Other) == 0
}

// TrainerMode names the candidate pool a training item was selected from.
type TrainerMode string

const (
	ModeSRSDue   TrainerMode = "srs_due"
	ModeSRSNew   TrainerMode = "srs_new"
	ModeSRSHard  TrainerMode = "srs_hard"
	ModeFallback TrainerMode = "fallback"
)

// TrainerStats is the progress snapshot attached to every TrainerItem.
type TrainerStats struct {
	Total            int `json:"total"`
	Mastered         int `json:"mastered"`
	MasteryThreshold int `json:"mastery_threshold"`
	MasteryPercent   int `json:"mastery_percent"`
}

// TrainerItem is the response shape for /train/next and /train/review.
// When no candidate exists Error is set and the remaining fields are zeroed.
type TrainerItem struct {
	Type        string      `json:"type"` // always "train"
	Mode        TrainerMode `json:"mode,omitempty"`
	CardID      int64       `json:"card_id,omitempty"`
	EntryID     int64       `json:"entry_id,omitempty"`
	Term        string      `json:"term,omitempty"`
	Translation string      `json:"translation,omitempty"`
	SrcLang     string      `json:"src_lang,omitempty"`
	DstLang     string      `json:"dst_lang,omitempty"`
	DetectedRaw string      `json:"detected_raw,omitempty"`
	ContextRaw  string      `json:"context_raw,omitempty"`

	// SRS state of the card at selection time.
	Reps          int     `json:"reps"`
	Lapses        int     `json:"lapses"`
	EF            float64 `json:"ef,omitempty"`
	IntervalDays  int     `json:"interval_days"`
	DueAt         int64   `json:"due_at,omitempty"`
	CorrectStreak int     `json:"correct_streak"`
	WrongStreak   int     `json:"wrong_streak"`

	Count int64 `json:"count,omitempty"`
	Hard  int64 `json:"hard,omitempty"`

	Stats *TrainerStats `json:"stats,omitempty"`

	// Daily progress: ISO day, reviews done today, consecutive active days.
	Day        string `json:"day,omitempty"`
	TodayDone  int    `json:"today_done"`
	StreakDays int    `json:"streak_days"`

	MWDefinitions *DefinitionSet `json:"mw_definitions,omitempty"`
	Variants      []string       `json:"variants,omitempty"`
	CtxList       []string       `json:"ctx_list,omitempty"`

	Error string `json:"error,omitempty"`
}

// Mark is a reading highlight anchored to a position in a book file.
type Mark struct {
	ID     int64  `json:"id"`
	Lnum   int    `json:"lnum"`
	Col    int    `json:"col"`
	Length int    `json:"length"`
	Term   string `json:"term"`
	Kind   string `json:"kind"` // "f2" | "mw"
}
