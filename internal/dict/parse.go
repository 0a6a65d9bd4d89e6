package dict

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// maxDefsPerBucket caps how many short definitions one part-of-speech bucket
// keeps.
const maxDefsPerBucket = 7

// mwPronunciation is one element of a Merriam-Webster prs array.
type mwPronunciation struct {
	Sound struct {
		Audio string `json:"audio"`
	} `json:"sound"`
}

// mwEntry is the subset of one Merriam-Webster dictionary entry the service
// consumes.
type mwEntry struct {
	Meta struct {
		ID    string   `json:"id"`
		Stems []string `json:"stems"`
	} `json:"meta"`
	Hwi struct {
		Hw  string            `json:"hw"`
		Prs []mwPronunciation `json:"prs"`
	} `json:"hwi"`
	Fl       string   `json:"fl"`
	Shortdef []string `json:"shortdef"`
	Uros     []struct {
		Prs []mwPronunciation `json:"prs"`
	} `json:"uros"`
}

// payload is a decoded dictionary response: either entries for a known term
// or spelling suggestions for an unknown one.
type payload struct {
	Entries     []mwEntry
	Suggestions []string
}

// parsePayload decodes the raw provider document. The API returns a JSON
// array of entry objects, or an array of plain strings when the term is
// unknown.
func parsePayload(raw []byte) (*payload, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("dict: payload is not a JSON array: %w", err)
	}

	p := &payload{}
	for _, el := range elems {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			p.Suggestions = append(p.Suggestions, s)
			continue
		}
		var e mwEntry
		if err := json.Unmarshal(el, &e); err != nil {
			return nil, fmt.Errorf("dict: malformed entry: %w", err)
		}
		p.Entries = append(p.Entries, e)
	}
	return p, nil
}

// normToken canonicalizes a headword or meta id for comparison: lower-cased,
// keeping only letters and digits. Syllable markers ("ap*ple") and
// punctuation disappear.
func normToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// idBase strips the homograph suffix from a meta id ("apple:1" to "apple").
func idBase(id string) string {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i]
	}
	return id
}

// pickMainEntry selects the entry the term most plausibly refers to:
// matching meta id first, then matching headword, then an entry whose stems
// carry the term. With no match the first entry wins.
func pickMainEntry(entries []mwEntry, term string) *mwEntry {
	want := normToken(term)

	for i := range entries {
		if normToken(idBase(entries[i].Meta.ID)) == want {
			return &entries[i]
		}
	}
	for i := range entries {
		if normToken(entries[i].Hwi.Hw) == want {
			return &entries[i]
		}
	}
	for i := range entries {
		for _, stem := range entries[i].Meta.Stems {
			if normToken(stem) == want {
				return &entries[i]
			}
		}
	}
	if len(entries) > 0 {
		return &entries[0]
	}
	return nil
}

// bucketFor maps a functional label to its definition bucket name.
func bucketFor(fl string) string {
	switch strings.ToLower(strings.TrimSpace(fl)) {
	case "noun":
		return "noun"
	case "verb":
		return "verb"
	case "adjective":
		return "adjective"
	case "adverb":
		return "adverb"
	default:
		return "other"
	}
}

// dedupCap returns list with duplicates removed, order preserved, capped at
// maxDefsPerBucket.
func dedupCap(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	var out []string
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == maxDefsPerBucket {
			break
		}
	}
	return out
}

// extractAudioIDs collects pronunciation identifiers from the entry: the
// headword pronunciations first, then derived-form pronunciations.
// Duplicates are removed preserving order; the first id is the main one.
func extractAudioIDs(e *mwEntry) []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(prs []mwPronunciation) {
		for _, pr := range prs {
			id := strings.TrimSpace(pr.Sound.Audio)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	add(e.Hwi.Prs)
	for _, u := range e.Uros {
		add(u.Prs)
	}
	return ids
}

// rankSuggestions orders spelling suggestions by Jaro-Winkler similarity to
// the misspelled term, best match first. The sort is stable so the provider's
// own ordering breaks ties.
func rankSuggestions(term string, suggestions []string) []string {
	out := make([]string, len(suggestions))
	copy(out, suggestions)
	lower := strings.ToLower(term)
	sort.SliceStable(out, func(i, j int) bool {
		return matchr.JaroWinkler(lower, strings.ToLower(out[i]), true) >
			matchr.JaroWinkler(lower, strings.ToLower(out[j]), true)
	})
	return out
}
