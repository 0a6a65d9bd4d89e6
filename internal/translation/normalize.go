package translation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeContext collapses all whitespace runs in s into single spaces and
// trims the ends. Context hashing and storage both operate on this form so a
// re-wrapped sentence still hits the same cache row.
func NormalizeContext(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CtxHash returns the context cache key: the hex SHA-256 digest of the
// whitespace-normalized sentence.
func CtxHash(ctx string) string {
	sum := sha256.Sum256([]byte(NormalizeContext(ctx)))
	return hex.EncodeToString(sum[:])
}

// NormalizeSrcLang collapses a detected language code onto the two supported
// source languages. Regional variants reduce to their base code ("EN-US" to
// "EN"); anything unrecognized falls back to the caller's hint when it is a
// supported code, then to English.
func NormalizeSrcLang(detected, hint string) string {
	d := strings.ToUpper(strings.TrimSpace(detected))
	switch {
	case strings.HasPrefix(d, "EN"):
		return "EN"
	case strings.HasPrefix(d, "DA"):
		return "DA"
	}
	h := strings.ToUpper(strings.TrimSpace(hint))
	if h == "EN" || h == "DA" {
		return h
	}
	return "EN"
}

// sentenceLike reports whether s reads as sentence text rather than a bare
// language code: inner whitespace or sentence punctuation qualifies.
func sentenceLike(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return false
	}
	return strings.ContainsAny(t, " \t.,!?…")
}
