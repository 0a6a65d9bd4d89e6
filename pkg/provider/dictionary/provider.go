// Package dictionary defines the Provider interface for dictionary backends.
//
// A dictionary provider wraps a reference API (e.g., Merriam-Webster) that,
// given an English term, returns either a list of dictionary entries or — for
// unknown spellings — a list of suggested words. The payload structure is
// provider-specific; the service layer parses it with the matching parser and
// stores the raw document for backfill.
//
// Implementations must be safe for concurrent use.
package dictionary

import "context"

// Provider is the abstraction over any dictionary backend.
type Provider interface {
	// Lookup fetches the raw JSON document for term. The document is always
	// a JSON array: entry objects for a known term, or plain strings
	// (spelling suggestions) for an unknown one. A non-nil error means the
	// backend could not be reached or returned a malformed payload.
	Lookup(ctx context.Context, term string) ([]byte, error)
}
