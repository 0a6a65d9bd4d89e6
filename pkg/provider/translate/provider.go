// Package translate defines the Provider interface for translation backends.
//
// A translation provider wraps a machine-translation service (e.g., DeepL)
// and presents a uniform request/response interface. The service layer treats
// providers as opaque: it supplies text, a target language, and an optional
// sentence context, and receives back the translation and the detected source
// language.
//
// Implementations must be safe for concurrent use.
package translate

import "context"

// Request is a single translation request.
type Request struct {
	// Text is the word or fragment to translate.
	Text string

	// TargetLang is the upper-case target language code (e.g. "RU").
	TargetLang string

	// Context is an optional sentence the text was selected from. Providers
	// that support contextual translation use it as a disambiguation hint;
	// it is never translated itself.
	Context string
}

// Result is a successful translation.
type Result struct {
	// Text is the translated text.
	Text string

	// DetectedSourceLang is the provider's detected source language code,
	// verbatim (e.g. "EN", "EN-US", "DA").
	DetectedSourceLang string
}

// Provider is the abstraction over any translation backend.
type Provider interface {
	// Translate performs one translation call. A non-nil error means the
	// provider could not produce a translation (network failure, empty
	// response, missing credentials); the caller decides whether to surface
	// it in-band or fail the request.
	Translate(ctx context.Context, req Request) (Result, error)
}
