// Package mw provides a Merriam-Webster-backed dictionary provider using the
// School Dictionary (sd3) reference API. It implements the
// dictionary.Provider interface.
package mw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultEndpoint = "https://www.dictionaryapi.com/api/v3/references/sd3/json/"

// Option is a functional option for configuring the MW Provider.
type Option func(*Provider)

// WithEndpoint overrides the reference endpoint (e.g. another MW dictionary).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithTimeout sets the HTTP timeout for lookup calls.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements dictionary.Provider backed by the MW sd3 API.
type Provider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// New creates a new MW Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("mw: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 25 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Lookup fetches the raw entry array for term. The response must be a JSON
// array; anything else is reported as an error.
func (p *Provider) Lookup(ctx context.Context, term string) ([]byte, error) {
	u := p.endpoint + url.PathEscape(term) + "?key=" + url.QueryEscape(p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("mw: build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mw: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("mw: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mw: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// MW returns 200 with a JSON array for both entries and suggestions.
	var probe []json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("mw: response is not a list: %w", err)
	}
	return body, nil
}
