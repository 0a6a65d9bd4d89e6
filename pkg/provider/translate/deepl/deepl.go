// Package deepl provides a DeepL-backed translation provider using the
// DeepL REST API. It implements the translate.Provider interface.
package deepl

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

	"github.com/Romariozh/vim-deepl/pkg/provider/translate"
)

const defaultEndpoint = "https://api-free.deepl.com/v2/translate"

// Option is a functional option for configuring the DeepL Provider.
type Option func(*Provider)

// WithEndpoint overrides the API endpoint (e.g. the paid-tier host).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithTimeout sets the HTTP timeout for translation calls.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements translate.Provider backed by the DeepL v2 API.
type Provider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// New creates a new DeepL Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepl: apiKey must not be empty")
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

// response mirrors the DeepL v2 translate response body.
type response struct {
	Translations []struct {
		Text               string `json:"text"`
		DetectedSourceLang string `json:"detected_source_language"`
	} `json:"translations"`
}

// Translate performs one DeepL API call. req.Context is forwarded as DeepL's
// "context" form field when non-empty; it biases the translation but is not
// translated itself.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	form := url.Values{}
	form.Set("auth_key", p.apiKey)
	form.Set("text", req.Text)
	form.Set("target_lang", req.TargetLang)
	if req.Context != "" {
		form.Set("context", req.Context)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return translate.Result{}, fmt.Errorf("deepl: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return translate.Result{}, fmt.Errorf("deepl: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return translate.Result{}, fmt.Errorf("deepl: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return translate.Result{}, fmt.Errorf("deepl: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return translate.Result{}, fmt.Errorf("deepl: decode response: %w", err)
	}
	if len(r.Translations) == 0 {
		return translate.Result{}, errors.New("deepl: empty response")
	}

	return translate.Result{
		Text:               r.Translations[0].Text,
		DetectedSourceLang: r.Translations[0].DetectedSourceLang,
	}, nil
}
