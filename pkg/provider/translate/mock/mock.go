// Package mock provides a fixed-response translate.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/Romariozh/vim-deepl/pkg/provider/translate"
)

// Provider is a test double implementing translate.Provider. Configure the
// Result/Err fields before use; every call is recorded in Calls.
type Provider struct {
	mu     sync.Mutex
	Result translate.Result
	Err    error

	// ResultFor maps request text to a per-text result, taking precedence
	// over Result when the text is present.
	ResultFor map[string]translate.Result

	Calls []translate.Request
}

// Translate returns the configured result and records the request.
func (p *Provider) Translate(_ context.Context, req translate.Request) (translate.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return translate.Result{}, p.Err
	}
	if r, ok := p.ResultFor[req.Text]; ok {
		return r, nil
	}
	return p.Result, nil
}

// CallCount returns the number of Translate calls recorded so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
