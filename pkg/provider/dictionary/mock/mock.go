// Package mock provides a fixed-response dictionary.Provider for tests.
package mock

import (
	"context"
	"sync"
)

// Provider is a test double implementing dictionary.Provider. Configure
// Payload/Err before use; every looked-up term is recorded in Calls.
type Provider struct {
	mu      sync.Mutex
	Payload []byte
	Err     error

	// PayloadFor maps a term to a per-term payload, taking precedence over
	// Payload when the term is present.
	PayloadFor map[string][]byte

	Calls []string
}

// Lookup returns the configured payload and records the term.
func (p *Provider) Lookup(_ context.Context, term string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, term)
	if p.Err != nil {
		return nil, p.Err
	}
	if b, ok := p.PayloadFor[term]; ok {
		return b, nil
	}
	return p.Payload, nil
}

// CallCount returns the number of Lookup calls recorded so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
