package resilience

import (
	"context"

	"github.com/Romariozh/vim-deepl/pkg/provider/dictionary"
	"github.com/Romariozh/vim-deepl/pkg/provider/translate"
)

// guardedTranslate is a translate.Provider behind a circuit breaker.
type guardedTranslate struct {
	inner   translate.Provider
	breaker *CircuitBreaker
}

// GuardTranslate wraps p with a circuit breaker. While the breaker is open,
// Translate fails immediately with [ErrCircuitOpen]; callers surface that
// in-band like any other provider error.
func GuardTranslate(p translate.Provider, cfg CircuitBreakerConfig) translate.Provider {
	if cfg.Name == "" {
		cfg.Name = "translate"
	}
	return &guardedTranslate{inner: p, breaker: NewCircuitBreaker(cfg)}
}

func (g *guardedTranslate) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	var res translate.Result
	err := g.breaker.Execute(func() error {
		var err error
		res, err = g.inner.Translate(ctx, req)
		return err
	})
	return res, err
}

// guardedDictionary is a dictionary.Provider behind a circuit breaker.
type guardedDictionary struct {
	inner   dictionary.Provider
	breaker *CircuitBreaker
}

// GuardDictionary wraps p with a circuit breaker.
func GuardDictionary(p dictionary.Provider, cfg CircuitBreakerConfig) dictionary.Provider {
	if cfg.Name == "" {
		cfg.Name = "dictionary"
	}
	return &guardedDictionary{inner: p, breaker: NewCircuitBreaker(cfg)}
}

func (g *guardedDictionary) Lookup(ctx context.Context, term string) ([]byte, error) {
	var payload []byte
	err := g.breaker.Execute(func() error {
		var err error
		payload, err = g.inner.Lookup(ctx, term)
		return err
	})
	return payload, err
}
