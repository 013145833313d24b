package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Chain tries synthesizers in order; the first success wins. A provider that
// returns a FatalError is skipped for the rest of the session.
type Chain struct {
	providers []Synthesizer

	mu       sync.Mutex
	disabled map[int]bool
}

// NewChain requires at least one provider.
func NewChain(providers ...Synthesizer) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return &Chain{providers: providers, disabled: make(map[int]bool)}, nil
}

// Synthesize tries each enabled provider until one succeeds.
func (c *Chain) Synthesize(ctx context.Context, req Request) (Audio, error) {
	var errs []error

	for i, p := range c.providers {
		if c.isDisabled(i) {
			continue
		}
		audio, err := p.Synthesize(ctx, req)
		if err == nil {
			if i > 0 {
				slog.Info("TTS: fallback provider succeeded", "provider", providerName(p), "chars", len(req.Text))
			}
			return audio, nil
		}

		errs = append(errs, err)
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		if IsFatalError(err) && i < len(c.providers)-1 {
			slog.Warn("TTS: provider disabled after fatal error", "provider", providerName(p), "error", err)
			c.disable(i)
			continue
		}
		slog.Warn("TTS: provider failed, trying next", "provider", providerName(p), "error", err)
	}

	if len(errs) == 0 {
		return Audio{}, ErrNoProviders
	}
	return Audio{}, &ChainError{Errors: errs}
}

// Reset re-enables every provider.
func (c *Chain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = make(map[int]bool)
}

func (c *Chain) isDisabled(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled[i]
}

func (c *Chain) disable(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled[i] = true
}

func providerName(p Synthesizer) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}

// ChainError aggregates errors from all providers in a chain.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("tts chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("tts chain: all %d providers failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap exposes every provider error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
