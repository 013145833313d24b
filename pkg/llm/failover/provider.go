// Package failover chains answer providers: fatal errors disable a provider
// for the session, retryable ones fall through to the next and make the
// failing provider sit out a growing number of requests.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"odysseywalk/pkg/llm"
	"odysseywalk/pkg/model"
)

// Member is a provider in the chain.
type Member interface {
	llm.Answerer
	Name() string
}

// Provider wraps multiple answer providers and handles fallbacks.
type Provider struct {
	members    []Member
	disabled   map[int]bool
	backoffs   map[string]*backoffState // key: providerName:callName
	retryDelay time.Duration
	mu         sync.RWMutex
}

type backoffState struct {
	subsequentFailures int
	skippedRequests    int
}

// New creates a new Provider. Order is preference order.
func New(members ...Member) (*Provider, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("at least one provider required for failover")
	}
	return &Provider{
		members:    members,
		disabled:   make(map[int]bool),
		backoffs:   make(map[string]*backoffState),
		retryDelay: time.Second,
	}, nil
}

// Names lists providers still active, in order.
func (f *Provider) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for i, m := range f.members {
		if !f.disabled[i] {
			out = append(out, m.Name())
		}
	}
	return out
}

// Answer implements llm.Answerer.
func (f *Provider) Answer(ctx context.Context, req llm.AnswerRequest) (string, error) {
	res, err := f.execute(ctx, "answer", func(m Member) (string, error) {
		return m.Answer(ctx, req)
	}, nil)
	return res, err
}

// Transcribe implements llm.Transcriber over the members that can transcribe.
func (f *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string, lang model.Lang) (string, error) {
	return f.execute(ctx, "transcribe", func(m Member) (string, error) {
		return m.(llm.Transcriber).Transcribe(ctx, audio, mimeType, lang)
	}, func(m Member) bool {
		_, ok := m.(llm.Transcriber)
		return ok
	})
}

type candidate struct {
	index int
	m     Member
	name  string
}

// execute runs fn against the chain.
func (f *Provider) execute(ctx context.Context, callName string, fn func(Member) (string, error), supports func(Member) bool) (string, error) {
	var candidates []candidate
	f.mu.RLock()
	for i, m := range f.members {
		if f.disabled[i] {
			continue
		}
		if supports != nil && !supports(m) {
			continue
		}
		candidates = append(candidates, candidate{i, m, m.Name()})
	}
	f.mu.RUnlock()

	if len(candidates) == 0 {
		return "", fmt.Errorf("no active provider for %s: %w", callName, llm.ErrNotConfigured)
	}

	var lastErr error
	for idx, c := range candidates {
		backoffKey := c.name + ":" + callName
		isLast := idx == len(candidates)-1

		f.mu.Lock()
		bs, exists := f.backoffs[backoffKey]
		if exists && !isLast && bs.skippedRequests < bs.subsequentFailures {
			bs.skippedRequests++
			slog.Debug("LLM Provider in backoff, skipping", "provider", c.name, "call", callName, "skipped", bs.skippedRequests, "target", bs.subsequentFailures)
			f.mu.Unlock()
			continue
		}
		f.mu.Unlock()

		res, err := fn(c.m)
		if err == nil {
			f.resetBackoff(backoffKey)
			return res, nil
		}
		lastErr = err

		switch {
		case ctx.Err() != nil:
			return "", err
		case errors.Is(err, llm.ErrNotConfigured):
			f.disable(c.index)
			continue
		case errors.Is(err, llm.ErrEmptyAnswer), errors.Is(err, llm.ErrEmptyTranscript):
			// the provider worked; another one is unlikely to do better
			return "", err
		case isUnrecoverable(err):
			if isLast {
				return "", err
			}
			slog.Warn("LLM Provider fatal error, disabling for the session", "provider", c.name, "error", err)
			f.disable(c.index)
			continue
		}

		f.mu.Lock()
		bs, exists = f.backoffs[backoffKey]
		if !exists {
			bs = &backoffState{}
			f.backoffs[backoffKey] = bs
		}
		bs.subsequentFailures++
		bs.skippedRequests = 0
		failures := bs.subsequentFailures
		f.mu.Unlock()

		if !isLast {
			slog.Info("LLM Provider failed (retryable), falling back", "provider", c.name, "next", candidates[idx+1].name, "error", err, "backoff_failures", failures)
			continue
		}

		res, err = f.retryLast(ctx, c.name, func() (string, error) { return fn(c.m) })
		if err == nil {
			f.resetBackoff(backoffKey)
		}
		return res, err
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("all LLM providers exhausted for %s", callName)
}

func (f *Provider) disable(index int) {
	f.mu.Lock()
	f.disabled[index] = true
	f.mu.Unlock()
}

func (f *Provider) resetBackoff(key string) {
	f.mu.Lock()
	delete(f.backoffs, key)
	f.mu.Unlock()
}

// retryLast gives the last provider one more try; walkers are waiting.
func (f *Provider) retryLast(ctx context.Context, name string, call func() (string, error)) (string, error) {
	slog.Warn("Last LLM provider failed, retrying once", "provider", name, "delay", f.retryDelay)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(f.retryDelay):
	}
	res, err := call()
	if err != nil {
		return "", fmt.Errorf("last provider failed after retry: %w", err)
	}
	return res, nil
}

// isUnrecoverable identifies errors that should disable a provider.
// 429 and 400 are not fatal.
func isUnrecoverable(err error) bool {
	if err == nil {
		return false
	}
	var pe *llm.ProviderError
	if errors.As(err, &pe) && pe.Fatal() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "invalid_api_key")
}
