// Package llm answers walkers' spoken or typed questions about the current
// stop and transcribes recorded questions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"odysseywalk/pkg/model"
)

var (
	// ErrNotConfigured is returned by providers without credentials.
	ErrNotConfigured = errors.New("llm provider not configured")
	// ErrEmptyTranscript is returned when speech recognition heard nothing.
	ErrEmptyTranscript = errors.New("empty transcript")
	// ErrEmptyAnswer is returned when the model produced no text.
	ErrEmptyAnswer = errors.New("empty answer")
)

// ProviderError reports a failed call to an upstream model API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Fatal reports whether retrying with the same credentials is pointless.
func (e *ProviderError) Fatal() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// maxRecentContext bounds how many earlier questions are sent along.
const maxRecentContext = 4

// AnswerRequest carries a question and what we know about the current stop.
type AnswerRequest struct {
	TourID        string
	POIID         string
	POIName       string
	Question      string
	POIScript     string
	POIFacts      []string
	VoiceStyle    model.VoiceStyle
	Lang          model.Lang
	RecentContext []string
}

// Recent returns the last few earlier questions.
func (r AnswerRequest) Recent() []string {
	if len(r.RecentContext) <= maxRecentContext {
		return r.RecentContext
	}
	return r.RecentContext[len(r.RecentContext)-maxRecentContext:]
}

// Answerer produces a short spoken answer.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string, lang model.Lang) (string, error)
}

// FallbackReason selects the wording of a fact-based fallback answer.
type FallbackReason int

const (
	// FallbackProviderError: the provider answered with an error status.
	FallbackProviderError FallbackReason = iota
	// FallbackEmptyAnswer: the provider succeeded but said nothing.
	FallbackEmptyAnswer
	// FallbackNotConfigured: no provider is available.
	FallbackNotConfigured
	// FallbackUnexpected: anything else.
	FallbackUnexpected
	// FallbackRateLimited: the provider asked us to slow down.
	FallbackRateLimited
)

// FallbackAnswer answers from the stop's facts when no model can.
func FallbackAnswer(facts []string, reason FallbackReason) string {
	var clean []string
	for _, f := range facts {
		if f = strings.TrimSpace(f); f != "" {
			clean = append(clean, f)
		}
	}

	switch reason {
	case FallbackNotConfigured:
		return "I don't have access to answers right now. Check the POI facts on screen."
	case FallbackUnexpected:
		return "Something went wrong. Check the facts on screen for this stop."
	case FallbackRateLimited:
		return "Please try again in a minute."
	}

	if len(clean) >= 2 {
		return clean[0] + " " + clean[1]
	}
	if reason == FallbackEmptyAnswer {
		if len(clean) == 1 {
			return "One fact we have: " + clean[0]
		}
		return "I don't have more details for that."
	}
	if len(clean) == 1 {
		return "Based on what we know: " + strings.TrimSuffix(clean[0], ".") + "."
	}
	return "I'm not sure. Try reading the stop description on screen."
}

// ReasonFor classifies an answer error.
func ReasonFor(err error) FallbackReason {
	var pe *ProviderError
	switch {
	case errors.Is(err, ErrNotConfigured):
		return FallbackNotConfigured
	case errors.Is(err, ErrEmptyAnswer):
		return FallbackEmptyAnswer
	case errors.As(err, &pe) && pe.StatusCode == http.StatusTooManyRequests:
		return FallbackRateLimited
	case errors.As(err, &pe):
		return FallbackProviderError
	default:
		return FallbackUnexpected
	}
}

// AnswerWithFallback asks a and falls back to the stop's facts on failure.
// The returned error is the provider failure, if any; the answer is always
// usable.
func AnswerWithFallback(ctx context.Context, a Answerer, req AnswerRequest) (string, error) {
	if a == nil {
		return FallbackAnswer(req.POIFacts, FallbackNotConfigured), ErrNotConfigured
	}
	ans, err := a.Answer(ctx, req)
	if err == nil {
		if ans = strings.TrimSpace(ans); ans != "" {
			return ans, nil
		}
		err = ErrEmptyAnswer
	}
	return FallbackAnswer(req.POIFacts, ReasonFor(err)), err
}

// ParseTranscript extracts text from the shapes speech APIs return: a bare
// string or an object with text, transcript, transcription or result.
func ParseTranscript(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, k := range []string{"text", "transcript", "transcription", "result", "text_value"} {
			if s, ok := t[k].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
