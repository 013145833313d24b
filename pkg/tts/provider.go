package tts

import (
	"context"
	"errors"
	"fmt"

	"odysseywalk/pkg/model"
)

const (
	// MinAudioSize is the minimum size of a synthesized clip (1KB).
	// Anything smaller is treated as a failed synthesis.
	MinAudioSize = 1024

	// MaxTextLength caps the characters sent to a synthesis backend.
	MaxTextLength = 5000
)

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("tts: empty text")
	// ErrNoProviders is returned by an empty chain.
	ErrNoProviders = errors.New("tts: no providers available")
	// ErrAudioTooSmall is returned when a backend answers with a truncated clip.
	ErrAudioTooSmall = errors.New("tts: audio too small")
)

// Request describes one synthesis call.
type Request struct {
	Text       string
	VoiceStyle model.VoiceStyle
	Lang       model.Lang
	Format     string // requested container, "mp3" by default
	Purpose    string // poi, intro, outro, answer
}

// Audio is a synthesized clip.
type Audio struct {
	Data   []byte
	Format string
}

// Synthesizer turns text into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// Named is implemented by synthesizers that report a provider name.
type Named interface {
	Name() string
}

// FatalError represents a TTS error that should trigger fallback to another provider.
// Examples: rate limits (429), server errors (5xx), auth failures (401/403).
type FatalError struct {
	StatusCode int
	Message    string
}

func (e *FatalError) Error() string {
	return e.Message
}

// NewFatalError creates a new FatalError with the given status code and message.
func NewFatalError(statusCode int, message string) *FatalError {
	return &FatalError{StatusCode: statusCode, Message: message}
}

// IsFatalError checks if an error is a TTS fatal error that should trigger fallback.
func IsFatalError(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// APIError is a non-2xx answer from a synthesis backend.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports rate limits and server errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// ClassifyStatus maps an HTTP failure onto the error the chain understands:
// auth, quota and server failures disable the provider, the rest do not.
func ClassifyStatus(provider string, status int, body string) error {
	switch {
	case status == 401, status == 402, status == 403, status == 429, status >= 500:
		return NewFatalError(status, fmt.Sprintf("%s: status %d: %s", provider, status, body))
	default:
		return &APIError{Provider: provider, StatusCode: status, Message: body}
	}
}

// VerifyAudio rejects empty or truncated clips.
func VerifyAudio(a Audio) error {
	if len(a.Data) < MinAudioSize {
		return fmt.Errorf("%w: %d bytes", ErrAudioTooSmall, len(a.Data))
	}
	return nil
}
