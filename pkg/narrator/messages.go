package narrator

import (
	"errors"

	"odysseywalk/pkg/audio"
	"odysseywalk/pkg/llm"
	"odysseywalk/pkg/location"
	"odysseywalk/pkg/tour"
	"odysseywalk/pkg/tts"
)

// UserMessage turns an error into text suitable for the walker's screen.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		chainErr    *tts.ChainError
		apiErr      *tts.APIError
		providerErr *llm.ProviderError
	)
	switch {
	case errors.Is(err, location.ErrPermissionDenied):
		return "Location access denied. Demo mode is on so you can still try the tour."
	case errors.Is(err, location.ErrPositionUnavailable), errors.Is(err, location.ErrTimeout):
		return "Location unavailable. Using demo mode."
	case errors.Is(err, ErrTranscription), errors.Is(err, llm.ErrEmptyTranscript):
		return "Voice input didn't work. Try typing your question."
	case errors.As(err, &chainErr), errors.As(err, &apiErr), tts.IsFatalError(err),
		errors.Is(err, tts.ErrNoProviders), errors.Is(err, tts.ErrEmptyText),
		errors.Is(err, tts.ErrAudioTooSmall), errors.Is(err, audio.ErrNoSynthesizer):
		return "Audio couldn't be played. You can read the text or try again."
	case errors.As(err, &providerErr), errors.Is(err, llm.ErrNotConfigured), errors.Is(err, llm.ErrEmptyAnswer):
		return "Answer from tour facts (AI temporarily unavailable)."
	case errors.Is(err, tour.ErrNoStops), errors.Is(err, tour.ErrDuplicateStop), errors.Is(err, ErrUnknownPOI):
		return "Couldn't load that tour. Try another or the demo."
	default:
		return "Something went wrong."
	}
}
