package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"odysseywalk/pkg/llm"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/narrator"
)

// Narrator is the part of the tour service the handlers drive.
type Narrator interface {
	Status() narrator.Status
	StartTour(ctx context.Context)
	SkipNext()
	Replay() error
	JumpToPOI(id string) error
	ForceTriggerNext() (string, error)
	StepForward() error
	RunDemo(ctx context.Context) error
	FinishTour(ctx context.Context)
	TryAudioAgain() error
	Pause()
	Resume()
	StopAudio()
	ClearAudioCache()
	SetMode(ctx context.Context, mode model.Mode) error
	SetVoice(ctx context.Context, style model.VoiceStyle, lang model.Lang)
	AskText(ctx context.Context, question string) (*narrator.Answer, error)
	Ask(ctx context.Context, recording []byte, mimeType string) (*narrator.Answer, error)
	Subscribe(fn func(narrator.Event)) func()
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, extra map[string]any) {
	resp := map[string]any{"status": "ok"}
	for k, v := range extra {
		resp[k] = v
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	} else {
		slog.Debug("Request rejected", "error", err, "code", code)
	}
	writeJSON(w, code, ErrorResponse{
		Status:  "error",
		Error:   err.Error(),
		Message: narrator.UserMessage(err),
	})
}

var errBadRequest = errors.New("invalid request body")

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, narrator.ErrInvalidMode),
		errors.Is(err, narrator.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, narrator.ErrUnknownPOI):
		return http.StatusNotFound
	case errors.Is(err, narrator.ErrNoActivePOI), errors.Is(err, narrator.ErrTourComplete),
		errors.Is(err, narrator.ErrNoFallback), errors.Is(err, narrator.ErrNotDemo),
		errors.Is(err, narrator.ErrNoRealProvider):
		return http.StatusConflict
	case errors.Is(err, narrator.ErrTranscription), errors.Is(err, llm.ErrEmptyTranscript):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
