package api

import (
	"fmt"
	"log/slog"
	"net/http"
)

// AudioHandler handles audio control endpoints.
type AudioHandler struct {
	narrator Narrator
}

// NewAudioHandler creates a new AudioHandler.
func NewAudioHandler(n Narrator) *AudioHandler {
	return &AudioHandler{narrator: n}
}

// HandleControl handles POST /api/audio/{action}
func (h *AudioHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	var err error
	switch action {
	case "pause":
		h.narrator.Pause()
	case "resume":
		h.narrator.Resume()
	case "stop":
		h.narrator.StopAudio()
	case "replay":
		err = h.narrator.Replay()
	case "retry":
		err = h.narrator.TryAudioAgain()
	case "clear-cache":
		h.narrator.ClearAudioCache()
	default:
		writeError(w, fmt.Errorf("%w: unknown action %q", errBadRequest, action))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	state := h.narrator.Status().AudioState
	slog.Debug("Audio control", "action", action, "state", state)
	writeOK(w, map[string]any{"action": action, "state": state})
}
