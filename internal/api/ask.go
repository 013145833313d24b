package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxRecordingBytes bounds an uploaded question recording.
const maxRecordingBytes = 10 << 20

// AskHandler answers typed and spoken questions.
type AskHandler struct {
	narrator Narrator
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(n Narrator) *AskHandler {
	return &AskHandler{narrator: n}
}

// AskRequest is a typed question.
type AskRequest struct {
	Question string `json:"question"`
}

// HandleAsk handles POST /api/ask
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	ans, err := h.narrator.AskText(r.Context(), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// HandleAskAudio handles POST /api/ask/audio. The body is the raw recording
// and Content-Type its MIME type.
func (h *AskHandler) HandleAskAudio(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordingBytes))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if len(body) == 0 {
		writeError(w, fmt.Errorf("%w: empty recording", errBadRequest))
		return
	}

	mime := r.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = "audio/webm"
	}

	ans, err := h.narrator.Ask(r.Context(), body, mime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
