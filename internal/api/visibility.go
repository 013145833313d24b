package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// VisibilitySetter is toggled when the UI moves between foreground and background.
type VisibilitySetter interface {
	Set(visible bool)
	Visible() bool
}

// VisibilityHandler lets the UI suspend the location sensor while hidden.
type VisibilityHandler struct {
	flag VisibilitySetter
}

// NewVisibilityHandler creates a new VisibilityHandler.
func NewVisibilityHandler(v VisibilitySetter) *VisibilityHandler {
	return &VisibilityHandler{flag: v}
}

// VisibilityRequest reports the UI visibility.
type VisibilityRequest struct {
	Visible *bool `json:"visible"`
}

// HandleVisibility handles POST /api/visibility
func (h *VisibilityHandler) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Visible == nil {
		writeError(w, errBadRequest)
		return
	}
	h.flag.Set(*req.Visible)
	slog.Debug("UI visibility changed", "visible", *req.Visible)
	writeOK(w, map[string]any{"visible": h.flag.Visible()})
}
