package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"odysseywalk/pkg/geo"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/tour"
)

// TourHandler serves the tour, its status and the walk controls.
type TourHandler struct {
	narrator Narrator
	tour     *tour.Bundle
}

// NewTourHandler creates a new TourHandler.
func NewTourHandler(n Narrator, b *tour.Bundle) *TourHandler {
	return &TourHandler{narrator: n, tour: b}
}

// TourResponse is the loaded tour with derived route figures.
type TourResponse struct {
	Tour         model.Tour  `json:"tour"`
	POIs         []model.POI `json:"pois"`
	RouteLengthM float64     `json:"route_length_m"`
	Bounds       geo.Bounds  `json:"bounds"`
}

// JumpRequest selects a stop by id.
type JumpRequest struct {
	POIID string `json:"poi_id"`
}

// ModeRequest selects the location source.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// VoiceRequest selects the narration voice.
type VoiceRequest struct {
	VoiceStyle string `json:"voice_style"`
	Lang       string `json:"lang"`
}

// HandleStatus handles GET /api/status
func (h *TourHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.narrator.Status())
}

// HandleTour handles GET /api/tour
func (h *TourHandler) HandleTour(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TourResponse{
		Tour:         h.tour.Tour,
		POIs:         h.tour.POIs,
		RouteLengthM: geo.RouteLength(h.tour.Tour.RoutePoints),
		Bounds:       h.tour.Bounds(),
	})
}

// HandleBounds handles GET /api/route/bounds
func (h *TourHandler) HandleBounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tour.Bounds())
}

// HandleAction handles POST /api/tour/{action}
func (h *TourHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	extra := map[string]any{"action": action}

	var err error
	switch action {
	case "start":
		h.narrator.StartTour(r.Context())
	case "skip":
		h.narrator.SkipNext()
	case "step":
		err = h.narrator.StepForward()
	case "force-next":
		var id string
		if id, err = h.narrator.ForceTriggerNext(); err == nil {
			extra["poi_id"] = id
		}
	case "finish":
		h.narrator.FinishTour(r.Context())
	case "demo":
		err = h.narrator.RunDemo(r.Context())
	default:
		writeError(w, fmt.Errorf("%w: unknown action %q", errBadRequest, action))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Debug("Tour control", "action", action)
	writeOK(w, extra)
}

// HandleJump handles POST /api/tour/jump
func (h *TourHandler) HandleJump(w http.ResponseWriter, r *http.Request) {
	var req JumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.POIID == "" {
		writeError(w, errBadRequest)
		return
	}
	if err := h.narrator.JumpToPOI(req.POIID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"poi_id": req.POIID})
}

// HandleMode handles POST /api/mode
func (h *TourHandler) HandleMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	mode := model.Mode(req.Mode)
	if err := h.narrator.SetMode(r.Context(), mode); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"mode": mode})
}

// HandleVoice handles POST /api/voice
func (h *TourHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	var req VoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	st := h.narrator.Status()
	style, lang := st.VoiceStyle, st.Lang
	if req.VoiceStyle != "" {
		style = model.ParseVoiceStyle(req.VoiceStyle)
	}
	if req.Lang != "" {
		lang = model.ParseLang(req.Lang)
	}
	h.narrator.SetVoice(r.Context(), style, lang)
	writeOK(w, map[string]any{"voice_style": style, "lang": lang})
}
