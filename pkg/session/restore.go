package session

import (
	"context"
	"encoding/json"
	"log/slog"

	"odysseywalk/pkg/model"
	"odysseywalk/pkg/store"
)

// TryRestore loads the persisted session if it belongs to tourID.
// It reports whether a session was restored; a session for another tour is
// left on disk and ignored.
func TryRestore(ctx context.Context, st store.StateStore, mgr *Manager, tourID string) bool {
	val, found := st.GetState(ctx, StateKey)
	if !found || val == "" {
		return false
	}

	var probe model.SessionState
	if err := json.Unmarshal([]byte(val), &probe); err != nil {
		slog.Error("Session: Failed to unmarshal persisted session", "error", err)
		return false
	}
	if probe.TourID != tourID || probe.SessionID == "" {
		slog.Info("Session: Persisted session is for another tour, starting fresh", "persisted", probe.TourID, "tour", tourID)
		return false
	}

	if err := mgr.Restore([]byte(val)); err != nil {
		slog.Error("Session: Failed to restore persisted session state", "error", err)
		return false
	}
	slog.Info("Session: Restored persisted session", "session", probe.SessionID, "visited", len(probe.VisitedPOIIDs))
	return true
}
