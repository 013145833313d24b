// Package session tracks the active walk (visited stops, active stop, mode,
// voice) and persists it so a restart can resume where the walker left off.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"odysseywalk/pkg/logging"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/store"
)

// StateKey is the persistent_state key holding the active session.
const StateKey = "active_session"

// Event kinds recorded in the walk history.
const (
	EventStarted      = "session_started"
	EventTrigger      = "trigger"
	EventNarration    = "narration"
	EventTextFallback = "text_fallback"
	EventQuestion     = "question"
	EventModeSwitch   = "mode_switch"
	EventVoiceChange  = "voice_change"
	EventFinished     = "tour_finished"
)

// Manager owns the session state. All methods are safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	store   store.StateStore
	events  store.EventStore
	now     func() time.Time
	state   model.SessionState
	visited *model.VisitedSet
}

// NewManager creates a manager. Either store may be nil, which keeps the
// session in memory only.
func NewManager(st store.StateStore, ev store.EventStore) *Manager {
	return &Manager{store: st, events: ev, now: time.Now, visited: model.NewVisitedSet()}
}

// Start replaces any current session with a fresh one for the tour.
func (m *Manager) Start(ctx context.Context, tourID string, mode model.Mode, style model.VoiceStyle, lang model.Lang) model.SessionState {
	m.mu.Lock()
	m.state = model.SessionState{
		SessionID:  uuid.NewString(),
		TourID:     tourID,
		Mode:       mode,
		VoiceStyle: style,
		Lang:       lang,
		StartedAt:  m.now().UnixMilli(),
	}
	m.visited = model.NewVisitedSet()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(ctx, snap)
	m.Record(ctx, EventStarted, "", tourID)
	return snap
}

// State returns a copy of the current session.
func (m *Manager) State() model.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Visited returns a copy of the visited set for the trigger engine.
func (m *Manager) Visited() *model.VisitedSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.NewVisitedSet(m.visited.IDs()...)
}

// MarkVisited adds the stop to the visited set, makes it active and persists.
// It reports whether the stop was newly visited.
func (m *Manager) MarkVisited(ctx context.Context, poiID string) bool {
	m.mu.Lock()
	added := m.visited.Add(poiID)
	m.state.ActivePOIID = poiID
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(ctx, snap)
	return added
}

// SetActive changes the active stop without marking it visited.
func (m *Manager) SetActive(ctx context.Context, poiID string) {
	m.update(ctx, func(s *model.SessionState) { s.ActivePOIID = poiID })
}

func (m *Manager) SetMode(ctx context.Context, mode model.Mode) {
	m.update(ctx, func(s *model.SessionState) { s.Mode = mode })
	m.Record(ctx, EventModeSwitch, "", string(mode))
}

func (m *Manager) SetVoice(ctx context.Context, style model.VoiceStyle, lang model.Lang) {
	m.update(ctx, func(s *model.SessionState) {
		s.VoiceStyle = style
		s.Lang = lang
	})
	m.Record(ctx, EventVoiceChange, "", string(style)+"/"+string(lang))
}

// Clear forgets the session, in memory and on disk.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.state = model.SessionState{}
	m.visited = model.NewVisitedSet()
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteState(ctx, StateKey); err != nil {
			slog.Warn("Session: failed to delete persisted state", "error", err)
		}
	}
}

// Restore rehydrates a JSON-encoded session.
func (m *Manager) Restore(data []byte) error {
	var s model.SessionState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.visited = model.NewVisitedSet(s.VisitedPOIIDs...)
	s.VisitedPOIIDs = m.visited.IDs()
	m.state = s
	return nil
}

// Record writes a walk event to the event log and, when configured, the
// event store.
func (m *Manager) Record(ctx context.Context, kind, poiID, detail string) {
	sessionID := m.State().SessionID
	ts := m.now()
	logging.LogEvent(logging.Event{Time: ts, SessionID: sessionID, Kind: kind, POIID: poiID, Detail: detail})

	if m.events == nil {
		return
	}
	if err := m.events.RecordEvent(ctx, &store.WalkEvent{
		SessionID: sessionID, Kind: kind, POIID: poiID, Detail: detail, CreatedAt: ts,
	}); err != nil {
		slog.Warn("Session: failed to record event", "kind", kind, "error", err)
	}
}

// RecentEvents returns the newest events of the current session.
func (m *Manager) RecentEvents(ctx context.Context, limit int) []store.WalkEvent {
	if m.events == nil {
		return nil
	}
	evs, err := m.events.RecentEvents(ctx, m.State().SessionID, limit)
	if err != nil {
		slog.Warn("Session: failed to read events", "error", err)
		return nil
	}
	return evs
}

func (m *Manager) update(ctx context.Context, fn func(s *model.SessionState)) {
	m.mu.Lock()
	fn(&m.state)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(ctx, snap)
}

func (m *Manager) snapshotLocked() model.SessionState {
	s := m.state
	s.VisitedPOIIDs = m.visited.IDs()
	if s.VisitedPOIIDs == nil {
		s.VisitedPOIIDs = []string{}
	}
	return s
}

// persist never fails the caller; a lost write only costs resumability.
func (m *Manager) persist(ctx context.Context, s model.SessionState) {
	if m.store == nil || s.SessionID == "" {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		slog.Error("Session: failed to encode state", "error", err)
		return
	}
	if err := m.store.SetState(ctx, StateKey, string(data)); err != nil {
		slog.Warn("Session: failed to persist state", "error", err)
	}
}
