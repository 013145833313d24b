package model

// AudioState is owned by the audio session controller.
type AudioState string

const (
	AudioIdle         AudioState = "IDLE"
	AudioPlayingIntro AudioState = "PLAYING_INTRO"
	AudioNavigating   AudioState = "NAVIGATING"
	AudioNarrating    AudioState = "NARRATING"
	AudioListening    AudioState = "LISTENING"
	AudioAnswering    AudioState = "ANSWERING"
	AudioPlayingOutro AudioState = "PLAYING_OUTRO"
	AudioPaused       AudioState = "PAUSED"
)

// Mode selects the location source.
type Mode string

const (
	ModeReal Mode = "real"
	ModeDemo Mode = "demo"
)

// SessionState is the persisted per-walk state.
type SessionState struct {
	SessionID     string     `json:"session_id"`
	TourID        string     `json:"tour_id"`
	VisitedPOIIDs []string   `json:"visited_poi_ids"`
	ActivePOIID   string     `json:"active_poi_id,omitempty"`
	Mode          Mode       `json:"mode"`
	VoiceStyle    VoiceStyle `json:"voice_style"`
	Lang          Lang       `json:"lang"`
	StartedAt     int64      `json:"started_at,omitempty"`
}

// VisitedSet is an append-only ordered set of POI ids.
// The zero value is ready to use. Not safe for concurrent mutation.
type VisitedSet struct {
	ids  []string
	seen map[string]struct{}
}

// NewVisitedSet seeds a set from persisted ids, dropping duplicates.
func NewVisitedSet(ids ...string) *VisitedSet {
	v := &VisitedSet{}
	for _, id := range ids {
		v.Add(id)
	}
	return v
}

// Add inserts id and reports whether it was new.
func (v *VisitedSet) Add(id string) bool {
	if v.seen == nil {
		v.seen = make(map[string]struct{})
	}
	if _, ok := v.seen[id]; ok {
		return false
	}
	v.seen[id] = struct{}{}
	v.ids = append(v.ids, id)
	return true
}

// Contains is nil-safe.
func (v *VisitedSet) Contains(id string) bool {
	if v == nil {
		return false
	}
	_, ok := v.seen[id]
	return ok
}

// Len is nil-safe.
func (v *VisitedSet) Len() int {
	if v == nil {
		return 0
	}
	return len(v.ids)
}

// IDs returns a copy in insertion order.
func (v *VisitedSet) IDs() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.ids))
	copy(out, v.ids)
	return out
}
