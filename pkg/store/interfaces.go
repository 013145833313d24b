package store

import (
	"context"
	"time"
)

// StateStore persists small key/value state (sessions, maintenance markers).
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// AudioRecord is a synthesized clip as stored on disk.
type AudioRecord struct {
	Key           string
	POIID         string
	VoiceStyle    string
	Lang          string
	ScriptVersion string
	Format        string
	Data          []byte
	CreatedAt     time.Time
}

// AudioStore persists synthesized clips across restarts.
type AudioStore interface {
	GetAudio(ctx context.Context, key string) (*AudioRecord, error)
	SaveAudio(ctx context.Context, r *AudioRecord) error
	DeleteAudio(ctx context.Context, key string) error
	ClearAudio(ctx context.Context) error
	CountAudio(ctx context.Context) (int, error)
}

// WalkEvent is one entry of a session's event history.
type WalkEvent struct {
	ID        int64
	SessionID string
	Kind      string
	POIID     string
	Detail    string
	CreatedAt time.Time
}

// EventStore records walk events.
type EventStore interface {
	RecordEvent(ctx context.Context, e *WalkEvent) error
	RecentEvents(ctx context.Context, sessionID string, limit int) ([]WalkEvent, error)
}
