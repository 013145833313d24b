package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"time"

	"odysseywalk/pkg/db"
)

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	StateStore
	AudioStore
	EventStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Audio ---

func (s *SQLiteStore) GetAudio(ctx context.Context, key string) (*AudioRecord, error) {
	var r AudioRecord
	var poiID, style, lang, version, format sql.NullString
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT key, poi_id, voice_style, lang, script_version, format, data, created_at FROM audio_cache WHERE key = ?", key).
		Scan(&r.Key, &poiID, &style, &lang, &version, &format, &r.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.POIID, r.VoiceStyle, r.Lang = poiID.String, style.String, lang.String
	r.ScriptVersion, r.Format, r.CreatedAt = version.String, format.String, createdAt

	// Transparent Decompression
	if isGzip(r.Data) {
		if data, err := decompress(r.Data); err == nil {
			r.Data = data
		}
	}
	return &r, nil
}

func (s *SQLiteStore) SaveAudio(ctx context.Context, r *AudioRecord) error {
	data := r.Data
	// WAV compresses well; MP3 barely does, so keep whichever is smaller
	if compressed, err := compress(data); err == nil && len(compressed) < len(data) {
		data = compressed
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	query := `INSERT OR REPLACE INTO audio_cache (key, poi_id, voice_style, lang, script_version, format, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, r.Key, r.POIID, r.VoiceStyle, r.Lang, r.ScriptVersion, r.Format, data,
		created.UTC().Format("2006-01-02 15:04:05"))
	return err
}

func (s *SQLiteStore) DeleteAudio(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM audio_cache WHERE key = ?", key)
	return err
}

func (s *SQLiteStore) ClearAudio(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM audio_cache")
	return err
}

func (s *SQLiteStore) CountAudio(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM audio_cache").Scan(&n)
	return n, err
}

// --- Compression Pooling ---

var (
	// Pool for gzip writers to reuse flate state
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	// Pool for generic byte buffers
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func isGzip(data []byte) bool {
	return len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b
}

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// --- Events ---

func (s *SQLiteStore) RecordEvent(ctx context.Context, e *WalkEvent) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO walk_events (session_id, kind, poi_id, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		e.SessionID, e.Kind, e.POIID, e.Detail, created.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// RecentEvents returns up to limit events for the session, newest first.
func (s *SQLiteStore) RecentEvents(ctx context.Context, sessionID string, limit int) ([]WalkEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, kind, poi_id, detail, created_at FROM walk_events WHERE session_id = ? ORDER BY id DESC LIMIT ?",
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WalkEvent
	for rows.Next() {
		var e WalkEvent
		var poiID, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &poiID, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.POIID, e.Detail = poiID.String, detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
