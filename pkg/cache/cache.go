// Package cache persists synthesized audio so narration survives restarts.
package cache

import (
	"context"
	"log/slog"
	"time"

	"odysseywalk/pkg/audio"
	"odysseywalk/pkg/store"
)

const opTimeout = 5 * time.Second

// SQLiteCache implements audio.Cache with an in-memory front and a
// persistent AudioStore behind it. Store failures degrade to memory-only.
type SQLiteCache struct {
	mem   *audio.MemoryCache
	store store.AudioStore
}

// NewSQLiteCache creates a new cache.
func NewSQLiteCache(s store.AudioStore) *SQLiteCache {
	return &SQLiteCache{mem: audio.NewMemoryCache(), store: s}
}

func (c *SQLiteCache) Get(key audio.CacheKey) (audio.Clip, bool) {
	if clip, ok := c.mem.Get(key); ok {
		return clip, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	rec, err := c.store.GetAudio(ctx, key.String())
	if err != nil {
		slog.Warn("Audio cache read failed", "key", key.String(), "error", err)
		return audio.Clip{}, false
	}
	if rec == nil || len(rec.Data) == 0 {
		return audio.Clip{}, false
	}

	clip := audio.Clip{Data: rec.Data, Format: rec.Format}
	c.mem.Put(key, clip)
	return clip, true
}

func (c *SQLiteCache) Put(key audio.CacheKey, clip audio.Clip) {
	c.mem.Put(key, clip)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	rec := &store.AudioRecord{
		Key:           key.String(),
		POIID:         key.POIID,
		VoiceStyle:    string(key.VoiceStyle),
		Lang:          string(key.Lang),
		ScriptVersion: key.ScriptVersion,
		Format:        clip.Format,
		Data:          clip.Data,
	}
	if err := c.store.SaveAudio(ctx, rec); err != nil {
		slog.Warn("Audio cache write failed", "key", rec.Key, "error", err)
	}
}

func (c *SQLiteCache) Delete(key audio.CacheKey) {
	c.mem.Delete(key)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.store.DeleteAudio(ctx, key.String()); err != nil {
		slog.Warn("Audio cache delete failed", "key", key.String(), "error", err)
	}
}

func (c *SQLiteCache) Clear() {
	c.mem.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.store.ClearAudio(ctx); err != nil {
		slog.Warn("Audio cache clear failed", "error", err)
	}
}

// Len counts persisted clips, falling back to the memory tier.
func (c *SQLiteCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	n, err := c.store.CountAudio(ctx)
	if err != nil {
		return c.mem.Len()
	}
	return n
}

var _ audio.Cache = (*SQLiteCache)(nil)
