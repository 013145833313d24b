package audio

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"odysseywalk/pkg/model"
)

// CacheKey identifies synthesized audio. Narration is keyed by POI and script
// version; intro, outro and answers by a content hash in POIID.
type CacheKey struct {
	POIID         string
	VoiceStyle    model.VoiceStyle
	Lang          model.Lang
	ScriptVersion string
}

// NarrationKey keys POI narration.
func NarrationKey(poiID string, style model.VoiceStyle, lang model.Lang, scriptVersion string) CacheKey {
	return CacheKey{POIID: poiID, VoiceStyle: style, Lang: lang, ScriptVersion: scriptVersion}
}

// TextKey keys non-POI audio by purpose and text content.
func TextKey(purpose, text string, style model.VoiceStyle, lang model.Lang) CacheKey {
	sum := sha256.Sum256([]byte(text))
	return CacheKey{POIID: purpose + ":" + hex.EncodeToString(sum[:8]), VoiceStyle: style, Lang: lang}
}

// String renders the key for storage backends.
func (k CacheKey) String() string {
	return strings.Join([]string{k.POIID, string(k.VoiceStyle), string(k.Lang), k.ScriptVersion}, "|")
}

// Cache stores synthesized clips. Entries live until Clear.
type Cache interface {
	Get(key CacheKey) (Clip, bool)
	Put(key CacheKey, clip Clip)
	Delete(key CacheKey)
	Clear()
	Len() int
}

// MemoryCache is an unbounded in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[CacheKey]Clip
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[CacheKey]Clip)}
}

func (c *MemoryCache) Get(key CacheKey) (Clip, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clip, ok := c.entries[key]
	return clip, ok
}

func (c *MemoryCache) Put(key CacheKey, clip Clip) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = clip
}

func (c *MemoryCache) Delete(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry so the blobs can be collected.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]Clip)
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
