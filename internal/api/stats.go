package api

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"odysseywalk/pkg/store"
	"odysseywalk/pkg/tracker"
)

// EventLister reads the walk event log.
type EventLister interface {
	RecentEvents(ctx context.Context, limit int) []store.WalkEvent
}

type StatsHandler struct {
	tracker   *tracker.Tracker
	events    EventLister
	providers map[string][]string
	started   time.Time
	mu        sync.Mutex
	maxMem    uint64
}

// NewStatsHandler creates a StatsHandler. providers lists the configured
// failover order per concern, e.g. "tts" and "llm".
func NewStatsHandler(t *tracker.Tracker, ev EventLister, providers map[string][]string) *StatsHandler {
	return &StatsHandler{
		tracker:   t,
		events:    ev,
		providers: providers,
		started:   time.Now(),
	}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_errors"`
	HitRate     int64 `json:"hit_rate"`
}

type Diagnostics struct {
	MemoryMB    uint64 `json:"memory_mb"`
	MemoryMaxMB uint64 `json:"memory_max_mb"`
	Goroutines  int    `json:"goroutines"`
	UptimeSec   int64  `json:"uptime_sec"`
}

type StatsResponse struct {
	Diagnostics Diagnostics                 `json:"diagnostics"`
	Providers   map[string]ProviderStatsDTO `json:"providers"`
	Events      map[string]int64            `json:"events"`
	Failover    map[string][]string         `json:"failover"`
}

// EventDTO is one entry of the walk event log.
type EventDTO struct {
	Kind   string `json:"kind"`
	POIID  string `json:"poi_id,omitempty"`
	Detail string `json:"detail,omitempty"`
	At     int64  `json:"at"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Diagnostics: h.gatherDiagnostics(),
		Providers:   make(map[string]ProviderStatsDTO, len(snapshot)),
		Events:      h.tracker.Events(),
		Failover:    h.providers,
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:   stats.CacheHits,
			CacheMisses: stats.CacheMisses,
			APISuccess:  stats.APISuccess,
			APIFailures: stats.APIFailures,
			HitRate:     hitRate,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleEvents handles GET /api/events?limit=N
func (h *StatsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errBadRequest)
			return
		}
		limit = min(n, 500)
	}

	out := []EventDTO{}
	if h.events != nil {
		for _, ev := range h.events.RecentEvents(r.Context(), limit) {
			out = append(out, EventDTO{
				Kind:   ev.Kind,
				POIID:  ev.POIID,
				Detail: ev.Detail,
				At:     ev.CreatedAt.UnixMilli(),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (h *StatsHandler) gatherDiagnostics() Diagnostics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.mu.Lock()
	if ms.Alloc > h.maxMem {
		h.maxMem = ms.Alloc
	}
	maxMem := h.maxMem
	h.mu.Unlock()

	return Diagnostics{
		MemoryMB:    bToMb(ms.Alloc),
		MemoryMaxMB: bToMb(maxMem),
		Goroutines:  runtime.NumGoroutine(),
		UptimeSec:   int64(time.Since(h.started).Seconds()),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
