package tracker

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTracker(t *testing.T) {
	tr := New()
	provider := "test.provider"

	// Test Initial State
	stats := tr.Snapshot()
	if len(stats) != 0 {
		t.Errorf("Expected empty stats, got %d", len(stats))
	}

	// Test Tracking
	tr.TrackCacheHit(provider)
	tr.TrackCacheMiss(provider)
	tr.TrackAPISuccess(provider)
	tr.TrackAPIFailure(provider)

	// Verify Snapshot
	stats = tr.Snapshot()
	pStats, ok := stats[provider]
	if !ok {
		t.Fatalf("Expected stats for provider %s", provider)
	}

	if pStats.CacheHits != 1 {
		t.Errorf("Expected 1 CacheHit, got %d", pStats.CacheHits)
	}
	if pStats.CacheMisses != 1 {
		t.Errorf("Expected 1 CacheMiss, got %d", pStats.CacheMisses)
	}
	if pStats.APISuccess != 1 {
		t.Errorf("Expected 1 APISuccess, got %d", pStats.APISuccess)
	}
	if pStats.APIFailures != 1 {
		t.Errorf("Expected 1 APIFailure, got %d", pStats.APIFailures)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TrackAPISuccess("p")
			tr.TrackEvent("trigger")
		}()
	}
	wg.Wait()

	if got := tr.Snapshot()["p"].APISuccess; got != 50 {
		t.Errorf("Expected 50 successes, got %d", got)
	}
	if got := tr.Events()["trigger"]; got != 50 {
		t.Errorf("Expected 50 trigger events, got %d", got)
	}
}

func TestCollector(t *testing.T) {
	tr := New()
	tr.TrackAPISuccess("gradium")
	tr.TrackAPISuccess("gradium")
	tr.TrackEvent("text_fallback")

	c := NewCollector(tr)
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	expected := `
# HELP odysseywalk_api_success_total Successful upstream calls per provider.
# TYPE odysseywalk_api_success_total counter
odysseywalk_api_success_total{provider="gradium"} 2
# HELP odysseywalk_events_total Walk events by kind.
# TYPE odysseywalk_events_total counter
odysseywalk_events_total{event="text_fallback"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"odysseywalk_api_success_total", "odysseywalk_events_total"); err != nil {
		t.Error(err)
	}
}
