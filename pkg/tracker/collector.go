package tracker

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes a Tracker as Prometheus counters.
type Collector struct {
	t *Tracker

	cacheHits   *prometheus.Desc
	cacheMisses *prometheus.Desc
	apiSuccess  *prometheus.Desc
	apiFailures *prometheus.Desc
	events      *prometheus.Desc
}

// NewCollector wraps t.
func NewCollector(t *Tracker) *Collector {
	return &Collector{
		t:           t,
		cacheHits:   prometheus.NewDesc("odysseywalk_cache_hits_total", "Cache hits per provider.", []string{"provider"}, nil),
		cacheMisses: prometheus.NewDesc("odysseywalk_cache_misses_total", "Cache misses per provider.", []string{"provider"}, nil),
		apiSuccess:  prometheus.NewDesc("odysseywalk_api_success_total", "Successful upstream calls per provider.", []string{"provider"}, nil),
		apiFailures: prometheus.NewDesc("odysseywalk_api_failures_total", "Failed upstream calls per provider.", []string{"provider"}, nil),
		events:      prometheus.NewDesc("odysseywalk_events_total", "Walk events by kind.", []string{"event"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.apiSuccess
	ch <- c.apiFailures
	ch <- c.events
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for provider, s := range c.t.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(s.CacheHits), provider)
		ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(s.CacheMisses), provider)
		ch <- prometheus.MustNewConstMetric(c.apiSuccess, prometheus.CounterValue, float64(s.APISuccess), provider)
		ch <- prometheus.MustNewConstMetric(c.apiFailures, prometheus.CounterValue, float64(s.APIFailures), provider)
	}
	for name, v := range c.t.Events() {
		ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(v), name)
	}
}
