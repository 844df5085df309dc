package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	renders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flipbook",
			Name:      "renders_total",
			Help:      "Page rasterizations by kind (page, thumb) and result (ok, error)",
		},
		[]string{"kind", "result"},
	)

	renderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flipbook",
			Name:      "render_duration_seconds",
			Help:      "Duration of page rasterization and encoding",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flipbook",
			Name:      "cache_lookups_total",
			Help:      "Render cache lookups by tier (memory, shared) and result (hit, miss)",
		},
		[]string{"tier", "result"},
	)

	flips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flipbook",
			Name:      "flips_total",
			Help:      "Flip requests by outcome (started, dropped, instant, noop, failed)",
		},
		[]string{"outcome"},
	)

	loads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flipbook",
			Name:      "document_loads_total",
			Help:      "Document loads by source (upload, file, http, s3) and result",
		},
		[]string{"source", "result"},
	)

	sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "flipbook",
			Name:      "sessions_active",
			Help:      "Viewer sessions currently held in memory",
		},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(renders, renderLatency, cacheLookups, flips, loads, sessions)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveRender(kind string, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	renders.WithLabelValues(kind, result).Inc()
	renderLatency.WithLabelValues(kind).Observe(dur.Seconds())
}

func CacheHit(tier string)  { cacheLookups.WithLabelValues(tier, "hit").Inc() }
func CacheMiss(tier string) { cacheLookups.WithLabelValues(tier, "miss").Inc() }

func IncFlip(outcome string) { flips.WithLabelValues(outcome).Inc() }

func IncLoad(source string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	loads.WithLabelValues(source, result).Inc()
}

func SetSessions(n int) { sessions.Set(float64(n)) }
