// Package metrics instruments the operations that cross a Backend
// boundary. Grounded on the teacher's internal/metrics/prometheus.go
// (the promauto registration pattern), trimmed from storage-node's
// cache/compaction/gossip/memtable surface to the handful of
// operations this SDK actually performs: log append, parameter
// replace, track flush, file upload. No HTTP server is started to
// expose them — that would make this SDK a service, which is out of
// scope. By default For registers against prometheus.DefaultRegisterer,
// so callers who run their own /metrics endpoint off the default
// registry see these automatically; dreamlake.WithMetricsRegistry lets
// a caller point a Session at a different Registerer instead.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram the SDK updates.
type Metrics struct {
	LogAppendsTotal      prometheus.Counter
	ParameterWritesTotal prometheus.Counter

	TrackAppendsTotal  prometheus.Counter
	TrackFlushesTotal  prometheus.Counter
	TrackFlushDuration prometheus.Histogram
	TrackMergedPoints  prometheus.Counter

	FileUploadsTotal    prometheus.Counter
	FileUploadBytes     prometheus.Histogram
	FileUploadDuration  prometheus.Histogram
}

// New registers a fresh metric set against reg. Passing nil registers
// nothing (promauto.With(nil) is a no-op registerer) — callers that
// want the process-wide default registry should go through For, not
// New, so repeated Sessions don't each try to register the same
// metric names and panic on the second MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LogAppendsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dreamlake",
			Name:      "log_appends_total",
			Help:      "Total number of log records appended.",
		}),
		ParameterWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dreamlake",
			Name:      "parameter_writes_total",
			Help:      "Total number of parameter map replacements.",
		}),
		TrackAppendsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dreamlake",
			Name:      "track_appends_total",
			Help:      "Total number of data points appended to tracks (pre-merge).",
		}),
		TrackFlushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dreamlake",
			Name:      "track_flushes_total",
			Help:      "Total number of track buffer flushes.",
		}),
		TrackFlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dreamlake",
			Name:      "track_flush_duration_seconds",
			Help:      "Latency of a single track buffer flush.",
			Buckets:   prometheus.DefBuckets,
		}),
		TrackMergedPoints: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dreamlake",
			Name:      "track_merged_points_total",
			Help:      "Total number of buffered points collapsed by merge-by-timestamp.",
		}),
		FileUploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dreamlake",
			Name:      "file_uploads_total",
			Help:      "Total number of file artifacts uploaded.",
		}),
		FileUploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dreamlake",
			Name:      "file_upload_bytes",
			Help:      "Size in bytes of uploaded files.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		FileUploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dreamlake",
			Name:      "file_upload_duration_seconds",
			Help:      "Latency of a file upload, including checksum computation.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Noop returns a Metrics backed by a fresh, unregistered registry —
// useful for tests and for callers who don't want any global registry
// touched.
func Noop() *Metrics {
	return New(prometheus.NewRegistry())
}

var (
	mu    sync.Mutex
	cache = make(map[prometheus.Registerer]*Metrics)
)

// For returns the Metrics set registered against reg, creating and
// registering it the first time reg is seen and reusing it on every
// later call. Passing nil resolves to prometheus.DefaultRegisterer, so
// a caller who never supplies a registry still gets counters visible
// on the process's default /metrics endpoint, and opening many
// Sessions against the same registry registers each metric exactly
// once instead of panicking on a duplicate MustRegister.
func For(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	mu.Lock()
	defer mu.Unlock()
	if m, ok := cache[reg]; ok {
		return m
	}
	m := New(reg)
	cache[reg] = m
	return m
}
