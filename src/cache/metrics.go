package cache

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	lookups           *prometheus.CounterVec
	builds            *prometheus.CounterVec
	buildDurations    prometheus.Histogram
	evictions         prometheus.Counter
	admissionFailures prometheus.Counter
}

// newMetrics creates the metrics for a cache, registering them if registerer is non-nil.
func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revcache",
			Name:      "lookups_total",
			Help:      "Count of cache lookups, by whether they hit, missed or the cache was disabled",
		}, []string{"result"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revcache",
			Name:      "builds_total",
			Help:      "Count of builds run on cache misses",
		}, []string{"success"}),
		buildDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "revcache",
			Name:      "build_duration_seconds",
			Help:      "Durations of builds run on cache misses",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "revcache",
			Name:      "evictions_total",
			Help:      "Count of artifacts evicted to make room for new ones",
		}),
		admissionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "revcache",
			Name:      "admission_failures_total",
			Help:      "Count of built artifacts that could not be stored in the cache",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.lookups, m.builds, m.buildDurations, m.evictions, m.admissionFailures)
	}
	return m
}

func (m *metrics) observeBuild(success bool, duration time.Duration) {
	m.builds.WithLabelValues(strconv.FormatBool(success)).Inc()
	m.buildDurations.Observe(duration.Seconds())
}
