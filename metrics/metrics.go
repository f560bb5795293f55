// Package metrics exposes Prometheus instrumentation for the admission pipeline.
package metrics

import (
	"errors"
	"sync"
	"time"

	civicscreen "github.com/anatolykoptev/go-civicscreen"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// VerdictsTotal counts decided reports by status and rejection reason.
	VerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicscreen",
		Subsystem: "admission",
		Name:      "verdicts_total",
		Help:      "Total number of decided reports, labeled by status and rejection reason.",
	}, []string{"status", "reason"})

	// SuppressedErrorsTotal counts errors swallowed by the fail-open policy.
	SuppressedErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicscreen",
		Subsystem: "admission",
		Name:      "suppressed_errors_total",
		Help:      "Errors from duplicate checks or classification that degraded instead of failing the report.",
	}, []string{"stage", "kind"})

	// SinkErrorsTotal counts failed dataset appends.
	SinkErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicscreen",
		Subsystem: "dataset",
		Name:      "append_errors_total",
		Help:      "Total number of dataset append failures.",
	})

	// StageDurationSeconds is the time spent in each pipeline stage.
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "civicscreen",
		Subsystem: "admission",
		Name:      "stage_duration_seconds",
		Help:      "Time spent per pipeline stage.",
		// Image fetches are capped at 5s; keep buckets coarse.
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"stage"})

	// RegistrySize is the number of entries in each duplicate registry.
	RegistrySize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "civicscreen",
		Subsystem: "dedup",
		Name:      "registry_entries",
		Help:      "Entries held by each in-memory duplicate registry.",
	}, []string{"registry"})
)

// Register registers the metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			VerdictsTotal,
			SuppressedErrorsTotal,
			SinkErrorsTotal,
			StageDurationSeconds,
			RegistrySize,
		)
	})
}

// Instrument chains metric updates onto cfg's callbacks, keeping any the
// caller already set.
func Instrument(cfg *civicscreen.Config) {
	prevVerdict := cfg.OnVerdict
	cfg.OnVerdict = func(v civicscreen.Verdict) {
		VerdictsTotal.WithLabelValues(string(v.Status), v.Reason).Inc()
		if prevVerdict != nil {
			prevVerdict(v)
		}
	}

	prevSuppressed := cfg.OnSuppressed
	cfg.OnSuppressed = func(stage string, err error) {
		SuppressedErrorsTotal.WithLabelValues(stage, ErrorKind(err)).Inc()
		if prevSuppressed != nil {
			prevSuppressed(stage, err)
		}
	}

	prevStage := cfg.OnStage
	cfg.OnStage = func(stage string, took time.Duration) {
		StageDurationSeconds.WithLabelValues(stage).Observe(took.Seconds())
		if prevStage != nil {
			prevStage(stage, took)
		}
	}

	prevSink := cfg.OnSinkError
	cfg.OnSinkError = func(err error) {
		SinkErrorsTotal.Inc()
		if prevSink != nil {
			prevSink(err)
		}
	}
}

// ObserveRegistries publishes the sizes of store's registries.
func ObserveRegistries(store *civicscreen.DuplicateStore) {
	st := store.Stats()
	RegistrySize.WithLabelValues("text").Set(float64(st.TextKeys))
	RegistrySize.WithLabelValues("image").Set(float64(st.Fingerprints))
	RegistrySize.WithLabelValues("location").Set(float64(st.Locations))
}

// ErrorKind maps a suppressed error onto a low-cardinality label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, civicscreen.ErrFetch):
		return "fetch"
	case errors.Is(err, civicscreen.ErrDecode):
		return "decode"
	case errors.Is(err, civicscreen.ErrClassificationUnavailable):
		return "unavailable"
	case errors.Is(err, civicscreen.ErrInvalidCoordinates):
		return "coordinates"
	default:
		return "other"
	}
}
