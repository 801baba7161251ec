// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesLogged   *prometheus.CounterVec
	HistoryPages     prometheus.Counter
	FetchErrors      prometheus.Counter
	ResolutionErrors prometheus.Counter
	LiveDropped      prometheus.Counter
	MirrorErrors     prometheus.Counter

	// Histograms (seconds)
	DrainDuration prometheus.Observer

	// Gauges
	TrackedChannelsGauge prometheus.Gauge
	TailActiveGauge      prometheus.Gauge // 1=live delivery on
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesLogged = promauto.NewCounterVec(prometheus.CounterOpts{Name: "archiver_messages_logged_total", Help: "Messages appended to log files"}, []string{"phase"})
		HistoryPages = promauto.NewCounter(prometheus.CounterOpts{Name: "archiver_history_pages_total", Help: "Non-empty history pages fetched"})
		FetchErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "archiver_fetch_errors_total", Help: "History page requests that failed"})
		ResolutionErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "archiver_resolution_errors_total", Help: "Targets that could not be resolved"})
		LiveDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "archiver_live_dropped_total", Help: "Live messages dropped because the pre-activation buffer was full"})
		MirrorErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "archiver_mirror_errors_total", Help: "Entries that could not be published to the mirror"})
		DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "archiver_drain_duration_seconds", Help: "Duration of one channel history drain", Buckets: prometheus.DefBuckets})
		TrackedChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "archiver_tracked_routes", Help: "Live routes registered (channels plus guild wildcards)"})
		TailActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "archiver_tail_active", Help: "Live tail active=1 buffering=0"})
	})
}

// ObserveMessage counts one logged message for phase.
func ObserveMessage(phase string) {
	if MessagesLogged != nil {
		MessagesLogged.WithLabelValues(phase).Inc()
	}
}

// ObservePage counts one non-empty history page.
func ObservePage() { inc(HistoryPages) }

// ObserveFetchError counts one failed history request.
func ObserveFetchError() { inc(FetchErrors) }

// ObserveResolutionError counts one unresolved target.
func ObserveResolutionError() { inc(ResolutionErrors) }

// ObserveLiveDropped counts one dropped live message.
func ObserveLiveDropped() { inc(LiveDropped) }

// ObserveMirrorError counts one failed mirror publish.
func ObserveMirrorError() { inc(MirrorErrors) }

// SetTrackedChannels records the number of live routes.
func SetTrackedChannels(n int) {
	if TrackedChannelsGauge != nil {
		TrackedChannelsGauge.Set(float64(n))
	}
}

// SetTailActive sets gauge to 1 if live delivery is on else 0.
func SetTailActive(active bool) {
	if TailActiveGauge == nil {
		return
	}
	if active {
		TailActiveGauge.Set(1)
	} else {
		TailActiveGauge.Set(0)
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
