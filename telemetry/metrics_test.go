package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := MessagesLogged
	Init()
	if MessagesLogged != first {
		t.Fatal("Init re-created metrics on second call")
	}
	if HistoryPages == nil || FetchErrors == nil || DrainDuration == nil || TrackedChannelsGauge == nil {
		t.Fatal("metrics not initialized")
	}
}

func TestObserveMessageByPhase(t *testing.T) {
	Init()
	beforeHistory := promtest.ToFloat64(MessagesLogged.WithLabelValues("history"))
	beforeLive := promtest.ToFloat64(MessagesLogged.WithLabelValues("live"))

	ObserveMessage("history")
	ObserveMessage("history")
	ObserveMessage("live")

	if got := promtest.ToFloat64(MessagesLogged.WithLabelValues("history")) - beforeHistory; got != 2 {
		t.Errorf("history delta = %v, want 2", got)
	}
	if got := promtest.ToFloat64(MessagesLogged.WithLabelValues("live")) - beforeLive; got != 1 {
		t.Errorf("live delta = %v, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	Init()
	tests := []struct {
		name    string
		counter prometheus.Counter
		observe func()
	}{
		{"pages", HistoryPages, ObservePage},
		{"fetch_errors", FetchErrors, ObserveFetchError},
		{"resolution_errors", ResolutionErrors, ObserveResolutionError},
		{"live_dropped", LiveDropped, ObserveLiveDropped},
		{"mirror_errors", MirrorErrors, ObserveMirrorError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := promtest.ToFloat64(tt.counter)
			tt.observe()
			if got := promtest.ToFloat64(tt.counter) - before; got != 1 {
				t.Errorf("delta = %v, want 1", got)
			}
		})
	}
}

func TestGauges(t *testing.T) {
	Init()
	SetTrackedChannels(3)
	if got := promtest.ToFloat64(TrackedChannelsGauge); got != 3 {
		t.Errorf("tracked = %v, want 3", got)
	}
	SetTailActive(true)
	if got := promtest.ToFloat64(TailActiveGauge); got != 1 {
		t.Errorf("tail active = %v, want 1", got)
	}
	SetTailActive(false)
	if got := promtest.ToFloat64(TailActiveGauge); got != 0 {
		t.Errorf("tail active = %v, want 0", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() != 1 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "run-1")
	if got := GetCorrelation(ctx); got != "run-1" {
		t.Errorf("GetCorrelation = %q, want run-1", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("discord-archiver", "test", "run-1")
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	shutdown()
	if tracerProvider != nil {
		t.Error("tracer provider installed without endpoint")
	}

	_, span := StartSpan(context.Background(), "test", "noop")
	RecordError(span, nil)
	SetSpanSuccess(span)
	span.End()
}

func TestSamplerFromEnv(t *testing.T) {
	for _, v := range []string{"", "0.5", "bogus", "2"} {
		t.Setenv("ARCHIVER_TRACE_SAMPLE_RATIO", v)
		if samplerFromEnv() == nil {
			t.Errorf("samplerFromEnv(%q) = nil", v)
		}
	}
}
