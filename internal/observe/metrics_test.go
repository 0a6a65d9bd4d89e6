package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumPointWith returns the int64 sum data point carrying the given attribute,
// or nil.
func sumPointWith(met *metricdata.Metrics, key, value string) *metricdata.DataPoint[int64] {
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		return nil
	}
	for i, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return &sum.DataPoints[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordCacheLookup(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookup(ctx, "base", true)
	m.RecordCacheLookup(ctx, "base", true)
	m.RecordCacheLookup(ctx, "context", false)

	rm := collect(t, reader)
	met := findMetric(rm, "vimdeepl.cache.lookups")
	if met == nil {
		t.Fatal("metric not found")
	}
	if dp := sumPointWith(met, "outcome", "hit"); dp == nil || dp.Value != 2 {
		t.Errorf("hit counter = %+v, want value 2", dp)
	}
	if dp := sumPointWith(met, "outcome", "miss"); dp == nil || dp.Value != 1 {
		t.Errorf("miss counter = %+v, want value 1", dp)
	}
}

func TestRecordProviderCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderCall(ctx, "deepl", "translate", 120*time.Millisecond, nil)
	m.RecordProviderCall(ctx, "deepl", "translate", 80*time.Millisecond, nil)
	m.RecordProviderCall(ctx, "deepl", "translate", 5*time.Second, errors.New("timeout"))

	rm := collect(t, reader)

	reqs := findMetric(rm, "vimdeepl.provider.requests")
	if reqs == nil {
		t.Fatal("request counter not found")
	}
	if dp := sumPointWith(reqs, "status", "ok"); dp == nil || dp.Value != 2 {
		t.Errorf("ok counter = %+v, want value 2", dp)
	}
	if dp := sumPointWith(reqs, "status", "error"); dp == nil || dp.Value != 1 {
		t.Errorf("error counter = %+v, want value 1", dp)
	}

	dur := findMetric(rm, "vimdeepl.provider.duration")
	if dur == nil {
		t.Fatal("duration histogram not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 3 {
		t.Errorf("sample count = %d, want 3", got)
	}
}

func TestRecordTrainerCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTrainerPick(ctx, "srs_due")
	m.RecordTrainerPick(ctx, "srs_due")
	m.RecordTrainerPick(ctx, "fallback")
	m.RecordTrainerReview(ctx, 5)
	m.RecordTrainerReview(ctx, 2)

	rm := collect(t, reader)

	picks := findMetric(rm, "vimdeepl.trainer.picks")
	if picks == nil {
		t.Fatal("picks counter not found")
	}
	if dp := sumPointWith(picks, "mode", "srs_due"); dp == nil || dp.Value != 2 {
		t.Errorf("srs_due picks = %+v, want value 2", dp)
	}

	reviews := findMetric(rm, "vimdeepl.trainer.reviews")
	if reviews == nil {
		t.Fatal("reviews counter not found")
	}
	if dp := sumPointWith(reviews, "grade", "5"); dp == nil || dp.Value != 1 {
		t.Errorf("grade-5 reviews = %+v, want value 1", dp)
	}
}

func TestRecordAudioCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAudioPlayback(ctx, "played")
	m.RecordAudioPlayback(ctx, "cancelled")
	m.RecordAudioDownload(ctx, "ok")

	rm := collect(t, reader)

	plays := findMetric(rm, "vimdeepl.audio.playbacks")
	if plays == nil {
		t.Fatal("playback counter not found")
	}
	if dp := sumPointWith(plays, "status", "played"); dp == nil || dp.Value != 1 {
		t.Errorf("played counter = %+v, want value 1", dp)
	}

	downloads := findMetric(rm, "vimdeepl.audio.downloads")
	if downloads == nil {
		t.Fatal("download counter not found")
	}
	if dp := sumPointWith(downloads, "status", "ok"); dp == nil || dp.Value != 1 {
		t.Errorf("download counter = %+v, want value 1", dp)
	}
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// Must not panic.
	m.RecordCacheLookup(ctx, "base", true)
	m.RecordProviderCall(ctx, "deepl", "translate", time.Second, nil)
	m.RecordTrainerPick(ctx, "srs_due")
	m.RecordTrainerReview(ctx, 3)
	m.RecordAudioPlayback(ctx, "played")
	m.RecordAudioDownload(ctx, "error")
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			Attr("method", "GET"),
			Attr("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "vimdeepl.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
