// Package observe provides application-wide observability primitives for
// vim-deepl: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vim-deepl metrics.
const meterName = "github.com/Romariozh/vim-deepl"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation. A nil *Metrics is valid and records nothing, so
// services can treat observability as optional.
type Metrics struct {
	// --- Latency histograms ---

	// ProviderDuration tracks upstream API call latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// CacheLookups counts translation/dictionary cache probes. Use with attributes:
	//   attribute.String("tier", "base"|"context"|"dictionary"),
	//   attribute.String("outcome", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// ProviderRequests counts upstream API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// TrainerPicks counts training-item selections by pool.
	TrainerPicks metric.Int64Counter

	// TrainerReviews counts graded reviews. Use with attribute:
	//   attribute.String("grade", "0".."5")
	TrainerReviews metric.Int64Counter

	// AudioPlaybacks counts pronunciation playback outcomes. Use with attribute:
	//   attribute.String("status", "played"|"cancelled"|"error"|"skipped")
	AudioPlaybacks metric.Int64Counter

	// AudioDownloads counts pronunciation file fetches by status.
	AudioDownloads metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// upstream API round-trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ProviderDuration, err = m.Float64Histogram("vimdeepl.provider.duration",
		metric.WithDescription("Latency of upstream provider calls by provider and kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vimdeepl.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CacheLookups, err = m.Int64Counter("vimdeepl.cache.lookups",
		metric.WithDescription("Cache probes by tier and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("vimdeepl.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.TrainerPicks, err = m.Int64Counter("vimdeepl.trainer.picks",
		metric.WithDescription("Training-item selections by candidate pool."),
	); err != nil {
		return nil, err
	}
	if met.TrainerReviews, err = m.Int64Counter("vimdeepl.trainer.reviews",
		metric.WithDescription("Graded trainer reviews by grade."),
	); err != nil {
		return nil, err
	}
	if met.AudioPlaybacks, err = m.Int64Counter("vimdeepl.audio.playbacks",
		metric.WithDescription("Pronunciation playback outcomes."),
	); err != nil {
		return nil, err
	}
	if met.AudioDownloads, err = m.Int64Counter("vimdeepl.audio.downloads",
		metric.WithDescription("Pronunciation file downloads by status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCacheLookup records one cache probe. tier is "base", "context", or
// "dictionary".
func (m *Metrics) RecordCacheLookup(ctx context.Context, tier string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordProviderCall records one upstream round-trip: the request counter
// with its status plus the latency histogram.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
	m.ProviderDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTrainerPick records one training-item selection by pool name.
func (m *Metrics) RecordTrainerPick(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.TrainerPicks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordTrainerReview records one graded review.
func (m *Metrics) RecordTrainerReview(ctx context.Context, grade int) {
	if m == nil {
		return
	}
	m.TrainerReviews.Add(ctx, 1,
		metric.WithAttributes(attribute.String("grade", strconv.Itoa(grade))),
	)
}

// RecordAudioPlayback records one playback outcome.
func (m *Metrics) RecordAudioPlayback(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.AudioPlaybacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordAudioDownload records one pronunciation file fetch.
func (m *Metrics) RecordAudioDownload(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.AudioDownloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
