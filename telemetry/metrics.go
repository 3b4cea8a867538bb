package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	meterName = "github.com/wolfeidau/docserve"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	requestsTotal      metric.Int64Counter
	responseBytesTotal metric.Int64Counter
	requestDuration    metric.Float64Histogram

	cacheRequestsTotal    metric.Int64Counter
	regenerationDuration  metric.Float64Histogram
	fingerprintWalkTime   metric.Float64Histogram
	fingerprintWalkFiles  metric.Int64Histogram
	imageFallbacksTotal   metric.Int64Counter
	derivativeWritesTotal metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "docserve"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(), // Use WithTLSCredentials for production
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(meterName)

	requestsTotal, err := meter.Int64Counter(
		"docserve_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	responseBytesTotal, err := meter.Int64Counter(
		"docserve_http_response_bytes_total",
		metric.WithDescription("Total bytes sent in HTTP responses"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	requestDuration, err := meter.Float64Histogram(
		"docserve_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return err
	}

	cacheRequestsTotal, err := meter.Int64Counter(
		"docserve_cache_requests_total",
		metric.WithDescription("Total cache lookups by cache kind and result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	regenerationDuration, err := meter.Float64Histogram(
		"docserve_cache_regeneration_duration_seconds",
		metric.WithDescription("Duration of cache entry regeneration by cache kind"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return err
	}

	fingerprintWalkTime, err := meter.Float64Histogram(
		"docserve_fingerprint_walk_duration_seconds",
		metric.WithDescription("Duration of content-tree fingerprint walks"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return err
	}

	fingerprintWalkFiles, err := meter.Int64Histogram(
		"docserve_fingerprint_walk_files",
		metric.WithDescription("Number of qualifying files seen per fingerprint walk"),
		metric.WithUnit("{file}"),
		metric.WithExplicitBucketBoundaries(1, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)
	if err != nil {
		return err
	}

	imageFallbacksTotal, err := meter.Int64Counter(
		"docserve_image_fallbacks_total",
		metric.WithDescription("Total image requests answered with the original file"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	derivativeWritesTotal, err := meter.Int64Counter(
		"docserve_image_derivative_writes_total",
		metric.WithDescription("Total image derivative disk writes by outcome"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return err
	}

	globalMetrics = &Metrics{
		requestsTotal:         requestsTotal,
		responseBytesTotal:    responseBytesTotal,
		requestDuration:       requestDuration,
		cacheRequestsTotal:    cacheRequestsTotal,
		regenerationDuration:  regenerationDuration,
		fingerprintWalkTime:   fingerprintWalkTime,
		fingerprintWalkFiles:  fingerprintWalkFiles,
		imageFallbacksTotal:   imageFallbacksTotal,
		derivativeWritesTotal: derivativeWritesTotal,
		meterProvider:         mp,
		promHandler:           promHandler,
	}

	return nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordHTTP records HTTP request metrics.
// Call this from the logging middleware after the request completes.
// Endpoint and cache result are read from request tags set by handlers.
func RecordHTTP(ctx context.Context, r *http.Request, status int, bytesSent int64, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	tags := GetTags(r)

	endpoint := "unknown"
	cacheResult := string(ResultBypass)
	if tags != nil {
		if tags.Endpoint != "" {
			endpoint = tags.Endpoint
		}
		if tags.CacheResult != "" {
			cacheResult = string(tags.CacheResult)
		}
	}

	attrs := []attribute.KeyValue{
		attribute.String("endpoint", endpoint),
		attribute.String("status_class", StatusClass(status)),
		attribute.String("cache_result", cacheResult),
	}
	globalMetrics.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.responseBytesTotal.Add(ctx, bytesSent, metric.WithAttributes(attrs...))
	globalMetrics.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCacheRequest records one cache lookup outcome.
func RecordCacheRequest(ctx context.Context, kind CacheKind, result CacheResult) {
	if globalMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("cache", string(kind)),
		attribute.String("result", string(result)),
	}
	globalMetrics.cacheRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRegeneration records the duration of one cache entry regeneration.
func RecordRegeneration(ctx context.Context, kind CacheKind, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cache", string(kind)))
	globalMetrics.regenerationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFingerprintWalk records one content-tree fingerprint walk.
func RecordFingerprintWalk(ctx context.Context, duration time.Duration, files int) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.fingerprintWalkTime.Record(ctx, duration.Seconds())
	globalMetrics.fingerprintWalkFiles.Record(ctx, int64(files))
}

// RecordImageFallback records an image request that fell back to the
// original file. reason is one of "no_transform", "codec", "read", "decode".
func RecordImageFallback(ctx context.Context, reason string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.imageFallbacksTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordDerivativeWrite records a best-effort derivative disk write.
func RecordDerivativeWrite(ctx context.Context, ok bool) {
	if globalMetrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	globalMetrics.derivativeWritesTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
