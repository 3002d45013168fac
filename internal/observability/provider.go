package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsServer pairs a MeterProvider with the Prometheus handler that
// exposes its instruments for scraping.
type MetricsServer struct {
	Provider *sdkmetric.MeterProvider
	Handler  http.Handler
}

// NewMetricsServer creates a pull-based metrics pipeline: otel instruments
// exported through a dedicated Prometheus registry.
func NewMetricsServer() (*MetricsServer, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("ingestor"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("merge resource: %w", err)
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	// Duration histograms record in seconds; second-based buckets keep
	// quantiles accurate for waits that range from milliseconds to the
	// transcription poll's minutes.
	durationBounds := []float64{0.005, 0.05, 0.25, 1, 5, 15, 60, 300, 900, 1800}
	view := sdkmetric.NewView(
		sdkmetric.Instrument{Name: "ingest_*_duration_seconds"},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: durationBounds}},
	)

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithView(view),
	)

	return &MetricsServer{
		Provider: provider,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Shutdown flushes and stops the meter provider. Safe to call on nil.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if s == nil || s.Provider == nil {
		return nil
	}

	if err := s.Provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}

	return nil
}
