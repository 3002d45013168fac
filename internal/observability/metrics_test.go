package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/vidqa/ingestor/internal/ingesterrors"
	"github.com/vidqa/ingestor/internal/models"
)

func TestNewIngestMetrics_NilMeterDisablesMetrics(t *testing.T) {
	metrics, err := NewIngestMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)
}

func TestIngestMetrics_RecordsObservations(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	metrics, err := NewIngestMetrics(provider.Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.StageObserved(ctx, models.StatusEmbedding, 120*time.Millisecond, nil)
	metrics.StageObserved(ctx, models.StatusWriting, 50*time.Millisecond,
		ingesterrors.Transient(errors.New("index unavailable")))
	metrics.JobObserved(ctx, models.StatusCompleted, 3*time.Second, 3)
	metrics.RecordEnqueued(ctx, 1)
	metrics.SetQueueDepth(ctx, 7)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := make(map[string]bool)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}

	for _, want := range []string{
		MetricNameJobsTotal,
		MetricNameJobDuration,
		MetricNameStageDuration,
		MetricNameStageFailures,
		MetricNameChunksWritten,
		MetricNameQueueDepth,
		MetricNameMessagesEnqueued,
	} {
		assert.True(t, names[want], "expected metric %s to be exported", want)
	}
}

func TestNewMetricsServer(t *testing.T) {
	server, err := NewMetricsServer()
	require.NoError(t, err)
	require.NotNil(t, server.Provider)
	require.NotNil(t, server.Handler)

	assert.NoError(t, server.Shutdown(context.Background()))

	var nilServer *MetricsServer
	assert.NoError(t, nilServer.Shutdown(context.Background()))
}
