package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTelemetry(t *testing.T) (*Telemetry, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	tel, err := NewWithProviders(tp, mp)
	require.NoError(t, err)
	return tel, recorder, reader
}

func sumCounter(t *testing.T, reader *sdkmetric.ManualReader, name string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				for _, kv := range dp.Attributes.ToSlice() {
					out[kv.Value.AsString()] += dp.Value
				}
			}
		}
	}
	return out
}

func TestTrackRecordsSpanAndErrors(t *testing.T) {
	tel, recorder, reader := newTestTelemetry(t)

	_, done := tel.Track(context.Background(), "commit", attribute.String("scope", "repo:acme/api"))
	done(nil)
	_, done = tel.Track(context.Background(), "commit")
	done(errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "commit", spans[0].Name())
	assert.Empty(t, spans[0].Events())
	assert.NotEmpty(t, spans[1].Events())

	assert.Equal(t, int64(2), sumCounter(t, reader, "continuum.operations.total")["commit"])
	assert.Equal(t, int64(1), sumCounter(t, reader, "continuum.errors.total")["commit"])
}

func TestRecordVerdictAndActivation(t *testing.T) {
	tel, _, reader := newTestTelemetry(t)
	ctx := context.Background()

	tel.RecordVerdict(ctx, "block")
	tel.RecordVerdict(ctx, "block")
	tel.RecordVerdict(ctx, "allow")
	tel.RecordActivation(ctx, "idempotent")

	verdicts := sumCounter(t, reader, "continuum.enforcement.verdicts")
	assert.Equal(t, int64(2), verdicts["block"])
	assert.Equal(t, int64(1), verdicts["allow"])
	assert.Equal(t, int64(1), sumCounter(t, reader, "continuum.activations")["idempotent"])
}

func TestNewDisabledIsNoop(t *testing.T) {
	tel, err := New(context.Background(), TelemetryConfig{})
	require.NoError(t, err)
	_, done := tel.Track(context.Background(), "inspect")
	done(nil)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "decision_id", "dec_1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"decision_id":"dec_1"`)

	_, err = NewLogger(LogConfig{Format: "xml"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}
