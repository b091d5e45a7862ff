package selene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newObservedRunner(t *testing.T, path string) (*Runner, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	r := newRunner(t, Config{
		Path:           path,
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)),
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	})
	return r, rec, reader
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// lintTotals sums selene_lint_total per value of the success attribute.
func lintTotals(t *testing.T, reader *sdkmetric.ManualReader) map[bool]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[bool]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "selene_lint_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "selene_lint_total is %T", m.Data)
			for _, dp := range sum.DataPoints {
				success, _ := dp.Attributes.Value("success")
				totals[success.AsBool()] += dp.Value
			}
		}
	}
	return totals
}

func TestLintTelemetry(t *testing.T) {
	path, _ := fakeSelene(t, printRecords(unusedVariable, unusedVariable))
	r, rec, reader := newObservedRunner(t, path)

	_, err := r.Analyze(context.Background(), "local x = 1\n")
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "selene.Lint", spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)

	delivery, ok := spanAttr(spans[0], "selene.delivery")
	require.True(t, ok)
	assert.Equal(t, "stdin", delivery.AsString())
	found, ok := spanAttr(spans[0], "selene.findings")
	require.True(t, ok)
	assert.Equal(t, int64(2), found.AsInt64())

	assert.Equal(t, map[bool]int64{true: 1}, lintTotals(t, reader))
}

func TestLintTelemetryFailure(t *testing.T) {
	path, _ := fakeSelene(t, "echo 'config is invalid' >&2; exit 1")
	r, rec, reader := newObservedRunner(t, path)

	_, err := r.Analyze(context.Background(), "local x = 1\n")
	require.ErrorIs(t, err, ErrFailed)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	_, ok := spanAttr(spans[0], "selene.findings")
	assert.False(t, ok)

	assert.Equal(t, map[bool]int64{false: 1}, lintTotals(t, reader))
}
