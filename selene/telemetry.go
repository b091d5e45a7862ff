package selene

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jackTabsCode/selene-language-server/selene"

// instruments are the span source and metrics of one Runner.
type instruments struct {
	tracer        trace.Tracer
	lintLatency   metric.Float64Histogram
	lintTotal     metric.Int64Counter
	findingsFound metric.Int64Histogram
}

// newInstruments builds instruments from the given providers, falling back
// to the otel globals for nil ones.
func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	ins := &instruments{tracer: tp.Tracer(instrumentationName)}

	var err error
	ins.lintLatency, err = meter.Float64Histogram(
		"selene_lint_duration_seconds",
		metric.WithDescription("Duration of selene invocations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ins.lintTotal, err = meter.Int64Counter(
		"selene_lint_total",
		metric.WithDescription("Total number of selene invocations"),
	)
	if err != nil {
		return nil, err
	}

	ins.findingsFound, err = meter.Int64Histogram(
		"selene_findings_found",
		metric.WithDescription("Number of findings per selene invocation"),
	)
	if err != nil {
		return nil, err
	}
	return ins, nil
}

// noopInstruments is used when the meter provider refuses an instrument.
func noopInstruments(tp trace.TracerProvider) *instruments {
	ins, _ := newInstruments(tp, metricnoop.NewMeterProvider())
	return ins
}

func (ins *instruments) startLintSpan(ctx context.Context, delivery Delivery, size int) (context.Context, trace.Span) {
	return ins.tracer.Start(ctx, "selene.Lint",
		trace.WithAttributes(
			attribute.String("selene.delivery", string(delivery)),
			attribute.Int("selene.text_bytes", size),
		),
	)
}

func setLintSpanResult(span trace.Span, findings []Finding, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("selene.findings", len(findings)))
}

func (ins *instruments) recordLintMetrics(ctx context.Context, delivery Delivery, elapsed time.Duration, findings []Finding, err error) {
	attrs := metric.WithAttributes(
		attribute.String("delivery", string(delivery)),
		attribute.Bool("success", err == nil),
	)
	ins.lintLatency.Record(ctx, elapsed.Seconds(), attrs)
	ins.lintTotal.Add(ctx, 1, attrs)

	if err == nil {
		ins.findingsFound.Record(ctx, int64(len(findings)), metric.WithAttributes(
			attribute.String("delivery", string(delivery)),
		))
	}
}
