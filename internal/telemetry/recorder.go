package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/deixis/childproc"

type instruments struct {
	runs      metric.Int64Counter
	overflows metric.Int64Counter
	duration  metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     instruments
)

// initInstruments registers the instruments against the current global
// MeterProvider. Without Init that is the no-op provider.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterName)
		inst.runs, _ = m.Int64Counter("childproc.runs.total",
			metric.WithDescription("Total finished child processes"),
		)
		inst.overflows, _ = m.Int64Counter("childproc.output.overflows.total",
			metric.WithDescription("Runs killed for exceeding the output limit"),
		)
		inst.duration, _ = m.Float64Histogram("childproc.run.duration_ms",
			metric.WithDescription("Wall time from start to settlement"),
			metric.WithUnit("ms"),
		)
	})
}

// RecordRun records one finished run.
func RecordRun(ctx context.Context, kind, outcome string, d time.Duration, overflow bool) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)
	inst.runs.Add(ctx, 1, attrs)
	inst.duration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
	if overflow {
		inst.overflows.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
