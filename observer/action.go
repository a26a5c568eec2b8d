package observer

import (
	"context"
	"time"

	colloquy "github.com/colloquy-dev/colloquy"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WrapAction returns an instrumented action function. Register the wrapped
// function in the engine's ActionRegistry to trace and meter every
// invocation.
func WrapAction(name string, fn colloquy.ActionFunc, inst *Instruments) colloquy.ActionFunc {
	return func(ctx context.Context, slots map[string]any) (map[string]any, error) {
		ctx, span := inst.Tracer.Start(ctx, "action.execute", trace.WithAttributes(
			AttrActionName.String(name),
		))
		defer span.End()
		start := time.Now()

		outputs, err := fn(ctx, slots)

		durationMs := float64(time.Since(start).Milliseconds())
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(AttrActionStatus.String(status))

		inst.ActionExecutions.Add(ctx, 1, metric.WithAttributes(
			AttrActionName.String(name),
			attribute.String("status", status),
		))
		inst.ActionDuration.Record(ctx, durationMs, metric.WithAttributes(
			AttrActionName.String(name),
		))

		return outputs, err
	}
}
