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

// ObservedNLU wraps a colloquy.NLU with OTEL instrumentation.
type ObservedNLU struct {
	inner colloquy.NLU
	inst  *Instruments
}

var _ colloquy.NLU = (*ObservedNLU)(nil)

// WrapNLU returns an instrumented NLU provider.
func WrapNLU(inner colloquy.NLU, inst *Instruments) *ObservedNLU {
	return &ObservedNLU{inner: inner, inst: inst}
}

func (o *ObservedNLU) Interpret(ctx context.Context, req colloquy.NLURequest) (colloquy.Interpretation, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "nlu.interpret", trace.WithAttributes(
		AttrFlowName.String(req.ActiveFlow),
	))
	defer span.End()
	start := time.Now()

	interp, err := o.inner.Interpret(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			AttrMessageType.String(string(interp.MessageType)),
			AttrNLUConfidence.Float64(interp.Confidence),
			AttrNLUSlotCount.Int(len(interp.Slots)),
		)
	}

	o.inst.NLURequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("message_type", string(interp.MessageType)),
	))
	o.inst.NLUDuration.Record(ctx, durationMs)

	return interp, err
}
