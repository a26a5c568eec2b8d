// Package observer provides OTEL-based observability for the dialogue
// runtime.
//
// It exposes a colloquy.Tracer backed by OpenTelemetry plus instrumented
// wrappers for NLU providers and action functions that emit traces and
// metrics. Users export to any OTEL-compatible backend by setting standard
// OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/colloquy-dev/colloquy/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	// Counters
	Turns            metric.Int64Counter
	NLURequests      metric.Int64Counter
	ActionExecutions metric.Int64Counter
	FlowsCompleted   metric.Int64Counter

	// Histograms
	TurnDuration   metric.Float64Histogram
	NLUDuration    metric.Float64Histogram
	ActionDuration metric.Float64Histogram
}

// Init sets up OTEL trace and metric providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context, serviceName string) (*Instruments, func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = "colloquy"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)

	turns, err := meter.Int64Counter("dialogue.turns",
		metric.WithDescription("Processed dialogue turns"),
		metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}

	nluRequests, err := meter.Int64Counter("nlu.requests",
		metric.WithDescription("NLU interpretation request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	actionExecutions, err := meter.Int64Counter("action.executions",
		metric.WithDescription("Action execution count"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	flowsCompleted, err := meter.Int64Counter("flow.completions",
		metric.WithDescription("Flows reaching a terminal state"),
		metric.WithUnit("{flow}"))
	if err != nil {
		return nil, err
	}

	turnDuration, err := meter.Float64Histogram("dialogue.turn.duration",
		metric.WithDescription("End-to-end turn processing duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	nluDuration, err := meter.Float64Histogram("nlu.duration",
		metric.WithDescription("NLU interpretation duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	actionDuration, err := meter.Float64Histogram("action.duration",
		metric.WithDescription("Action execution duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:           tracer,
		Meter:            meter,
		Turns:            turns,
		NLURequests:      nluRequests,
		ActionExecutions: actionExecutions,
		FlowsCompleted:   flowsCompleted,
		TurnDuration:     turnDuration,
		NLUDuration:      nluDuration,
		ActionDuration:   actionDuration,
	}, nil
}
