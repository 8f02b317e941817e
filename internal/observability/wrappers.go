package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/kinga/internal/sandbox"
)

// InstrumentedRunner wraps a sandbox.Runner with metrics and tracing.
// Disabled components are nil and cost a single nil check per execution.
type InstrumentedRunner struct {
	inner   sandbox.Runner
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedRunner wraps a runner with observability.
func NewInstrumentedRunner(inner sandbox.Runner, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedRunner {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedRunner{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

// RunCommand delegates to the wrapped runner, recording a span, the
// execution outcome, and the active-process gauge.
func (r *InstrumentedRunner) RunCommand(ctx context.Context, req sandbox.Request, sink sandbox.Sink) (*sandbox.Record, error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "sandbox.run_command",
			trace.WithAttributes(
				attribute.String("sandbox.command", req.Command),
				attribute.Int("sandbox.args", len(req.Args)),
				attribute.Bool("sandbox.allow_unsafe", req.AllowUnsafe),
			))
		defer span.End()
	}

	if r.metrics != nil {
		r.metrics.ActiveProcesses.Inc()
	}
	start := time.Now()
	rec, err := r.inner.RunCommand(ctx, req, sink)
	duration := time.Since(start).Seconds()
	if r.metrics != nil {
		r.metrics.ActiveProcesses.Dec()
	}

	if err != nil {
		if r.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if r.metrics != nil {
			var policyErr *sandbox.PolicyError
			var capErr *sandbox.CapacityError
			var spawnErr *sandbox.SpawnError
			switch {
			case errors.As(err, &policyErr):
				r.metrics.PolicyRejectionsTotal.WithLabelValues(policyErr.Rule).Inc()
			case errors.As(err, &capErr):
				r.metrics.CapacityRejectionsTotal.Inc()
			case errors.As(err, &spawnErr):
				r.metrics.SpawnFailuresTotal.Inc()
			}
		}
		return rec, err
	}

	if r.metrics != nil {
		r.metrics.ExecutionsTotal.WithLabelValues(recordStatus(rec)).Inc()
		r.metrics.ExecutionDuration.Observe(duration)
		r.metrics.OutputBytes.Observe(float64(len(rec.Stdout) + len(rec.Stderr)))
	}
	if r.tracer != nil {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(
			attribute.Int("sandbox.exit_code", rec.ExitCode),
			attribute.String("sandbox.status", recordStatus(rec)),
		)
	}
	return rec, nil
}

func recordStatus(rec *sandbox.Record) string {
	switch {
	case rec.TimedOut:
		return StatusTimedOut
	case rec.Killed:
		return StatusKilled
	case rec.Success:
		return StatusSuccess
	default:
		return StatusFailed
	}
}
