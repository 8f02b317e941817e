package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/jkaninda/kinga/internal/config"
	"github.com/jkaninda/kinga/internal/sandbox"
)

// --- No-op Path ---

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil Observability for nil config")
	}
}

func TestNew_AllDisabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs == nil {
		t.Fatal("expected non-nil Observability")
	}
	if obs.Metrics != nil {
		t.Error("metrics should be nil when not enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracer should be nil when not enabled")
	}
}

func TestObservability_ShutdownNil(t *testing.T) {
	// Should not panic.
	var obs *Observability
	obs.Shutdown(context.Background())
}

func TestTracerOrNil_Nil(t *testing.T) {
	var obs *Observability
	if obs.TracerOrNil() != nil {
		t.Error("TracerOrNil on nil Observability should return nil")
	}
}

// --- Instrumented Runner ---

// fakeRunner returns a canned record or error.
type fakeRunner struct {
	rec *sandbox.Record
	err error
}

func (f *fakeRunner) RunCommand(_ context.Context, _ sandbox.Request, _ sandbox.Sink) (*sandbox.Record, error) {
	return f.rec, f.err
}

func counterValue(t *testing.T, m *MetricsCollector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !labelsMatch(metric, labels) {
				continue
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(metric.GetLabel()))
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestInstrumentedRunner_RecordsSuccess(t *testing.T) {
	m := NewMetricsCollector()
	inner := &fakeRunner{rec: &sandbox.Record{Success: true, ExitCode: 0, Stdout: "ok\n", Duration: 5 * time.Millisecond}}
	r := NewInstrumentedRunner(inner, m, nil)

	if _, err := r.RunCommand(context.Background(), sandbox.Request{Command: "echo"}, nil); err != nil {
		t.Fatalf("RunCommand: %v", err)
	}

	got := counterValue(t, m, "kinga_sandbox_executions_total", map[string]string{"status": StatusSuccess})
	if got != 1 {
		t.Errorf("executions_total{status=success} = %v, want 1", got)
	}
}

func TestInstrumentedRunner_RecordsOutcomeStatuses(t *testing.T) {
	tests := []struct {
		name string
		rec  *sandbox.Record
		want string
	}{
		{"failed", &sandbox.Record{ExitCode: 1}, StatusFailed},
		{"killed", &sandbox.Record{Killed: true}, StatusKilled},
		{"timed out", &sandbox.Record{Killed: true, TimedOut: true}, StatusTimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetricsCollector()
			r := NewInstrumentedRunner(&fakeRunner{rec: tt.rec}, m, nil)
			if _, err := r.RunCommand(context.Background(), sandbox.Request{Command: "x"}, nil); err != nil {
				t.Fatalf("RunCommand: %v", err)
			}
			got := counterValue(t, m, "kinga_sandbox_executions_total", map[string]string{"status": tt.want})
			if got != 1 {
				t.Errorf("executions_total{status=%s} = %v, want 1", tt.want, got)
			}
		})
	}
}

func TestInstrumentedRunner_RecordsRejections(t *testing.T) {
	m := NewMetricsCollector()

	policy := NewInstrumentedRunner(&fakeRunner{err: &sandbox.PolicyError{Rule: "blocked_command", Reason: "nope"}}, m, nil)
	if _, err := policy.RunCommand(context.Background(), sandbox.Request{Command: "sudo"}, nil); err == nil {
		t.Fatal("expected policy error")
	}
	if got := counterValue(t, m, "kinga_sandbox_policy_rejections_total", map[string]string{"rule": "blocked_command"}); got != 1 {
		t.Errorf("policy_rejections_total = %v, want 1", got)
	}

	capped := NewInstrumentedRunner(&fakeRunner{err: &sandbox.CapacityError{Active: 2, Max: 2}}, m, nil)
	if _, err := capped.RunCommand(context.Background(), sandbox.Request{Command: "echo"}, nil); err == nil {
		t.Fatal("expected capacity error")
	}
	if got := counterValue(t, m, "kinga_sandbox_capacity_rejections_total", nil); got != 1 {
		t.Errorf("capacity_rejections_total = %v, want 1", got)
	}

	spawn := NewInstrumentedRunner(&fakeRunner{err: &sandbox.SpawnError{Command: "x", Err: errors.New("no such file")}}, m, nil)
	if _, err := spawn.RunCommand(context.Background(), sandbox.Request{Command: "x"}, nil); err == nil {
		t.Fatal("expected spawn error")
	}
	if got := counterValue(t, m, "kinga_sandbox_spawn_failures_total", nil); got != 1 {
		t.Errorf("spawn_failures_total = %v, want 1", got)
	}
}

func TestInstrumentedRunner_NilMetricsAndTracer(t *testing.T) {
	r := NewInstrumentedRunner(&fakeRunner{rec: &sandbox.Record{Success: true}}, nil, nil)
	if _, err := r.RunCommand(context.Background(), sandbox.Request{Command: "echo"}, nil); err != nil {
		t.Fatalf("RunCommand with observability disabled: %v", err)
	}
}
