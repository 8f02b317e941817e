package main

import (
	"testing"

	"github.com/jkaninda/kinga/internal/config"
	"github.com/jkaninda/kinga/internal/observability"
	"github.com/jkaninda/kinga/internal/sandbox"
)

func testConfig(t *testing.T, obs *config.ObservabilityConfig) *config.Config {
	t.Helper()
	return &config.Config{
		Sandbox: config.SandboxConfig{
			MaxConcurrent:  2,
			TimeoutSeconds: 5,
			MaxOutputBytes: 1024,
			LogsDir:        t.TempDir(),
			WorkDir:        t.TempDir(),
		},
		Observability: obs,
	}
}

func TestInitShared_NoObservabilityUsesBareSandbox(t *testing.T) {
	sc, err := initShared(testConfig(t, nil), newLogger(false))
	if err != nil {
		t.Fatalf("initShared: %v", err)
	}
	defer sc.Cleanup()

	if _, ok := sc.Runner.(*sandbox.Sandbox); !ok {
		t.Errorf("Runner is %T, want bare *sandbox.Sandbox when observability is off", sc.Runner)
	}
}

func TestInitShared_MetricsOnlyWrapsRunner(t *testing.T) {
	sc, err := initShared(testConfig(t, &config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}), newLogger(false))
	if err != nil {
		t.Fatalf("initShared: %v", err)
	}
	defer sc.Cleanup()

	if _, ok := sc.Runner.(*observability.InstrumentedRunner); !ok {
		t.Errorf("Runner is %T, want *observability.InstrumentedRunner", sc.Runner)
	}
}

func TestInitShared_TracingOnlyWrapsRunner(t *testing.T) {
	sc, err := initShared(testConfig(t, &config.ObservabilityConfig{
		Tracing: &config.TracingConfig{Enabled: true, Insecure: true},
	}), newLogger(false))
	if err != nil {
		t.Fatalf("initShared: %v", err)
	}
	defer sc.Cleanup()

	// Tracing without metrics must still route executions through the
	// decorator, or no span is ever created.
	if _, ok := sc.Runner.(*observability.InstrumentedRunner); !ok {
		t.Errorf("Runner is %T, want *observability.InstrumentedRunner", sc.Runner)
	}
}

func TestLogsLimitDefault(t *testing.T) {
	f := logsCmd.Flags().Lookup("limit")
	if f == nil {
		t.Fatal("logs command must have a --limit flag")
	}
	if f.DefValue != "100" {
		t.Errorf("--limit default = %s, want 100", f.DefValue)
	}
}
