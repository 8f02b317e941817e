package observability

import (
	"testing"

	"github.com/jkaninda/kinga/internal/config"
)

func TestNewTracerSetup_Disabled(t *testing.T) {
	ts, err := NewTracerSetup(nil)
	if err != nil || ts != nil {
		t.Fatalf("NewTracerSetup(nil) = %v, %v, want nil, nil", ts, err)
	}

	ts, err = NewTracerSetup(&config.TracingConfig{Enabled: false})
	if err != nil || ts != nil {
		t.Fatalf("disabled config = %v, %v, want nil, nil", ts, err)
	}
}

func TestNewTracerSetup_UnknownProtocol(t *testing.T) {
	_, err := NewTracerSetup(&config.TracingConfig{Enabled: true, Protocol: "thrift"})
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}

func TestTracerSetup_NilTracerIsNoop(t *testing.T) {
	var ts *TracerSetup
	if ts.Tracer() == nil {
		t.Error("nil setup must still hand out a usable tracer")
	}
	if err := ts.Shutdown(t.Context()); err != nil {
		t.Errorf("nil setup Shutdown: %v", err)
	}
}

func TestSampleRate_Clamping(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 1.0},
		{-0.5, 1.0},
		{1.5, 1.0},
		{0.25, 0.25},
		{1, 1},
	}
	for _, tt := range tests {
		if got := sampleRate(&config.TracingConfig{SampleRate: tt.in}); got != tt.want {
			t.Errorf("sampleRate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
