package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/kinga/internal/config"
	"github.com/jkaninda/kinga/internal/observability"
	"github.com/jkaninda/kinga/internal/sandbox"
)

// SharedComponents holds the initialized subsystems every command requires.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config  *config.Config
	Logger  *slog.Logger
	Obs     *observability.Observability
	Sandbox *sandbox.Sandbox
	Runner  sandbox.Runner // Sandbox, wrapped with observability when enabled.

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig resolves the config: explicit --config flag takes priority over
// the KINGA_CONFIG env var; with neither, built-in defaults apply.
func loadConfig(flagPath string, flagChanged bool) (*config.Config, error) {
	path := flagPath
	if !flagChanged {
		path = goutils.Env("KINGA_CONFIG", flagPath)
	}
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// initShared performs the common initialization shared between commands.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Observability.
	obs, err := observability.New(cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// Sandbox.
	sbx := sandbox.New(cfg.Sandbox, logger)
	logger.Debug("sandbox initialized",
		slog.Int("max_concurrent", cfg.Sandbox.MaxConcurrent),
		slog.Int("timeout_seconds", cfg.Sandbox.TimeoutSeconds),
		slog.Int("max_output_bytes", cfg.Sandbox.MaxOutputBytes),
	)
	sc.Sandbox = sbx

	// Wrap when either metrics or tracing is on; the decorator handles a nil
	// half itself.
	var runner sandbox.Runner = sbx
	if obs != nil && (obs.Metrics != nil || obs.Tracer != nil) {
		runner = observability.NewInstrumentedRunner(sbx, obs.Metrics, obs.TracerOrNil())
	}
	sc.Runner = runner

	return sc, nil
}
