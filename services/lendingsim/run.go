// Package lendingsim plays scripted lending scenarios against a local bank
// and serves the outcome over HTTP.
package lendingsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"tokenlending/config"
	"tokenlending/core/events"
	"tokenlending/native/lending/bootstrap"
	"tokenlending/observability/logging"
	telemetry "tokenlending/observability/otel"
	"tokenlending/runtime"
	"tokenlending/storage"
)

const serviceName = "lending-sim"

type Options struct {
	ConfigPath   string
	ScenarioPath string
	// InMemory keeps the ledger in memory instead of under DataDir.
	InMemory bool
	// Serve keeps the HTTP API up after the run until ctx is cancelled.
	Serve bool
	// Output receives the JSON report; nil discards it.
	Output io.Writer
}

// Run loads the configuration and scenario, plays it and reports the result.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Service:     serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		File: logging.FileOptions{
			Path:       cfg.LogFile,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
	})
	if err != nil {
		return err
	}

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		tcfg := cfg.TelemetryConfig(serviceName)
		shutdown, err := telemetry.Init(ctx, tcfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		logger.Info("telemetry enabled",
			slog.String("endpoint", tcfg.Endpoint),
			slog.Bool("traces", tcfg.Traces),
			slog.Bool("metrics", tcfg.Metrics),
			logging.Headers("headers", tcfg.Headers))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", slog.Any("error", err))
			}
		}()
	}

	scenario, err := LoadScenario(opts.ScenarioPath)
	if err != nil {
		return err
	}

	var db storage.Database
	if opts.InMemory {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		db = ldb
	}
	defer db.Close()

	env, err := NewEnv(cfg, db, logger)
	if err != nil {
		return err
	}

	store := &ReportStore{}
	var server *http.Server
	serverErr := make(chan error, 1)
	if cfg.MetricsAddress != "" {
		server = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           NewRouter(store, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server listening", slog.String("address", cfg.MetricsAddress))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
			close(serverErr)
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", slog.Any("error", err))
			}
		}()
	}

	report, runErr := NewRunner(env, logger).Run(ctx, scenario)
	store.Set(report)
	if opts.Output != nil {
		enc := json.NewEncoder(opts.Output)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("scenario complete",
		slog.String("run_id", report.RunID),
		slog.Int("steps", len(report.Steps)),
		slog.Uint64("final_slot", report.FinalSlot))

	if !opts.Serve || server == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

// NewEnv opens a bank over db with the programs named by cfg registered and
// the lending program wired to cfg's pauses and logger.
func NewEnv(cfg *config.Config, db storage.Database, logger *slog.Logger) (*bootstrap.Env, error) {
	if len(cfg.Programs.Switchboard) == 0 {
		return nil, errors.New("config: at least one switchboard program id is required")
	}
	bank, err := runtime.NewBank(db, runtime.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open bank: %w", err)
	}
	env := bootstrap.New(bank, bootstrap.Programs{
		Token:       cfg.Programs.Token,
		Lending:     cfg.Programs.Lending,
		Pyth:        cfg.Programs.Pyth,
		Switchboard: cfg.Programs.Switchboard[0],
		NullOracle:  cfg.Programs.NullOracle,
	}, cfg.OracleConfig())
	env.Lending.SetPauses(cfg.Pauses)
	env.Lending.SetLogger(logger)
	env.Lending.SetEmitter(events.LogEmitter{Logger: logger})
	return env, nil
}
