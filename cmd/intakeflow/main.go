package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"intakeflow/internal/api"
	"intakeflow/internal/compiler"
	"intakeflow/internal/library"
	"intakeflow/internal/logging"
	"intakeflow/internal/logic"
	"intakeflow/internal/scheduler"
	"intakeflow/internal/store"
	"intakeflow/pkg/schema"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	registry, err := logic.NewRegistry()
	if err != nil {
		return err
	}
	check, err := compiler.NewSelfCheck()
	if err != nil {
		return err
	}
	comp := compiler.New(library.NewStoreProvider(st))
	service := compiler.NewService(comp, check, logger, func(result compiler.Result) {
		if result.Err != nil {
			return
		}
		if err := st.PutRuntimeSchema(ctx, result.WorkflowID, result.Schema); err != nil {
			logger.Error("failed to cache runtime schema",
				slog.Int64("workflow_id", result.WorkflowID),
				slog.String("error", err.Error()))
		}
	})

	warmSchemaCache(ctx, st, service, logger)

	sched, err := scheduler.NewScheduler(st, service, cfg.RecompileSchedule, logger)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	apiServer := api.NewServer(api.Deps{
		Store:    st,
		Compiler: service,
		Logic:    registry,
		Logger:   logger,
	})
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	service.Wait()
	return nil
}

// warmSchemaCache schedules a compile for every active workflow so their
// runtime schemas are servable before the first cron recompile. Requests
// superseded by interactive saves are discarded by the compile service.
func warmSchemaCache(ctx context.Context, st store.Store, service *compiler.Service, logger *slog.Logger) {
	summaries, err := st.ListWorkflows(ctx, store.WorkflowFilter{Status: schema.WorkflowStatusActive})
	if err != nil {
		logger.Warn("schema cache warm-up skipped", slog.String("error", err.Error()))
		return
	}
	for _, summary := range summaries {
		wf, err := st.GetWorkflow(ctx, summary.ID)
		if err != nil {
			logger.Warn("schema cache warm-up skipped workflow",
				slog.Int64("workflow_id", summary.ID),
				slog.String("error", err.Error()))
			continue
		}
		service.Request(ctx, wf)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
