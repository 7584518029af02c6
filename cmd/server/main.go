package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sustainplate/m/internal/api"
	"sustainplate/m/internal/config"
	"sustainplate/m/internal/database"
	"sustainplate/m/internal/grocery"
	"sustainplate/m/internal/llm"
	"sustainplate/m/internal/logger"
	"sustainplate/m/internal/migrations"
	"sustainplate/m/internal/retry"
	"sustainplate/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run wires the service and blocks until a signal arrives or the listener fails.
// Cleanup is deferred here so it also runs on the failure path.
func run() error {
	cfg := config.Load()
	if err := logger.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect to database %q: %w", cfg.DatabaseDSN, err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return err
	}

	generator := llm.New(llm.Options{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
		Retry: retry.Policy{
			MaxAttempts:  cfg.LLMMaxAttempts,
			InitialDelay: cfg.LLMInitialDelay,
		},
	})
	store := grocery.NewStore(db, generator)

	if cfg.SeedCSV != "" {
		seed.LoadGroceries(context.Background(), store, cfg.SeedCSV)
	}

	handler := api.New(store, generator, cfg.AllowedOrigins)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("SustainPlate server starting", zap.String("addr", srv.Addr))
	if err := serve(ctx, srv, 15*time.Second); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// serve runs srv until ctx is done, then shuts it down gracefully.
// A listener failure is returned to the caller instead of exiting.
func serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
