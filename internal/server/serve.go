package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Serve runs the API on cfg.Address until ctx is done, then stops accepting
// requests and cancels the runs still in progress.
func Serve(ctx context.Context, logger *zap.Logger, cfg *Config, version string) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewHandler(logger, Options{
		MaxUploadSize: cfg.UploadSizeBytes(),
		EventBuffer:   cfg.EventBuffer,
		DataDir:       cfg.DataDir,
		Version:       version,
	})
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("server shutdown error", zap.String("op", "server.Serve"), zap.Error(err))
		}
		handler.Shutdown()
	}()

	logger.Info("server started",
		zap.String("op", "server.Serve"),
		zap.String("address", cfg.Address),
		zap.String("version", version),
	)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	<-stopped
	return nil
}
