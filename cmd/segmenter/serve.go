package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/acs-segmenter/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(sigCtx, ctx, origins)
		},
	}
	cmd.Flags().StringSliceVar(&origins, "cors-origin", []string{"*"}, "Allowed CORS origins")
	return cmd
}

func runServer(ctx context.Context, cc *commandContext, origins []string) error {
	deps, logger, err := cc.dependencies(os.Stdout)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("failed to release dependencies", slog.String("error", err.Error()))
		}
	}()
	slog.SetDefault(logger)

	cfg := cc.cfg
	logger.Info("starting segmenter API",
		slog.Int("port", cfg.Port),
		slog.String("classifier", cfg.Classifier),
		slog.Duration("frame_duration", cfg.FrameDuration),
		slog.String("time_unit", cfg.TimeUnit),
		slog.String("job_store", cfg.JobStore),
		slog.Int("max_concurrent_files", cfg.MaxConcurrentFiles),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	handlers := server.NewHandlers(deps.Service, logger, server.WithAppMetadata(deps.Metadata))
	router := server.NewRouter(handlers, logger, server.Config{AllowedOrigins: origins})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // POST /annotate runs the classifier inline
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
