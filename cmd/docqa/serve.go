package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
	chiTransport "github.com/kailas-cloud/docqa/internal/transport/chi"
	"github.com/kailas-cloud/docqa/internal/version"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()
			if port > 0 {
				a.cfg.HTTP.Port = port
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port override")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	stats := a.engine.Stats()
	logger.Info("Starting docqa API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_dir", cfg.Index.Dir),
		zap.String("index_state", stats.State.String()),
		zap.Int("chunks", stats.ChunkCount),
		zap.String("embedding_model", cfg.Provider.EmbeddingModel),
		zap.String("generation_model", cfg.Provider.GenerationModel),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	metrics.RegisterHTTPMetrics()

	server := chiTransport.NewServer(a.engine, a.extractor, a.health, chiTransport.Options{
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxUploadBytes:    int64(cfg.HTTP.MaxUploadMB) << 20,
		TempDir:           cfg.Upload.TempDir,
	}, logger).WithUsage(a.usage)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Success: false,
						Code:    "internal_error",
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
