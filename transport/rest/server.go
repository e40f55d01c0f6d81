package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 5 * time.Second

// Handler - returns the HTTP routes.
func Handler(logger *slog.Logger, baseURL string) http.Handler {
	join := NewJoinHandler(logger, baseURL)

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", ping(logger))
	mux.HandleFunc("/qr", join.QRHandler)
	mux.HandleFunc("/", join.JoinHandler)

	return mux
}

// ping - health check for whatever fronts the join links.
func ping(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		if _, err := io.WriteString(w, "pong"); err != nil {
			logger.Error("failed to write ping response", "error", err)
		}
	}
}

// Start - serves until ctx is done.
func Start(ctx context.Context, logger *slog.Logger, port, baseURL string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      Handler(logger, baseURL),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
