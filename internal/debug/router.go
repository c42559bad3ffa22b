// Package debug serves an optional local listener with health, prometheus
// metrics and a snapshot of the client's state.
package debug

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/insider-wallet/internal/api/httpx"
	"github.com/baharkarakas/insider-wallet/internal/config"
	"github.com/baharkarakas/insider-wallet/internal/metrics"
	"github.com/baharkarakas/insider-wallet/internal/middleware"
)

// State is what /state reports about the running client.
type State struct {
	Page        string `json:"page"`
	User        string `json:"user,omitempty"`
	Filter      string `json:"filter,omitempty"`
	Search      string `json:"search,omitempty"`
	Scanner     string `json:"scanner,omitempty"`
	ScanOpen    bool   `json:"scan_open"`
	PaymentBusy bool   `json:"payment_busy"`
}

type StateFunc func() State

func NewRouter(cfg config.Config, state StateFunc, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(log), middleware.HTTPMetrics, middleware.RateLimit(20))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.DebugOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, state())
	})
	return r
}

// Serve runs the listener until ctx is done. An empty DebugAddr disables it.
func Serve(ctx context.Context, cfg config.Config, h http.Handler, log *slog.Logger) error {
	if cfg.DebugAddr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              cfg.DebugAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("debug listener starting", "addr", cfg.DebugAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
