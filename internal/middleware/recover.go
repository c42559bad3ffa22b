package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/baharkarakas/insider-wallet/internal/api/httpx"
	"github.com/baharkarakas/insider-wallet/internal/metrics"
)

// Recover turns a handler panic into a 500 envelope so one broken snapshot
// does not take the listener down. http.ErrAbortHandler keeps its meaning.
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				route := metrics.Route(r.URL.Path)
				metrics.DebugPanics.WithLabelValues(route).Inc()
				log.Error("debug handler panic",
					"err", rec,
					"route", route,
					"request_id", RequestIDFrom(r.Context()),
					"stack", string(debug.Stack()),
				)
				httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
