package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler reports basic liveness for the service.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Pinger is implemented by the ticket stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readyTimeout = 2 * time.Second

// ReadyHandler reports whether the ticket store is reachable.
func ReadyHandler(store Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "store not ready", "error", err)
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, "store unavailable")
			return
		}
		HealthHandler(w, r)
	}
}
