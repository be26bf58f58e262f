package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	httpserver "github.com/Iridium40/roam-platform-sub004/internal/http"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Health answers liveness probes. A nil Pinger skips the database check.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				slog.ErrorContext(ctx, "health ping failed", "err", err)
				httpserver.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpserver.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
