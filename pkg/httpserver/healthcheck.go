package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Check is a named readiness dependency, such as a database ping.
type Check struct {
	Name  string
	Probe func(context.Context) error
}

type healthResponse struct {
	Status string   `json:"status"`
	Failed []string `json:"failed,omitempty"`
}

// Liveness reports that the process is up. It never touches dependencies.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, healthResponse{Status: "alive"})
	}
}

// Readiness runs every check under timeout and responds 503 listing the checks
// that failed, or 200 when all pass.
func Readiness(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var failed []string
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				log.WarnContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
				failed = append(failed, c.Name)
			}
		}

		if len(failed) > 0 {
			writeHealth(w, http.StatusServiceUnavailable, healthResponse{Status: "not_ready", Failed: failed})
			return
		}
		writeHealth(w, http.StatusOK, healthResponse{Status: "ready"})
	}
}

func writeHealth(w http.ResponseWriter, code int, body healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
