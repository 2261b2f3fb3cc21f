package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
)

type componentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// Readyz pings every backend in d.Pingers. One failure makes the service
// not ready (503).
func Readyz(d deps.Deps) http.HandlerFunc {
	timeout := d.ReadyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	names := make([]string, 0, len(d.Pingers))
	for name := range d.Pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{Ready: true, Components: make(map[string]componentStatus, len(names))}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := d.Pingers[name].Ping(ctx)
			cancel()

			if err != nil {
				d.Logger.Warn("readiness check failed", logger.String("component", name), logger.Error(err))
				resp.Ready = false
				resp.Components[name] = componentStatus{OK: false, Error: err.Error()}
				continue
			}
			resp.Components[name] = componentStatus{OK: true}
		}

		w.Header().Set("Cache-Control", "no-store")
		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(d, w, status, resp)
	}
}
