package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
)

// Purge triggers an immediate purge of stale NOTFOUND records.
func Purge(d deps.Deps) http.HandlerFunc {
	return trigger(d, d.PurgeTrigger, "Purge")
}

// Reload triggers an immediate pass over the seed file.
func Reload(d deps.Deps) http.HandlerFunc {
	return trigger(d, d.SeedTrigger, "Reload")
}

// trigger sends on ch without blocking: a full channel means a run is
// already pending.
func trigger(d deps.Deps, ch chan struct{}, job string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ch == nil {
			writeText(d, w, http.StatusServiceUnavailable, "🚫 "+job+" is disabled\n")
			return
		}

		select {
		case ch <- struct{}{}:
			d.Logger.Info("manual job triggered via endpoint",
				logger.String("job", job),
				logger.String("remote_ip", r.RemoteAddr))
			writeText(d, w, http.StatusAccepted, "✅ "+job+" triggered successfully\n")
		default:
			d.Logger.Warn("job already in progress",
				logger.String("job", job),
				logger.String("remote_ip", r.RemoteAddr))
			writeText(d, w, http.StatusTooManyRequests, "⏳ "+job+" already in progress, please wait\n")
		}
	}
}
