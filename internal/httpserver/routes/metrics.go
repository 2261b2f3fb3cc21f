package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/mw"
)

func init() { Register("metrics", registerMetrics) }

func registerMetrics(r chi.Router, d deps.Deps) {
	if d.Metrics == nil {
		return
	}
	r.With(mw.AllowOnlyCIDRS(d.TrustedCIDRS, d.TrustProxy, d.Logger)).Method(http.MethodGet, "/metrics", d.Metrics.Handler())
}
