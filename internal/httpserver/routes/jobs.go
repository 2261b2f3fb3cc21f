package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/mw"
)

func init() { Register("jobs", registerJobs) }

func registerJobs(r chi.Router, d deps.Deps) {
	trusted := r.With(mw.AllowOnlyCIDRS(d.TrustedCIDRS, d.TrustProxy, d.Logger))
	trusted.Post("/purge", handlers.Purge(d))
	trusted.Post("/reload", handlers.Reload(d))
}
