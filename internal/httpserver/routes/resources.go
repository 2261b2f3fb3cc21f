package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/mw"
)

// Ids are checked by the handlers.
const idPath = "/{id}"

func init() { Register("resources", registerResources) }

func registerResources(r chi.Router, d deps.Deps) {
	limit := mutationLimit(d)

	r.Get("/", handlers.Index(d))
	r.Get(idPath, handlers.GetResource(d))
	r.With(limit).Post("/", handlers.PostResource(d))
	r.With(limit).Put(idPath, handlers.PutResource(d))
	r.With(limit).Delete(idPath, handlers.DeleteResource(d))
}

// mutationLimit rate limits writes per client IP. A zero burst disables it.
func mutationLimit(d deps.Deps) Middleware {
	if d.RateLimitBurst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateLimitBurst,
		RefillPerIPPerMin: d.RateLimitPerMin,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
	})
}
