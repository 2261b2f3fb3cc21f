package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
)

// Find sends clients to the record of the uri in the path, reduced unless
// reduceurl=false. The uri may be fully percent-encoded.
func Find(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "*")
		if raw == "" {
			badRequest(d, w, "uri", "uri required after /find/")
			return
		}
		uri := domain.NormalizeURI(raw, reduceRequested(r))
		http.Redirect(w, r, resourceURL(d, r, domain.Hash(uri)), http.StatusSeeOther)
	}
}
