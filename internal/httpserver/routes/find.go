package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/handlers"
)

func init() { Register("find", registerFind) }

func registerFind(r chi.Router, d deps.Deps) {
	r.Get("/find/*", handlers.Find(d))
}
