package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
	"github.com/MrSnakeDoc/urldammit/internal/store"
)

type errorResponse struct {
	Error string      `json:"error"`
	Code  domain.Code `json:"code,omitempty"`
	Field string      `json:"field,omitempty"`
}

func writeJSON(d deps.Deps, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.Logger.Debug("failed to write response", logger.Error(err))
	}
}

func writeText(d deps.Deps, w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(msg)); err != nil {
		d.Logger.Debug("failed to write response", logger.Error(err))
	}
}

// writeError maps err to a status code: rule violations are the client's
// fault (400), lost races are 409, anything else is logged and hidden.
func writeError(d deps.Deps, w http.ResponseWriter, r *http.Request, err error) {
	if de, ok := domain.AsError(err); ok {
		writeJSON(d, w, http.StatusBadRequest, errorResponse{Error: de.Message, Code: de.Code, Field: de.Field})
		return
	}
	if errors.Is(err, store.ErrConflict) {
		writeJSON(d, w, http.StatusConflict, errorResponse{Error: "resource was modified concurrently, retry"})
		return
	}

	d.Logger.Error("request failed",
		logger.String("method", r.Method),
		logger.String("path", r.URL.Path),
		logger.String("request_id", middleware.GetReqID(r.Context())),
		logger.Error(err))
	writeJSON(d, w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
}

func notFound(d deps.Deps, w http.ResponseWriter) {
	writeJSON(d, w, http.StatusNotFound, errorResponse{Error: http.StatusText(http.StatusNotFound)})
}

func badRequest(d deps.Deps, w http.ResponseWriter, field, format string, args ...any) {
	de := domain.NewError(domain.CodeValidation, field, format, args...)
	writeJSON(d, w, http.StatusBadRequest, errorResponse{Error: de.Message, Code: de.Code, Field: de.Field})
}

func forbidden(d deps.Deps, w http.ResponseWriter, msg string) {
	writeJSON(d, w, http.StatusForbidden, errorResponse{Error: msg})
}

// baseURL is the prefix of every Location header: the configured base, or
// the scheme and host the client used.
func baseURL(d deps.Deps, r *http.Request) string {
	if d.BaseURL != "" {
		return d.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if d.TrustProxy {
		if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
			scheme = p
		}
	}
	return scheme + "://" + r.Host
}

func resourceURL(d deps.Deps, r *http.Request, id string) string {
	return baseURL(d, r) + "/" + id
}
