package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/mw"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
)

const banner = "where's my url dammit?"

// Index answers the bare root.
func Index(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeText(d, w, http.StatusOK, banner)
	}
}

// GetResource returns what is known about the uri whose hash is in the path.
// HEAD reaches it through middleware.GetHead.
func GetResource(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(d, w, r)
		if !ok {
			return
		}

		res, ok, err := d.Resources.Load(r.Context(), id)
		if err != nil {
			writeError(d, w, r, err)
			return
		}
		if !ok {
			notFound(d, w)
			return
		}

		if res.IsRedirected() {
			w.Header().Set("Location", resourceURL(d, r, domain.Hash(res.Location())))
			writeJSON(d, w, http.StatusMovedPermanently, domain.Project(res))
			return
		}

		w.Header().Set("Last-Modified", res.Updated().UTC().Format(http.TimeFormat))
		writeJSON(d, w, http.StatusOK, domain.Project(res))
	}
}

// PostResource registers a uri, or deletes it when delete=true.
func PostResource(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri, ok := readURI(d, w, r)
		if !ok {
			return
		}

		if strings.EqualFold(r.Form.Get("delete"), "true") {
			if !mw.IsTrusted(r.Context()) {
				forbidden(d, w, "delete requires a trusted client")
				return
			}
			if err := d.Resources.Delete(r.Context(), domain.Hash(uri)); err != nil {
				writeError(d, w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		register(d, w, r, uri)
	}
}

// PutResource replaces the record of a uri: any existing record is deleted
// before the registration. The id in the path is not consulted.
func PutResource(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := pathID(d, w, r); !ok {
			return
		}
		if !mw.IsTrusted(r.Context()) {
			forbidden(d, w, "replacing a record requires a trusted client")
			return
		}
		uri, ok := readURI(d, w, r)
		if !ok {
			return
		}
		if err := d.Resources.Delete(r.Context(), domain.Hash(uri)); err != nil {
			writeError(d, w, r, err)
			return
		}
		register(d, w, r, uri)
	}
}

// DeleteResource removes the record whose hash is in the path.
func DeleteResource(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(d, w, r)
		if !ok {
			return
		}
		if !mw.IsTrusted(r.Context()) {
			forbidden(d, w, "delete requires a trusted client")
			return
		}
		if err := d.Resources.Delete(r.Context(), id); err != nil {
			writeError(d, w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// pathID returns the {id} path parameter, answering 404 when it is not a
// resource id.
func pathID(d deps.Deps, w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !domain.IsID(id) {
		notFound(d, w)
		return "", false
	}
	return id, true
}

func readURI(d deps.Deps, w http.ResponseWriter, r *http.Request) (string, bool) {
	if err := r.ParseForm(); err != nil {
		badRequest(d, w, "", "malformed form: %v", err)
		return "", false
	}
	uri, err := formURI(r)
	if err != nil {
		respondFormError(d, w, err)
		return "", false
	}
	return uri, true
}

func register(d deps.Deps, w http.ResponseWriter, r *http.Request, uri string) {
	req, err := parseRegister(r, uri)
	if err != nil {
		respondFormError(d, w, err)
		return
	}
	req.Guarded = !mw.IsTrusted(r.Context())

	res, err := d.Resources.Register(r.Context(), req)
	if err != nil {
		writeError(d, w, r, err)
		return
	}
	d.Logger.Debug("registered", logger.String("id", res.ID()), logger.Int("status", res.Status().Code()))
	http.Redirect(w, r, resourceURL(d, r, res.ID()), http.StatusSeeOther)
}

func respondFormError(d deps.Deps, w http.ResponseWriter, err error) {
	var fe *formError
	if errors.As(err, &fe) {
		badRequest(d, w, fe.field, "%s", fe.msg)
		return
	}
	badRequest(d, w, "", "%v", err)
}
