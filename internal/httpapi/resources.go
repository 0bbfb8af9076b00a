package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"communityshare.org/internal/audit"
	"communityshare.org/internal/auth"
	"communityshare.org/internal/resource"
)

// collection is the entity-erased view of a CRUD orchestrator. Every
// resource.Handler satisfies it because the orchestrator speaks wire maps,
// not entity types.
type collection interface {
	Name() string
	List(ctx context.Context, r resource.Requester, args url.Values) ([]map[string]any, error)
	Get(ctx context.Context, r resource.Requester, id int) (map[string]any, error)
	Add(ctx context.Context, r resource.Requester, data map[string]any) (map[string]any, error)
	Edit(ctx context.Context, r resource.Requester, id int, data map[string]any) (map[string]any, error)
	Delete(ctx context.Context, r resource.Requester, id int) (map[string]any, error)
}

func (a *API) registerCollection(c collection) {
	base := "/api/" + c.Name()
	a.mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		a.handleCollection(w, r, c)
	})
	a.mux.HandleFunc(base+"/", func(w http.ResponseWriter, r *http.Request) {
		a.handleItem(w, r, c, base+"/")
	})
}

func (a *API) handleCollection(w http.ResponseWriter, r *http.Request, c collection) {
	requester := auth.RequesterFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		items, err := c.List(r.Context(), requester, r.URL.Query())
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, items)
	case http.MethodPost:
		data, err := decodeBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		item, err := c.Add(r.Context(), requester, data)
		if err != nil {
			writeError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), c.Name()+".add", map[string]any{"id": item["id"]})
		payload := map[string]any{"data": item}
		// Add hooks may mutate the requester, so the response carries their
		// fresh state alongside the created entity.
		if u := a.requestingUser(r); u != nil {
			payload["user"] = a.userDef.Serialize(u, u, nil)
		}
		writeJSON(w, http.StatusCreated, payload)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleItem(w http.ResponseWriter, r *http.Request, c collection, prefix string) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		writeMessage(w, http.StatusNotFound, "resource not found")
		return
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		writeError(w, resource.BadRequestf("id must be an integer, got %q", rest))
		return
	}
	requester := auth.RequesterFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		item, err := c.Get(r.Context(), requester, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, item)
	case http.MethodPatch, http.MethodPut:
		data, err := decodeBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		item, err := c.Edit(r.Context(), requester, id, data)
		if err != nil {
			writeError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), c.Name()+".edit", map[string]any{"id": id})
		writeData(w, http.StatusOK, item)
	case http.MethodDelete:
		item, err := c.Delete(r.Context(), requester, id)
		if err != nil {
			writeError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), c.Name()+".delete", map[string]any{"id": id})
		writeData(w, http.StatusOK, item)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodPut, http.MethodDelete)
	}
}
