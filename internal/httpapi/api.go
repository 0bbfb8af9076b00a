// Package httpapi is the HTTP layer: the generic per-entity CRUD surface,
// the account flow endpoints and the operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"communityshare.org/internal/analytics"
	"communityshare.org/internal/auth"
	"communityshare.org/internal/obs"
	"communityshare.org/internal/resource"
	"communityshare.org/internal/user"
)

// ReadyProbe reports whether the service can reach its database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires the HTTP surface together.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	resolver *auth.Resolver
	accounts *user.Service
	userDef  *resource.Definition[*user.User]
	views    *analytics.Store
}

// New builds the API and registers every route. Entity collections are wired
// explicitly; there is no registry.
func New(rp ReadyProbe, version string,
	resolver *auth.Resolver,
	accounts *user.Service,
	userDef *resource.Definition[*user.User],
	users *resource.Handler[*user.User],
	reviews *resource.Handler[*user.Review],
	views *analytics.Store,
) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		resolver:   resolver,
		accounts:   accounts,
		userDef:    userDef,
		views:      views,
	}

	a.registerCollection(users)
	a.registerCollection(reviews)

	a.mux.HandleFunc("/api/usersignup", a.handleSignup)
	a.mux.HandleFunc("/api/requestresetpassword/", a.handleRequestPasswordReset)
	a.mux.HandleFunc("/api/resetpassword", a.handleResetPassword)
	a.mux.HandleFunc("/api/requestapikey", a.handleRequestAPIKey)
	a.mux.HandleFunc("/api/requestconfirmemail", a.handleRequestEmailConfirmation)
	a.mux.HandleFunc("/api/confirmemail", a.handleConfirmEmail)
	a.mux.HandleFunc("/api/activate_email", a.handleActivateEmail)
	a.mux.HandleFunc("/api/dump_csv", a.handleDumpCSV)
	a.mux.HandleFunc("/api/me", a.handleMe)
	a.mux.HandleFunc("/api/analytics/page_view", a.handlePageView)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withRequester(h)
	h = RateLimit(h, 50, 25)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "communityshare-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
