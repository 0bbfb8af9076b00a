package httpapi

import (
	"net/http"

	"communityshare.org/internal/auth"
)

const authHeader = "Authorization"

// withRequester resolves the Authorization credential and attaches the
// requester to the context. An unresolvable credential leaves the request
// anonymous; individual handlers decide between 401 and 403. Only a storage
// failure rejects here.
func (a *API) withRequester(next http.Handler) http.Handler {
	if a.resolver == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get(authHeader)
		if credential == "" {
			next.ServeHTTP(w, r)
			return
		}
		requester, err := a.resolver.Resolve(r.Context(), credential)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "authentication error")
			return
		}
		if requester != nil {
			r = r.WithContext(auth.ContextWithRequester(r.Context(), requester))
		}
		next.ServeHTTP(w, r)
	})
}
