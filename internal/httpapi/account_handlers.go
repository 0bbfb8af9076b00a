package httpapi

import (
	"net/http"
	"strings"

	"communityshare.org/internal/audit"
	"communityshare.org/internal/auth"
	"communityshare.org/internal/resource"
	"communityshare.org/internal/user"
)

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	data, err := decodeBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := a.accounts.Signup(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.signup", map[string]any{"id": result.User.ID})
	payload := map[string]any{
		// New accounts see themselves through the standard tier.
		"data":   a.userDef.Serialize(result.User, result.User, nil),
		"apiKey": result.APIKey,
	}
	if result.Warning != "" {
		payload["warningMessage"] = result.Warning
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	email := strings.TrimPrefix(r.URL.Path, "/api/requestresetpassword/")
	if email == "" || strings.Contains(email, "/") {
		writeMessage(w, http.StatusNotFound, "resource not found")
		return
	}
	if err := a.accounts.RequestPasswordReset(r.Context(), email); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "OK")
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	data, err := decodeBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	key, _ := data["key"].(string)
	password, _ := data["password"].(string)
	u, err := a.accounts.ResetPassword(r.Context(), key, password)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.password_reset", map[string]any{"id": u.ID})
	writeData(w, http.StatusOK, a.userDef.Serialize(u, u, nil))
}

func (a *API) handleRequestAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	u := a.requestingUser(r)
	if u == nil {
		writeError(w, resource.ErrUnauthorized)
		return
	}
	key, err := a.accounts.MintAPIKey(r.Context(), u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"apiKey": key,
		"user":   a.userDef.Serialize(u, u, nil),
	})
}

func (a *API) handleRequestEmailConfirmation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	u := a.requestingUser(r)
	if u == nil {
		writeError(w, resource.ErrUnauthorized)
		return
	}
	if err := a.accounts.RequestEmailConfirmation(r.Context(), u.ID); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "OK")
}

func (a *API) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	data, err := decodeBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	key, _ := data["key"].(string)
	u, apiKey, err := a.accounts.ConfirmEmail(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.email_confirmed", map[string]any{"id": u.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   a.userDef.Serialize(u, u, nil),
		"apiKey": apiKey,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	u := a.requestingUser(r)
	if u == nil {
		writeError(w, resource.ErrUnauthorized)
		return
	}
	var fields []string
	if raw := strings.TrimSpace(r.URL.Query().Get("fields")); raw != "" {
		fields = strings.Split(raw, ",")
	}
	writeData(w, http.StatusOK, a.userDef.Serialize(u, u, fields))
}

func (a *API) handlePageView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	u := a.requestingUser(r)
	if u == nil {
		writeError(w, resource.ErrUnauthorized)
		return
	}
	data, err := decodeBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	nextPath, _ := data["next_path"].(string)
	prevPath, _ := data["prev_path"].(string)
	pv, err := a.views.Record(r.Context(), u.ID, nextPath, prevPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"id":        pv.ID,
		"user_id":   pv.UserID,
		"viewed_at": pv.ViewedAt,
		"next_path": pv.NextPath,
		"prev_path": pv.PrevPath,
	})
}

// handleActivateEmail is the admin backfill marking every active, unconfirmed
// account as confirmed.
func (a *API) handleActivateEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	u := a.requestingUser(r)
	if u == nil {
		writeError(w, resource.ErrUnauthorized)
		return
	}
	if !u.IsAdministrator() {
		writeError(w, resource.ErrForbidden)
		return
	}
	n, err := a.accounts.ConfirmAllEmails(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.activate_email", map[string]any{"confirmed": n})
	writeData(w, http.StatusOK, map[string]any{"confirmed": n})
}

// handleDumpCSV streams the admin account export as a CSV attachment.
func (a *API) handleDumpCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	u := a.requestingUser(r)
	if u == nil {
		writeError(w, resource.ErrUnauthorized)
		return
	}
	if !u.IsAdministrator() {
		writeError(w, resource.ErrForbidden)
		return
	}
	doc, err := a.accounts.ExportCSV(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename=communityshare.csv`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// requestingUser returns the resolved account, or nil for anonymous callers.
func (a *API) requestingUser(r *http.Request) *user.User {
	if u, ok := auth.RequesterFromContext(r.Context()).(*user.User); ok {
		return u
	}
	return nil
}
