// Package auth resolves a requester identity from the request credential.
// Absence of a requester is the uniform anonymous signal, never an error;
// callers decide between Unauthorized and Forbidden from their own context.
package auth

import (
	"context"
	"errors"
	"strings"

	"communityshare.org/internal/resource"
	"communityshare.org/internal/secret"
)

const scheme = "Basic"

// Account is a resolvable caller: a requester identity plus the password
// verification capability.
type Account interface {
	resource.Requester
	PasswordMatches(password string) bool
}

// Directory looks up active accounts. Implementations return
// resource.ErrNotFound for unknown or inactive accounts.
type Directory interface {
	ActiveByID(ctx context.Context, id int) (Account, error)
	ActiveByEmail(ctx context.Context, email string) (Account, error)
}

// Resolver turns a credential header into a requester using the token store
// and an account directory.
type Resolver struct {
	tokens *secret.Store
	users  Directory
}

// NewResolver constructs a Resolver.
func NewResolver(tokens *secret.Store, users Directory) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve parses a credential of the form "Basic:<method>:<value>" and
// returns the caller it identifies, or nil for anything unresolvable. Only
// storage failures are reported as errors.
func (r *Resolver) Resolve(ctx context.Context, credential string) (resource.Requester, error) {
	parts := strings.SplitN(credential, ":", 3)
	if len(parts) != 3 {
		return nil, nil
	}
	if parts[0] != scheme {
		return nil, nil
	}
	method, value := parts[1], parts[2]
	if method == "api" {
		return r.fromAPIKey(ctx, value)
	}
	// Probably an email, password pair.
	return r.fromLogin(ctx, method, value)
}

func (r *Resolver) fromAPIKey(ctx context.Context, key string) (resource.Requester, error) {
	tok, err := r.tokens.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	info := tok.Payload()
	if info == nil {
		return nil, nil
	}
	if action, _ := info[secret.PayloadAction].(string); action != secret.ActionAPIKey {
		return nil, nil
	}
	userID, ok := payloadUserID(info)
	if !ok {
		return nil, nil
	}
	acct, err := r.users.ActiveByID(ctx, userID)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return acct, nil
}

func (r *Resolver) fromLogin(ctx context.Context, email, password string) (resource.Requester, error) {
	acct, err := r.users.ActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !acct.PasswordMatches(password) {
		return nil, nil
	}
	return acct, nil
}

// payloadUserID tolerates the numeric shapes a decoded JSON payload can take.
func payloadUserID(info map[string]any) (int, bool) {
	switch v := info[secret.PayloadUserID].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
