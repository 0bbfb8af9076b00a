package auth

import (
	"context"

	"communityshare.org/internal/resource"
)

type ctxKey string

const requesterKey ctxKey = "auth_requester"

// ContextWithRequester stores the resolved requester in the context.
func ContextWithRequester(ctx context.Context, r resource.Requester) context.Context {
	if r == nil {
		return ctx
	}
	return context.WithValue(ctx, requesterKey, r)
}

// RequesterFromContext returns the requester resolved for this request, or
// nil when the caller is anonymous.
func RequesterFromContext(ctx context.Context) resource.Requester {
	if r, ok := ctx.Value(requesterKey).(resource.Requester); ok {
		return r
	}
	return nil
}
