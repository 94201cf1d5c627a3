package earnerctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/satgate/satgate/internal/apikey/domain"
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
)

// EarnerContextKey is the request context key for the authenticated earner.
type EarnerContextKey struct{}

// WithEarner stores the authenticated earner in the context.
func WithEarner(ctx context.Context, earner *earnerdomain.Earner) context.Context {
	return context.WithValue(ctx, EarnerContextKey{}, earner)
}

// EarnerFromContext returns the authenticated earner, if set.
func EarnerFromContext(ctx context.Context) (*earnerdomain.Earner, bool) {
	if ctx == nil {
		return nil, false
	}
	earner, ok := ctx.Value(EarnerContextKey{}).(*earnerdomain.Earner)
	if !ok || earner == nil || earner.ID == 0 {
		return nil, false
	}
	return earner, true
}

// EarnerIDFromContext returns the authenticated earner's id, if set.
func EarnerIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	earner, ok := EarnerFromContext(ctx)
	if !ok {
		return 0, false
	}
	return earner.ID, true
}

// IsAdmin reports whether the context's earner carries the admin role.
func IsAdmin(ctx context.Context) bool {
	earner, ok := EarnerFromContext(ctx)
	return ok && earner.Role == earnerdomain.RoleAdmin
}

// APIKeyContextKey is the request context key for the authenticating key.
type APIKeyContextKey struct{}

// WithAPIKey stores the API key the request authenticated with.
func WithAPIKey(ctx context.Context, key *apikeydomain.APIKey) context.Context {
	return context.WithValue(ctx, APIKeyContextKey{}, key)
}

// APIKeyFromContext returns the authenticating API key, if set.
func APIKeyFromContext(ctx context.Context) (*apikeydomain.APIKey, bool) {
	if ctx == nil {
		return nil, false
	}
	key, ok := ctx.Value(APIKeyContextKey{}).(*apikeydomain.APIKey)
	if !ok || key == nil || key.ID == 0 {
		return nil, false
	}
	return key, true
}
