package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/satgate/satgate/internal/apikey/domain"
	"github.com/satgate/satgate/internal/earnerctx"
	obscontext "github.com/satgate/satgate/internal/observability/obscontext"
)

// APIKeyRequired authenticates management requests with a bearer API key.
// The owning earner is loaded once and stored on the request context; the
// data plane under /g/ never passes through here.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok || !apikeydomain.LooksLikeAPIKey(raw) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, err := s.apiKeySvc.Resolve(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		earner, err := s.earnerSvc.Get(c.Request.Context(), key.EarnerID)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := earnerctx.WithEarner(c.Request.Context(), earner)
		ctx = earnerctx.WithAPIKey(ctx, key)
		ctx = obscontext.WithActor(ctx, "earner", earner.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireScope gates write-style routes on a per-key grant, on top of the
// role policy check.
func (s *Server) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := earnerctx.APIKeyFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !key.HasScope(scope) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !earnerctx.IsAdmin(c.Request.Context()) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		earner, ok := earnerctx.EarnerFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor := fmt.Sprintf("earner:%d", earner.ID)
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}
