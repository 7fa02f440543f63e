package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bloodbridge/internal/actor"
	obscontext "github.com/smallbiznis/bloodbridge/internal/observability/context"
)

// ActorContextMiddleware resolves the calling actor from headers and
// stores it on the request context. Routes that require an actor use
// RequireRole; everything else tolerates anonymous calls.
func ActorContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawRole := c.GetHeader("X-Actor-Role")
		if strings.TrimSpace(rawRole) == "" {
			c.Next()
			return
		}

		role, ok := actor.ParseRole(rawRole)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		caller := actor.Actor{
			Role:    role,
			OrgID:   strings.TrimSpace(c.GetHeader("X-Org-ID")),
			DonorID: strings.TrimSpace(c.GetHeader("X-Donor-ID")),
		}
		if caller.EntityID() == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := actor.WithActor(c.Request.Context(), caller)
		ctx = obscontext.WithActor(ctx, string(role), caller.EntityID())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole rejects requests whose actor is missing or holds none of
// the allowed roles.
func RequireRole(roles ...actor.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := actor.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		for _, role := range roles {
			if caller.Role == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}
