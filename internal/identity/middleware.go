package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"go.uber.org/zap"
)

const ctxActor = "provenance_actor"

// ResolveActor returns a Gin middleware that turns an optional Bearer token
// into the acting account.
//
// Requests without an Authorization header proceed as guests. A token that
// fails verification, or names an account the registry does not know, is
// rejected with 401. On success the *model.Account is stored in the context
// under the "provenance_actor" key.
func ResolveActor(tokens *TokenVerifier, registry Registry, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		accountID, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		actor, err := registry.GetActor(c.Request.Context(), accountID)
		if errors.Is(err, ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unknown account",
			})
			return
		}
		if err != nil {
			logger.Error("resolve actor", zap.String("account_id", accountID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "identity registry unavailable",
			})
			return
		}

		c.Set(ctxActor, actor)
		c.Next()
	}
}

// ActorFromCtx retrieves the account injected by ResolveActor. Returns nil
// for guests.
func ActorFromCtx(c *gin.Context) *model.Account {
	v, _ := c.Get(ctxActor)
	a, _ := v.(*model.Account)
	return a
}
