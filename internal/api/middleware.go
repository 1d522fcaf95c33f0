package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tmxfleet/alert-relay/internal/auth"
	"github.com/tmxfleet/alert-relay/internal/models"
)

const (
	sessionKey = "session"
	tokenKey   = "sessionToken"
)

// tokenFromRequest pulls the bearer token from the Authorization header
// or, for WebSocket upgrades where headers are awkward, from the token
// query parameter.
func tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

func AuthMiddleware(authn *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		sess, err := authn.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "auth backend unavailable",
			})
			return
		}

		c.Set(sessionKey, sess)
		c.Set(tokenKey, token)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *models.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*models.Session)
	return sess
}

func tokenFrom(c *gin.Context) string {
	return c.GetString(tokenKey)
}
