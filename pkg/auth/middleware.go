package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dopahiyaa/pkg/ctxkeys"
)

// Actor is the authenticated caller as seen by handlers.
type Actor struct {
	UserID string
	Role   string
	Phone  string
	Email  string
}

// JWTAuthMiddleware reads a bearer token (or the access_token cookie), validates
// it and publishes the actor on both the gin context and the request context.
func JWTAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			return
		}

		claims, err := ValidateJWT(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(string(ctxkeys.KeyUserID), claims.UserID)
		c.Set(string(ctxkeys.KeyRole), claims.Role)
		c.Set(string(ctxkeys.KeyPhone), claims.Phone)
		c.Set(string(ctxkeys.KeyEmail), claims.Email)
		c.Set(string(ctxkeys.KeyAuthType), "jwt")

		ctx := context.WithValue(c.Request.Context(), ctxkeys.KeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxkeys.KeyRole, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed. Admins pass every check.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(string(ctxkeys.KeyRole))
		if role == RoleAdmin {
			c.Next()
			return
		}
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the actor set by JWTAuthMiddleware.
func ActorFrom(c *gin.Context) (Actor, bool) {
	userID := c.GetString(string(ctxkeys.KeyUserID))
	if userID == "" {
		return Actor{}, false
	}
	return Actor{
		UserID: userID,
		Role:   c.GetString(string(ctxkeys.KeyRole)),
		Phone:  c.GetString(string(ctxkeys.KeyPhone)),
		Email:  c.GetString(string(ctxkeys.KeyEmail)),
	}, true
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		// Browser clients and websocket upgrades carry the token in a cookie.
		if cookie, err := c.Cookie("access_token"); err == nil {
			return cookie
		}
		if q := c.Query("access_token"); q != "" && c.GetHeader("Upgrade") == "websocket" {
			return q
		}
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
