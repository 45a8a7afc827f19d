package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacy-backend/models"
	"pharmacy-backend/services"
)

const (
	// AuthCookieName carries the signed token set at login.
	AuthCookieName = "token"

	UserIDKey = "userID"
	RoleKey   = "role"
	EmailKey  = "email"
)

// RequireAuth validates the cookie-carried token and stores the caller's
// identity on the context. An Authorization bearer header is accepted as
// a fallback for non-browser clients.
func RequireAuth(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(AuthCookieName)
		if err != nil || tokenStr == "" {
			if auth := c.GetHeader("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
				tokenStr = auth[7:]
			}
		}
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		claims, err := tokens.Validate(tokenStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Set(EmailKey, claims.Email)
		c.Next()
	}
}

// RequireRole restricts a route group to the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		val, exists := c.Get(RoleKey)
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			c.Abort()
			return
		}
		role, ok := val.(models.Role)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			c.Abort()
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		c.Abort()
	}
}

// GetUserID extracts the authenticated user's ID from the context.
func GetUserID(c *gin.Context) (string, error) {
	if val, ok := c.Get(UserIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id, nil
		}
	}
	return "", errors.New("user ID not found in context")
}

// GetRole extracts the authenticated user's role from the context.
func GetRole(c *gin.Context) models.Role {
	if val, ok := c.Get(RoleKey); ok {
		if role, ok := val.(models.Role); ok {
			return role
		}
	}
	return ""
}
