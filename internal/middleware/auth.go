package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	AuthCookie = "authenticated"
	AuthValue  = "true"
)

// publicPrefixes are reachable without logging in.
var publicPrefixes = []string{"/auth/", "/health", "/login", "/static/"}

// AuthMiddleware checks that the user is logged in (cookie 'authenticated=true').
// With an empty password authentication is disabled.
func AuthMiddleware(password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if password == "" {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		for _, prefix := range publicPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		cookie, err := c.Cookie(AuthCookie)
		if err != nil || cookie != AuthValue {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		c.Next()
	}
}
