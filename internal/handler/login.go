package handler

import (
	"crypto/subtle"
	"net/http"
	"watchtower/internal/dto"
	"watchtower/internal/middleware"

	"github.com/gin-gonic/gin"
)

const cookieMaxAge = 2592000 // 30 days

// LoginHandler validates the password form field and issues the auth cookie.
func LoginHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		password := c.PostForm("password")
		if subtle.ConstantTimeCompare([]byte(password), []byte(s.Config.Password)) != 1 {
			s.Logger.Warning("Failed login from %s", c.ClientIP())
			c.JSON(http.StatusUnauthorized, dto.MessageResponse{Message: "Invalid password"})
			return
		}

		c.SetCookie(middleware.AuthCookie, middleware.AuthValue, cookieMaxAge, "/", "", false, true)
		c.JSON(http.StatusOK, dto.MessageResponse{Message: "Logged in"})
	}
}

// LogoutHandler clears the auth cookie.
func LogoutHandler(c *gin.Context) {
	c.SetCookie(middleware.AuthCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Logged out"})
}
