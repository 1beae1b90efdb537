package route

import (
	"net/http"
	"os"
	"path/filepath"
	"watchtower/internal/handler"
	"watchtower/internal/middleware"

	"github.com/gin-gonic/gin"
)

const staticDir = "static"

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(c *gin.Context) {
	path := c.Request.URL.Path
	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")
	if _, err := os.Stat(filePath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
		return
	}
	c.File(filePath)
}

// SetupRoutes registers the API, log and auth endpoints behind the request
// logger, CORS and authentication middleware.
func SetupRoutes(s *handler.Services) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(middleware.RequestLogger(s.Logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(s.Config.CORSOrigins))
	router.Use(middleware.AuthMiddleware(s.Config.Password))

	router.GET("/health", handler.HealthHandler(s))

	api := router.Group("/api")
	{
		api.GET("/frame", handler.FrameHandler(s))
		api.GET("/mjpeg", handler.MJPEGHandler(s))
		api.GET("/status", handler.StatusHandler(s))
		api.GET("/alerts", handler.AlertsHandler(s))
		api.GET("/config", handler.GetConfigHandler(s))
		api.PUT("/config", handler.UpdateConfigHandler(s))
		api.GET("/view", handler.ViewWebsocketHandler(s))
	}

	logs := router.Group("/logs")
	{
		logs.GET("/:level", handler.ShowLogsHandler(s))
		logs.POST("/:level/clear", handler.ClearLogsHandler(s))
	}

	auth := router.Group("/auth")
	{
		auth.POST("/login", handler.LoginHandler(s))
		auth.GET("/logout", handler.LogoutHandler)
	}

	router.Static("/static", staticDir)
	router.NoRoute(dynamicHTMLHandler)

	return router
}
