package handler

import (
	"net/http"
	"strconv"
	"time"
	"watchtower/internal/dto"

	"github.com/gin-gonic/gin"
)

const (
	defaultAlertLimit = 20
	livenessWindow    = 30 * time.Second
)

// StatusHandler reports the state of every stage.
func StatusHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ps := s.Pipeline.Stats()
		status := "stopped"
		if ps.Running {
			status = "running"
		}

		c.JSON(http.StatusOK, dto.StatusResponse{
			Status:     status,
			AlertCount: ps.AlertsRaised,
			Camera:     s.Camera.Name(),
			Capture:    s.Camera.Stats(),
			Pipeline:   ps,
			Dispatch:   s.Dispatcher.Stats(),
			Anomaly: dto.AnomalyStatus{
				Consecutive: s.Anomaly.Consecutive(),
				LastScore:   s.Anomaly.LastScore(),
			},
			Viewers: s.Hub.ClientCount(),
			Uptime:  time.Since(s.StartedAt).Truncate(time.Second).String(),
		})
	}
}

// AlertsHandler lists recent alert summaries, newest first. ?limit=N.
func AlertsHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultAlertLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, dto.MessageResponse{Message: "Invalid limit"})
				return
			}
			limit = n
		}
		c.JSON(http.StatusOK, s.Journal.Recent(limit))
	}
}

// HealthHandler reports liveness of the detection loop.
func HealthHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		alive := s.Pipeline.Alive(livenessWindow)
		if !alive {
			c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "unhealthy", Pipeline: false})
			return
		}
		c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Pipeline: true})
	}
}
