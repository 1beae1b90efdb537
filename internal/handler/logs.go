package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"watchtower/internal/dto"
	"watchtower/internal/logger"

	"github.com/gin-gonic/gin"
)

var logFiles = map[string]string{
	"info":    logger.InfoFile,
	"warning": logger.WarningFile,
	"error":   logger.ErrorFile,
}

// ShowLogsHandler serves the log file for :level as text/plain.
func ShowLogsHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename, ok := logFiles[c.Param("level")]
		if !ok {
			c.JSON(http.StatusNotFound, dto.MessageResponse{Message: "Unknown log level"})
			return
		}

		filePath := filepath.Join(s.Logger.Dir(), filename)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			c.String(http.StatusNotFound, "Log file not found: "+filename)
			return
		}

		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Header("Cache-Control", "no-cache")
		c.File(filePath)
	}
}

// ClearLogsHandler truncates the log file for :level.
func ClearLogsHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename, ok := logFiles[c.Param("level")]
		if !ok {
			c.JSON(http.StatusNotFound, dto.MessageResponse{Message: "Unknown log level"})
			return
		}
		if err := s.Logger.CleanLogs(filename); err != nil {
			s.Logger.Error("Failed to clear %s: %v", filename, err)
			c.JSON(http.StatusInternalServerError, dto.MessageResponse{Message: "Failed to clear logs"})
			return
		}
		c.JSON(http.StatusOK, dto.MessageResponse{Message: "Logs cleared"})
	}
}
