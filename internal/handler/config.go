package handler

import (
	"net/http"
	"watchtower/internal/dto"
	"watchtower/internal/service/ai"

	"github.com/gin-gonic/gin"
)

func currentConfig(s *Services) dto.ConfigResponse {
	policy := s.Pipeline.Policy()
	return dto.ConfigResponse{
		Anomaly:             s.Anomaly.Config(),
		ConfidenceThreshold: policy.MinConfidence,
		WeaponLabels:        policy.Weapons(),
		TrackedLabels:       policy.Tracked(),
	}
}

// GetConfigHandler returns the thresholds in use.
func GetConfigHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, currentConfig(s))
	}
}

// UpdateConfigHandler applies new thresholds and labels. They take effect on
// the next frame and are not persisted.
func UpdateConfigHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var update dto.ConfigUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, dto.MessageResponse{Message: "Invalid request body: " + err.Error()})
			return
		}

		if update.ConfidenceThreshold != nil && (*update.ConfidenceThreshold < 0 || *update.ConfidenceThreshold > 1) {
			c.JSON(http.StatusBadRequest, dto.MessageResponse{Message: "confidence_threshold must be in [0,1]"})
			return
		}

		anomaly := update.ApplyAnomaly(s.Anomaly.Config())
		if err := s.Anomaly.SetConfig(anomaly); err != nil {
			c.JSON(http.StatusBadRequest, dto.MessageResponse{Message: err.Error()})
			return
		}

		if update.TouchesPolicy() {
			current := s.Pipeline.Policy()
			confidence := current.MinConfidence
			if update.ConfidenceThreshold != nil {
				confidence = *update.ConfidenceThreshold
			}
			weapons, tracked := current.Weapons(), current.Tracked()
			if update.WeaponLabels != nil {
				weapons = update.WeaponLabels
			}
			if update.TrackedLabels != nil {
				tracked = update.TrackedLabels
			}
			s.Pipeline.SetPolicy(ai.NewLabelPolicy(confidence, weapons, tracked))
		}

		s.Logger.Info("Configuration updated: %+v", anomaly)
		c.JSON(http.StatusOK, currentConfig(s))
	}
}
