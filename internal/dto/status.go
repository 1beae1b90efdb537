package dto

import (
	"watchtower/internal/service/ai"
	"watchtower/internal/service/alert"
	"watchtower/internal/service/camera"
	"watchtower/internal/service/pipeline"
)

// MessageResponse is the body of simple replies and errors.
type MessageResponse struct {
	Message string `json:"message"`
}

// AnomalyStatus is the live state of the anomaly detector.
type AnomalyStatus struct {
	Consecutive int            `json:"consecutive"`
	LastScore   ai.MotionScore `json:"last_score"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Status     string              `json:"status"`
	AlertCount uint64              `json:"alert_count"`
	Camera     string              `json:"camera"`
	Capture    camera.Stats        `json:"capture"`
	Pipeline   pipeline.Stats      `json:"pipeline"`
	Dispatch   alert.DispatchStats `json:"dispatch"`
	Anomaly    AnomalyStatus       `json:"anomaly"`
	Viewers    int                 `json:"viewers"`
	Uptime     string              `json:"uptime"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Pipeline bool   `json:"pipeline_alive"`
}
