package handler

import (
	"time"
	"watchtower/internal/config"
	"watchtower/internal/frame"
	"watchtower/internal/logger"
	"watchtower/internal/service/ai"
	"watchtower/internal/service/alert"
	"watchtower/internal/service/camera"
	"watchtower/internal/service/pipeline"
	"watchtower/internal/service/websocket"
)

// PipelineService is the part of the detection pipeline the HTTP layer uses.
type PipelineService interface {
	Stats() pipeline.Stats
	Alive(maxIdle time.Duration) bool
	Policy() ai.LabelPolicy
	SetPolicy(policy ai.LabelPolicy)
}

// AnomalyTuner exposes the anomaly detector thresholds and state.
type AnomalyTuner interface {
	Config() ai.AnomalyConfig
	SetConfig(cfg ai.AnomalyConfig) error
	Consecutive() int
	LastScore() ai.MotionScore
}

// CameraService reports capture state.
type CameraService interface {
	Name() string
	Stats() camera.Stats
}

// DispatchService reports alert delivery counters.
type DispatchService interface {
	Stats() alert.DispatchStats
}

// Services bundles what the handlers read from.
type Services struct {
	Config     *config.Config
	Logger     *logger.Logger
	Annotated  *frame.Buffer
	Camera     CameraService
	Pipeline   PipelineService
	Anomaly    AnomalyTuner
	Dispatcher DispatchService
	Journal    *alert.Journal
	Hub        *websocket.Hub
	StartedAt  time.Time
}
