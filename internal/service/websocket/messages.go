package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"watchtower/internal/frame"
	"watchtower/internal/logger"
	"watchtower/internal/service/alert"
)

// Message types sent to viewers.
const (
	TypeFrame = "frame"
	TypeAlert = "alert"
)

// ErrHubBusy is returned when the alert queue is full.
var ErrHubBusy = errors.New("websocket hub busy")

// FrameMessage carries one annotated frame as base64 JPEG.
type FrameMessage struct {
	Type       string    `json:"type"`
	Camera     string    `json:"camera"`
	Image      string    `json:"image"`
	CapturedAt time.Time `json:"captured_at"`
}

// AlertMessage carries an alert summary.
type AlertMessage struct {
	Type  string        `json:"type"`
	Alert alert.Summary `json:"alert"`
}

// HubSender delivers alerts to live viewers.
type HubSender struct {
	hub *Hub
}

func NewHubSender(hub *Hub) *HubSender {
	return &HubSender{hub: hub}
}

func (s *HubSender) Name() string { return "websocket" }

func (s *HubSender) Send(_ context.Context, a alert.Alert) error {
	msg, err := json.Marshal(AlertMessage{Type: TypeAlert, Alert: a.Summary()})
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}
	if !s.hub.BroadcastAlert(msg) {
		return ErrHubBusy
	}
	return nil
}

// Streamer pushes each new annotated frame to the hub.
type Streamer struct {
	hub      *Hub
	source   *frame.Buffer
	camera   string
	interval time.Duration
	logger   *logger.Logger
}

func NewStreamer(hub *Hub, source *frame.Buffer, camera string, interval time.Duration, logger *logger.Logger) *Streamer {
	return &Streamer{
		hub:      hub,
		source:   source,
		camera:   camera,
		interval: interval,
		logger:   logger.With("component", "streamer"),
	}
}

// Run polls the buffer every interval until ctx is cancelled. Frames are only
// encoded while someone is watching.
func (s *Streamer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if s.hub.ClientCount() == 0 {
			continue
		}
		f, seq, ok := s.source.Latest()
		if !ok || seq == lastSeq {
			continue
		}
		lastSeq = seq

		msg, err := EncodeFrame(s.camera, f)
		if err != nil {
			s.logger.Warning("Failed to encode frame for viewers: %v", err)
			continue
		}
		s.hub.Broadcast(msg)
	}
}

// EncodeFrame builds the JSON frame message for f.
func EncodeFrame(camera string, f *frame.Frame) ([]byte, error) {
	jpeg, err := f.EncodeJPEG()
	if err != nil {
		return nil, err
	}
	return json.Marshal(FrameMessage{
		Type:       TypeFrame,
		Camera:     camera,
		Image:      base64.StdEncoding.EncodeToString(jpeg),
		CapturedAt: f.CapturedAt,
	})
}
