package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"watchtower/internal/frame"
	"watchtower/internal/logger"

	"gocv.io/x/gocv"
)

// ErrNetworkNotLoaded is returned by NetDetector when no model is loaded.
var ErrNetworkNotLoaded = errors.New("detection network not initialized")

// Detection is one labeled box reported by an ObjectDetector.
type Detection struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"` // (x1,y1)-(x2,y2) in frame pixels
}

// ObjectDetector classifies the objects in a frame. Implementations may be
// slow; the pipeline bounds calls with BoundedDetector.
type ObjectDetector interface {
	Detect(ctx context.Context, f *frame.Frame) ([]Detection, error)
}

// NoopDetector reports nothing. It stands in when no model is available so
// that anomaly detection keeps running.
type NoopDetector struct{}

func (NoopDetector) Detect(context.Context, *frame.Frame) ([]Detection, error) { return nil, nil }

// DetectionFloor drops the near-zero rows the SSD output is padded with.
// Everything above it is passed on, and the label policy applies the tunable
// confidence threshold.
const DetectionFloor = 0.01

// NetDetector runs an SSD MobileNet COCO network through the OpenCV DNN module.
type NetDetector struct {
	net        gocv.Net
	modelPath  string
	configPath string
	mu         sync.Mutex
	logger     *logger.Logger
}

// NewNetDetector loads the network from a frozen graph and its text config.
func NewNetDetector(modelPath, configPath string, logger *logger.Logger) (*NetDetector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", modelPath, err)
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file not found: %s: %w", configPath, err)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target: %w", errors.Join(errBackend, errTarget))
	}

	logger.Info("Detection network initialized from %s", modelPath)
	return &NetDetector{
		net:        net,
		modelPath:  modelPath,
		configPath: configPath,
		logger:     logger,
	}, nil
}

// Detect runs the network on f. gocv.Net is not safe for concurrent use, so
// calls are serialized.
func (d *NetDetector) Detect(ctx context.Context, f *frame.Frame) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.net.Empty() {
		return nil, ErrNetworkNotLoaded
	}

	mat, err := f.Mat()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	// Blob parameters match the SSD COCO input.
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	results := parseDetections(rows, f.Bounds())
	for _, det := range results {
		d.logger.Debug("Detected %s (%.2f)", det.Label, det.Confidence)
	}
	return results, nil
}

// parseDetections converts SSD output rows of
// [batch_id, class_id, confidence, x1, y1, x2, y2] into detections within
// bounds. Coordinates in the rows are normalized.
func parseDetections(rows gocv.Mat, bounds image.Rectangle) []Detection {
	width, height := float32(bounds.Dx()), float32(bounds.Dy())

	var results []Detection
	for i := 0; i < rows.Rows(); i++ {
		confidence := rows.GetFloatAt(i, 2)
		if confidence <= DetectionFloor {
			continue
		}
		classID := int(rows.GetFloatAt(i, 1))
		x1 := int(rows.GetFloatAt(i, 3) * width)
		y1 := int(rows.GetFloatAt(i, 4) * height)
		x2 := int(rows.GetFloatAt(i, 5) * width)
		y2 := int(rows.GetFloatAt(i, 6) * height)

		results = append(results, Detection{
			Label:      ClassLabel(classID),
			Confidence: float64(confidence),
			Box:        image.Rect(x1, y1, x2, y2).Intersect(bounds),
		})
	}
	return results
}

// Close releases the network.
func (d *NetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// cocoLabels maps SSD COCO class IDs to labels. Only classes with a meaning
// for surveillance are named.
var cocoLabels = map[int]string{
	1:  "person",
	2:  "bicycle",
	3:  "car",
	4:  "motorcycle",
	6:  "bus",
	8:  "truck",
	16: "bird",
	17: "cat",
	18: "dog",
	27: "backpack",
	31: "handbag",
	33: "suitcase",
	39: "baseball bat",
	44: "bottle",
	49: "knife",
	87: "scissors",
}

// ClassLabel maps a model class ID to a human-readable label.
func ClassLabel(classID int) string {
	if label, exists := cocoLabels[classID]; exists {
		return label
	}
	return fmt.Sprintf("unknown%d", classID)
}
