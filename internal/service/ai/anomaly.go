package ai

import (
	"fmt"
	"math"
	"sync"
	"time"
	"watchtower/internal/frame"
	"watchtower/internal/logger"
	"watchtower/internal/service/alert"

	"gocv.io/x/gocv"
)

// AnomalyConfig holds the tunable constants of the anomaly detector.
type AnomalyConfig struct {
	DiffThreshold  int     `json:"diff_threshold"`  // changed pixels needed for a hot frame
	FlowThreshold  float64 `json:"flow_threshold"`  // mean flow magnitude needed for a hot frame
	MinConsecutive int     `json:"min_consecutive"` // hot frames needed to confirm an anomaly
	PixelThreshold int     `json:"pixel_threshold"` // intensity change that counts as a changed pixel
	FlowScale      float64 `json:"flow_scale"`      // brings flow scores into the diff score range
}

// DefaultAnomalyConfig returns the stock thresholds.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		DiffThreshold:  5000,
		FlowThreshold:  5,
		MinConsecutive: 5,
		PixelThreshold: 30,
		FlowScale:      1000,
	}
}

// Validate rejects configurations the detector cannot run with.
func (c AnomalyConfig) Validate() error {
	if c.MinConsecutive < 1 {
		return fmt.Errorf("min consecutive must be at least 1, got %d", c.MinConsecutive)
	}
	if c.DiffThreshold < 0 || c.FlowThreshold < 0 || c.FlowScale < 0 {
		return fmt.Errorf("anomaly thresholds must not be negative")
	}
	if c.PixelThreshold < 0 || c.PixelThreshold > 255 {
		return fmt.Errorf("pixel threshold must be in [0,255], got %d", c.PixelThreshold)
	}
	return nil
}

// MotionScore is the comparison of two consecutive grayscale frames.
type MotionScore struct {
	Diff int     `json:"diff"` // pixels whose intensity changed by more than PixelThreshold
	Flow float64 `json:"flow"` // mean dense optical flow magnitude
}

// Hot reports whether the score crosses either threshold.
func (s MotionScore) Hot(cfg AnomalyConfig) bool {
	return s.Diff > cfg.DiffThreshold || s.Flow > cfg.FlowThreshold
}

// Combined folds both scores into one magnitude.
func (s MotionScore) Combined(flowScale float64) float64 {
	return math.Max(float64(s.Diff), s.Flow*flowScale)
}

// AnomalyDetector turns per-frame motion scores into debounced alerts.
//
// Each call compares the frame with the previous one. A hot comparison
// increments the consecutive counter, a cold one resets it to zero. One
// alert is raised per episode, on the call where the counter reaches
// MinConsecutive; the counter keeps climbing after that and no further alert
// is raised until a cold frame ends the episode. From a fresh detector the
// first alert therefore comes on call MinConsecutive+1: call 1 only stores
// the baseline.
//
// A detector holds the state of one stream and must not be shared between
// streams.
type AnomalyDetector struct {
	mu          sync.Mutex
	cfg         AnomalyConfig
	previous    gocv.Mat
	hasPrevious bool
	consecutive int
	alerted     bool
	lastScore   MotionScore
	now         func() time.Time
	logger      *logger.Logger
}

// NewAnomalyDetector creates a detector with no baseline frame.
func NewAnomalyDetector(cfg AnomalyConfig, logger *logger.Logger) *AnomalyDetector {
	return &AnomalyDetector{
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// Detect scores f against the previous frame and returns an alert when an
// anomaly is confirmed. The alert snapshot is f itself.
func (d *AnomalyDetector) Detect(f *frame.Frame) (*alert.Alert, error) {
	gray, err := f.GrayMat()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasPrevious {
		d.previous = gray
		d.hasPrevious = true
		d.logger.Info("Initialized motion baseline (%dx%d)", f.Width, f.Height)
		return nil, nil
	}

	if d.previous.Rows() != gray.Rows() || d.previous.Cols() != gray.Cols() {
		d.logger.Warning("Frame size changed from %dx%d to %dx%d - resetting motion baseline",
			d.previous.Cols(), d.previous.Rows(), gray.Cols(), gray.Rows())
		d.replacePrevious(gray)
		d.consecutive = 0
		d.alerted = false
		return nil, nil
	}

	score, err := scoreMotion(d.previous, gray, d.cfg.PixelThreshold)
	if err != nil {
		gray.Close()
		return nil, err
	}

	a := d.observe(score, f)
	d.replacePrevious(gray)
	return a, nil
}

// observe applies the debounce state machine to one score.
func (d *AnomalyDetector) observe(score MotionScore, f *frame.Frame) *alert.Alert {
	d.lastScore = score

	if !score.Hot(d.cfg) {
		if d.consecutive > 0 {
			d.logger.Debug("Motion settled after %d hot frame(s)", d.consecutive)
		}
		d.consecutive = 0
		d.alerted = false
		return nil
	}

	if d.consecutive < math.MaxInt32 {
		d.consecutive++
	}
	if d.alerted || d.consecutive < d.cfg.MinConsecutive {
		return nil
	}

	d.alerted = true
	combined := score.Combined(d.cfg.FlowScale)
	d.logger.Info("Anomaly confirmed after %d hot frames: diff=%d flow=%.2f score=%.0f",
		d.consecutive, score.Diff, score.Flow, combined)

	a := alert.New(alert.KindUnusualBehavior, combined, alert.Details{
		alert.DetailType: "Sudden motion or loitering",
		"diff_score":     score.Diff,
		"flow_score":     score.Flow,
	}, f, d.now())
	return &a
}

func (d *AnomalyDetector) replacePrevious(gray gocv.Mat) {
	d.previous.Close()
	d.previous = gray
}

// Consecutive returns the current run of hot frames.
func (d *AnomalyDetector) Consecutive() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consecutive
}

// LastScore returns the most recent motion score.
func (d *AnomalyDetector) LastScore() MotionScore {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastScore
}

// Config returns the thresholds in use.
func (d *AnomalyDetector) Config() AnomalyConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// SetConfig replaces the thresholds. The hot-frame run is kept.
func (d *AnomalyDetector) SetConfig(cfg AnomalyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	return nil
}

// Close releases the baseline frame.
func (d *AnomalyDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasPrevious {
		d.hasPrevious = false
		return d.previous.Close()
	}
	return nil
}

// scoreMotion compares two grayscale frames of equal size.
func scoreMotion(prev, cur gocv.Mat, pixelThreshold int) (MotionScore, error) {
	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.AbsDiff(prev, cur, &diff); err != nil {
		return MotionScore{}, fmt.Errorf("failed to compute absolute difference: %w", err)
	}

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, float32(pixelThreshold), 255, gocv.ThresholdBinary)
	changed := gocv.CountNonZero(thresh)

	flow := gocv.NewMat()
	defer flow.Close()
	gocv.CalcOpticalFlowFarneback(prev, cur, &flow, 0.5, 3, 15, 3, 5, 1.2, 0)
	if flow.Empty() {
		return MotionScore{}, fmt.Errorf("optical flow produced no output")
	}

	components := gocv.Split(flow)
	defer func() {
		for _, c := range components {
			c.Close()
		}
	}()
	if len(components) != 2 {
		return MotionScore{}, fmt.Errorf("optical flow has %d channels, want 2", len(components))
	}

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	angle := gocv.NewMat()
	defer angle.Close()
	gocv.CartToPolar(components[0], components[1], &magnitude, &angle, false)

	return MotionScore{Diff: changed, Flow: magnitude.Mean().Val1}, nil
}
