package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"watchtower/internal/frame"
	"watchtower/internal/logger"
	"watchtower/internal/service/ai"
	"watchtower/internal/service/alert"
)

// ErrDetectionFailure marks an abandoned iteration. Nothing is written and
// no alert is sent for that frame.
var ErrDetectionFailure = errors.New("detection failed")

// AnomalyScorer is the stateful motion stage.
type AnomalyScorer interface {
	Detect(f *frame.Frame) (*alert.Alert, error)
}

// Submitter accepts alerts for asynchronous delivery.
type Submitter interface {
	Submit(a alert.Alert) <-chan error
}

// Config holds the pipeline settings.
type Config struct {
	Camera      string
	IdleBackoff time.Duration
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Running          bool      `json:"running"`
	Iterations       uint64    `json:"iterations"`
	FramesProcessed  uint64    `json:"frames_processed"`
	FramesFailed     uint64    `json:"frames_failed"`
	AlertsRaised     uint64    `json:"alerts_raised"`
	DispatchFailures uint64    `json:"dispatch_failures"`
	DetectorSkipped  uint64    `json:"detector_skipped"`
	AnnotateFailures uint64    `json:"annotate_failures"`
	LastFrameAt      time.Time `json:"last_frame_at"`
}

// Pipeline takes the newest raw frame, runs both detectors on it, publishes
// the annotated frame and hands alerts to the dispatcher.
type Pipeline struct {
	cfg        Config
	raw        *frame.Buffer
	annotated  *frame.Buffer
	objects    ai.ObjectDetector
	anomaly    AnomalyScorer
	dispatcher Submitter
	policy     atomic.Pointer[ai.LabelPolicy]
	annotate   func(*frame.Frame, ai.Overlay) (*frame.Frame, error)
	now        func() time.Time
	logger     *logger.Logger

	running          atomic.Bool
	heartbeat        atomic.Int64
	iterations       atomic.Uint64
	processed        atomic.Uint64
	failed           atomic.Uint64
	alertsRaised     atomic.Uint64
	dispatchFailures atomic.Uint64
	detectorSkipped  atomic.Uint64
	annotateFailures atomic.Uint64
	lastFrame        atomic.Int64
}

// New wires a pipeline between the raw and annotated buffers.
func New(
	cfg Config,
	raw, annotated *frame.Buffer,
	objects ai.ObjectDetector,
	anomaly AnomalyScorer,
	policy ai.LabelPolicy,
	dispatcher Submitter,
	logger *logger.Logger,
) *Pipeline {
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = 10 * time.Millisecond
	}
	p := &Pipeline{
		cfg:        cfg,
		raw:        raw,
		annotated:  annotated,
		objects:    objects,
		anomaly:    anomaly,
		dispatcher: dispatcher,
		annotate:   ai.Annotate,
		now:        time.Now,
		logger:     logger.With("component", "pipeline"),
	}
	p.policy.Store(&policy)
	return p
}

// Policy returns the label policy in use.
func (p *Pipeline) Policy() ai.LabelPolicy {
	return *p.policy.Load()
}

// SetPolicy swaps the label policy; the next frame uses it.
func (p *Pipeline) SetPolicy(policy ai.LabelPolicy) {
	p.policy.Store(&policy)
}

// Run processes frames until ctx is cancelled. Each raw frame is processed
// at most once; frames that arrive while one is being processed are skipped
// except for the newest.
func (p *Pipeline) Run(ctx context.Context) error {
	p.running.Store(true)
	defer p.running.Store(false)
	p.logger.Info("Detection loop started")
	defer p.logger.Info("Detection loop stopped")

	idle := time.NewTimer(p.cfg.IdleBackoff)
	defer idle.Stop()

	var lastSeq uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.heartbeat.Store(p.now().UnixNano())

		// Grab the notify channel first so a Set between the two calls is not missed.
		updated := p.raw.Updated()
		f, seq, ok := p.raw.Latest()
		if !ok || seq == lastSeq {
			idle.Reset(p.cfg.IdleBackoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-updated:
			case <-idle.C:
			}
			continue
		}
		lastSeq = seq

		p.iterations.Add(1)
		if _, err := p.ProcessFrame(ctx, f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.failed.Add(1)
			p.logger.Warning("Skipping frame %d: %v", seq, err)
		}
	}
}

// ProcessFrame runs one detection iteration on f. On success the annotated
// frame has been published once and the returned alerts, object alerts
// first, have been submitted in that order.
func (p *Pipeline) ProcessFrame(ctx context.Context, f *frame.Frame) (alerts []alert.Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			alerts, err = nil, fmt.Errorf("%w: panic: %v", ErrDetectionFailure, r)
		}
	}()

	// A busy detector is still working on an older frame; motion analysis
	// goes ahead without object detections.
	detections, err := p.objects.Detect(ctx, f)
	if errors.Is(err, ai.ErrDetectorBusy) {
		p.detectorSkipped.Add(1)
		p.logger.Debug("Object detector busy - no detections for this frame")
		detections = nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: object detection: %w", ErrDetectionFailure, err)
	}
	anomaly, err := p.anomaly.Detect(f)
	if err != nil {
		return nil, fmt.Errorf("%w: anomaly detection: %w", ErrDetectionFailure, err)
	}

	policy := p.Policy()
	now := p.now()
	var overlay ai.Overlay
	for _, det := range detections {
		switch policy.Classify(det) {
		case ai.ClassWeapon:
			overlay.Marks = append(overlay.Marks, ai.MarkFor(det, ai.Red))
			alerts = append(alerts, alert.New(alert.KindWeaponDetected, det.Confidence, alert.Details{
				alert.DetailType:       det.Label,
				alert.DetailConfidence: det.Confidence,
				alert.DetailCamera:     p.cfg.Camera,
			}, nil, now))
		case ai.ClassTracked:
			overlay.Marks = append(overlay.Marks, ai.MarkFor(det, ai.Green))
		}
	}
	if anomaly != nil {
		overlay.Banner = ai.AnomalyBanner
		anomaly.Details[alert.DetailCamera] = p.cfg.Camera
		alerts = append(alerts, *anomaly)
	}

	// The anomaly detector has already committed its episode state, so a
	// drawing failure publishes the plain frame rather than losing alerts.
	annotated, err := p.annotate(f, overlay)
	if err != nil {
		p.annotateFailures.Add(1)
		p.logger.Warning("Publishing unannotated frame: %v", err)
		annotated = f.Clone()
	}
	for i := range alerts {
		alerts[i] = alerts[i].WithSnapshot(annotated)
	}

	p.annotated.Set(annotated)
	p.processed.Add(1)
	p.lastFrame.Store(f.CapturedAt.UnixNano())

	for _, a := range alerts {
		p.submit(a)
	}
	return alerts, nil
}

func (p *Pipeline) submit(a alert.Alert) {
	p.alertsRaised.Add(1)
	p.logger.Info("Raised %s alert %s (score %.2f)", a.Kind, a.ID, a.Score())

	result := p.dispatcher.Submit(a)
	go func() {
		if err := <-result; err != nil {
			p.dispatchFailures.Add(1)
		}
	}()
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	st := Stats{
		Running:          p.running.Load(),
		Iterations:       p.iterations.Load(),
		FramesProcessed:  p.processed.Load(),
		FramesFailed:     p.failed.Load(),
		AlertsRaised:     p.alertsRaised.Load(),
		DispatchFailures: p.dispatchFailures.Load(),
		DetectorSkipped:  p.detectorSkipped.Load(),
		AnnotateFailures: p.annotateFailures.Load(),
	}
	if ns := p.lastFrame.Load(); ns != 0 {
		st.LastFrameAt = time.Unix(0, ns)
	}
	return st
}

// Alive reports whether the loop is running and has gone round within maxIdle.
func (p *Pipeline) Alive(maxIdle time.Duration) bool {
	if !p.running.Load() {
		return false
	}
	last := time.Unix(0, p.heartbeat.Load())
	return p.now().Sub(last) <= maxIdle
}
