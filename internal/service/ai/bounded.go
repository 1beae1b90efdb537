package ai

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"watchtower/internal/frame"
)

var (
	// ErrDetectTimeout is returned when the wrapped detector overruns its budget.
	ErrDetectTimeout = errors.New("object detection timed out")
	// ErrDetectorBusy is returned while a previous, timed-out call is still running.
	ErrDetectorBusy = errors.New("object detector busy")
)

// BoundedDetector puts a time limit on an ObjectDetector that may not honour
// its context. An overrunning call is abandoned, not killed; until it
// returns, further calls fail fast with ErrDetectorBusy so at most one call
// is ever in flight.
type BoundedDetector struct {
	inner   ObjectDetector
	timeout time.Duration
	busy    atomic.Bool
}

// NewBoundedDetector wraps inner with a per-call timeout.
func NewBoundedDetector(inner ObjectDetector, timeout time.Duration) *BoundedDetector {
	return &BoundedDetector{inner: inner, timeout: timeout}
}

type detectResult struct {
	detections []Detection
	err        error
}

func (b *BoundedDetector) Detect(ctx context.Context, f *frame.Frame) ([]Detection, error) {
	if !b.busy.CompareAndSwap(false, true) {
		return nil, ErrDetectorBusy
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan detectResult, 1)
	go func() {
		var res detectResult
		defer func() {
			if r := recover(); r != nil {
				res = detectResult{err: fmt.Errorf("object detector panicked: %v", r)}
			}
			b.busy.Store(false)
			done <- res
		}()
		res.detections, res.err = b.inner.Detect(ctx, f)
	}()

	select {
	case res := <-done:
		return res.detections, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrDetectTimeout, b.timeout)
		}
		return nil, ctx.Err()
	}
}
