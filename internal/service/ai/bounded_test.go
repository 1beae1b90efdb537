package ai

import (
	"context"
	"errors"
	"testing"
	"time"
	"watchtower/internal/frame"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	detections []Detection
	err        error
	release    chan struct{}
	panic      bool
}

func (s *stubDetector) Detect(_ context.Context, _ *frame.Frame) ([]Detection, error) {
	if s.release != nil {
		<-s.release
	}
	if s.panic {
		panic("model crashed")
	}
	return s.detections, s.err
}

func TestBoundedDetectorPassesThrough(t *testing.T) {
	want := []Detection{{Label: "knife", Confidence: 0.9}}
	b := NewBoundedDetector(&stubDetector{detections: want}, time.Second)

	got, err := b.Detect(context.Background(), frame.New(2, 2))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	inner := errors.New("inference failed")
	b = NewBoundedDetector(&stubDetector{err: inner}, time.Second)
	_, err = b.Detect(context.Background(), frame.New(2, 2))
	assert.ErrorIs(t, err, inner)
}

func TestBoundedDetectorTimeoutThenBusy(t *testing.T) {
	stub := &stubDetector{release: make(chan struct{})}
	b := NewBoundedDetector(stub, 20*time.Millisecond)

	_, err := b.Detect(context.Background(), frame.New(2, 2))
	assert.ErrorIs(t, err, ErrDetectTimeout)

	_, err = b.Detect(context.Background(), frame.New(2, 2))
	assert.ErrorIs(t, err, ErrDetectorBusy)

	close(stub.release)
	assert.Eventually(t, func() bool {
		_, err := b.Detect(context.Background(), frame.New(2, 2))
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestBoundedDetectorRecoversPanic(t *testing.T) {
	b := NewBoundedDetector(&stubDetector{panic: true}, time.Second)

	_, err := b.Detect(context.Background(), frame.New(2, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	_, err = b.Detect(context.Background(), frame.New(2, 2))
	assert.NotErrorIs(t, err, ErrDetectorBusy)
}

func TestBoundedDetectorCanceledContext(t *testing.T) {
	stub := &stubDetector{release: make(chan struct{})}
	defer close(stub.release)
	b := NewBoundedDetector(stub, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Detect(ctx, frame.New(2, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoopDetector(t *testing.T) {
	got, err := NoopDetector{}.Detect(context.Background(), frame.New(2, 2))
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestClassLabel(t *testing.T) {
	assert.Equal(t, "person", ClassLabel(1))
	assert.Equal(t, "knife", ClassLabel(49))
	assert.Equal(t, "unknown500", ClassLabel(500))
}
