package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"watchtower/internal/frame"
	"watchtower/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu    sync.Mutex
	kinds []Kind
	err   error
	block chan struct{}
	panic bool
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(ctx context.Context, a Alert) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.panic {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, a.Kind)
	return s.err
}

func (s *recordingSender) received() []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Kind(nil), s.kinds...)
}

func await(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch result not delivered")
		return nil
	}
}

func startDispatcher(t *testing.T, sender Sender, cfg DispatcherConfig) *Dispatcher {
	t.Helper()
	d := NewDispatcher(sender, cfg, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d
}

func testAlert(kind Kind) Alert {
	return New(kind, 42, nil, frame.New(2, 2), time.Now())
}

func TestDispatcher_DeliversInOrderWithSingleWorker(t *testing.T) {
	sender := &recordingSender{}
	d := startDispatcher(t, sender, DispatcherConfig{Workers: 1, QueueSize: 8, SendTimeout: time.Second})

	first := d.Submit(testAlert(KindWeaponDetected))
	second := d.Submit(testAlert(KindUnusualBehavior))

	require.NoError(t, await(t, first))
	require.NoError(t, await(t, second))
	assert.Equal(t, []Kind{KindWeaponDetected, KindUnusualBehavior}, sender.received())

	stats := d.Stats()
	assert.Equal(t, int64(2), stats.Submitted)
	assert.Equal(t, int64(2), stats.Delivered)
}

func TestDispatcher_FailureIsReportedNotRetried(t *testing.T) {
	sender := &recordingSender{err: errors.New("network down")}
	d := startDispatcher(t, sender, DispatcherConfig{Workers: 1, QueueSize: 4, SendTimeout: time.Second})

	err := await(t, d.Submit(testAlert(KindUnusualBehavior)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDispatchFailure)
	assert.Contains(t, err.Error(), "network down")
	assert.Len(t, sender.received(), 1)
	assert.Equal(t, int64(1), d.Stats().Failed)
}

func TestDispatcher_PanickingSender(t *testing.T) {
	d := startDispatcher(t, &recordingSender{panic: true}, DispatcherConfig{Workers: 1, QueueSize: 4, SendTimeout: time.Second})

	err := await(t, d.Submit(testAlert(KindUnusualBehavior)))
	assert.ErrorIs(t, err, ErrDispatchFailure)

	// The worker survives the panic.
	err = await(t, d.Submit(testAlert(KindUnusualBehavior)))
	assert.ErrorIs(t, err, ErrDispatchFailure)
}

func TestDispatcher_SendTimeout(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	d := startDispatcher(t, sender, DispatcherConfig{Workers: 1, QueueSize: 4, SendTimeout: 20 * time.Millisecond})

	err := await(t, d.Submit(testAlert(KindUnusualBehavior)))
	assert.ErrorIs(t, err, ErrDispatchFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_SubmitNeverBlocks(t *testing.T) {
	// No workers running: the queue fills and further alerts are dropped.
	d := NewDispatcher(&recordingSender{}, DispatcherConfig{Workers: 1, QueueSize: 2}, logger.NewNop())

	d.Submit(testAlert(KindUnusualBehavior))
	d.Submit(testAlert(KindUnusualBehavior))

	start := time.Now()
	err := await(t, d.Submit(testAlert(KindUnusualBehavior)))
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), d.Stats().Dropped)
}

func TestDispatcher_RunResolvesQueuedOnStop(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, QueueSize: 4, SendTimeout: time.Minute}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	inFlight := d.Submit(testAlert(KindUnusualBehavior))
	time.Sleep(20 * time.Millisecond)
	queued := d.Submit(testAlert(KindUnusualBehavior))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.ErrorIs(t, await(t, inFlight), ErrDispatchFailure)
	assert.ErrorIs(t, await(t, queued), ErrDispatchFailure)
}

func TestDispatcher_SubmitAfterStopResolves(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, QueueSize: 4, SendTimeout: time.Second}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	err := await(t, d.Submit(testAlert(KindWeaponDetected)))
	assert.ErrorIs(t, err, ErrDispatchFailure)
	assert.Contains(t, err.Error(), "dispatcher stopped")
	assert.Empty(t, sender.received())
	assert.EqualValues(t, 1, d.Stats().Dropped)
}

func TestMultiSender(t *testing.T) {
	ok := &recordingSender{}
	bad := &recordingSender{err: errors.New("refused")}
	multi := MultiSender{bad, ok}

	err := multi.Send(context.Background(), testAlert(KindWeaponDetected))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording: refused")
	assert.Len(t, ok.received(), 1, "later senders still run after a failure")
	assert.Equal(t, "recording+recording", multi.Name())
	assert.Equal(t, "none", MultiSender{}.Name())
}
