package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"watchtower/internal/logger"
)

var (
	// ErrDispatchFailure marks an alert that a sender could not deliver.
	ErrDispatchFailure = errors.New("alert dispatch failed")
	// ErrQueueFull marks an alert dropped because the dispatch queue was full.
	ErrQueueFull = errors.New("alert queue full")
)

// Sender delivers a single alert to an external channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// DispatcherConfig sizes the worker pool and bounds each delivery.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// DispatchStats counts delivery outcomes since start.
type DispatchStats struct {
	Submitted int64 `json:"submitted"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Dispatcher delivers alerts asynchronously. Submit never blocks the caller;
// delivery happens on a pool of workers started by Run. There is no retry:
// a failed or dropped alert is logged and discarded.
type Dispatcher struct {
	sender Sender
	cfg    DispatcherConfig
	queue  chan task
	logger *logger.Logger

	mu      sync.RWMutex
	stopped bool

	submitted atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

type task struct {
	alert  Alert
	result chan error
}

// NewDispatcher creates a dispatcher in front of sender.
func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *logger.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		sender: sender,
		cfg:    cfg,
		queue:  make(chan task, cfg.QueueSize),
		logger: logger,
	}
}

// Submit queues a for delivery and returns a channel that receives exactly
// one value: nil on success, otherwise an error wrapping ErrDispatchFailure
// or ErrQueueFull. Callers may ignore the channel.
func (d *Dispatcher) Submit(a Alert) <-chan error {
	d.submitted.Add(1)
	result := make(chan error, 1)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.dropped.Add(1)
		result <- fmt.Errorf("%w: %s alert %s: dispatcher stopped", ErrDispatchFailure, a.Kind, a.ID)
		return result
	}

	select {
	case d.queue <- task{alert: a, result: result}:
	default:
		d.dropped.Add(1)
		d.logger.Warning("Alert queue full - dropping %s alert %s", a.Kind, a.ID)
		result <- fmt.Errorf("%w: %s alert %s", ErrQueueFull, a.Kind, a.ID)
	}
	return result
}

// Run starts the workers and blocks until ctx is cancelled. Alerts still
// queued at that point are resolved with the context error, and alerts
// submitted afterwards are resolved immediately. Run must be called once.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			d.worker(ctx, workerID)
		}(i)
	}

	d.logger.Info("Alert dispatcher started with %d worker(s) via %s", d.cfg.Workers, d.sender.Name())
	wg.Wait()

	// Submit holds the read lock while enqueueing, so nothing lands in the
	// queue after this point.
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	for {
		select {
		case t := <-d.queue:
			d.dropped.Add(1)
			t.result <- fmt.Errorf("%w: %s alert %s: %w", ErrDispatchFailure, t.alert.Kind, t.alert.ID, ctx.Err())
		default:
			d.logger.Info("Alert dispatcher stopped")
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.queue:
			t.result <- d.deliver(ctx, t.alert, workerID)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a Alert, workerID int) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	if err := d.safeSend(sendCtx, a); err != nil {
		d.failed.Add(1)
		d.logger.Error("Worker %d failed to deliver %s alert %s via %s: %v", workerID, a.Kind, a.ID, d.sender.Name(), err)
		return fmt.Errorf("%w: %s alert %s via %s: %w", ErrDispatchFailure, a.Kind, a.ID, d.sender.Name(), err)
	}

	d.delivered.Add(1)
	d.logger.Info("Delivered %s alert %s via %s in %s", a.Kind, a.ID, d.sender.Name(), time.Since(start).Round(time.Millisecond))
	return nil
}

// safeSend turns a panicking sender into an error.
func (d *Dispatcher) safeSend(ctx context.Context, a Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return d.sender.Send(ctx, a)
}

// Stats returns delivery counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Submitted: d.submitted.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// MultiSender fans an alert out to several senders. Every sender is tried;
// the errors of the ones that failed are joined.
type MultiSender []Sender

func (m MultiSender) Name() string {
	if len(m) == 0 {
		return "none"
	}
	name := m[0].Name()
	for _, s := range m[1:] {
		name += "+" + s.Name()
	}
	return name
}

func (m MultiSender) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
