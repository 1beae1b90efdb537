package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"watchtower/internal/frame"
	"watchtower/internal/logger"
)

var (
	// ErrSourceUnavailable is returned when the camera cannot be opened.
	ErrSourceUnavailable = errors.New("camera source unavailable")
	// ErrReadFailure marks a single failed read. The capture loop skips it.
	ErrReadFailure = errors.New("camera read failed")
)

const (
	failureBurst   = 10
	failurePause   = 100 * time.Millisecond
	maxOpenBackoff = 30 * time.Second
)

// Stats is a snapshot of the capture counters.
type Stats struct {
	Open         bool      `json:"open"`
	Captured     uint64    `json:"frames_captured"`
	ReadFailures uint64    `json:"read_failures"`
	LastFrameAt  time.Time `json:"last_frame_at"`
}

// Source captures frames from one camera into the raw buffer.
type Source struct {
	locator string
	name    string
	raw     *frame.Buffer
	open    Opener
	logger  *logger.Logger

	mu     sync.Mutex
	reader FrameReader

	captured  atomic.Uint64
	failures  atomic.Uint64
	lastFrame atomic.Int64
}

// NewSource creates a closed source for locator that writes into raw.
func NewSource(name, locator string, raw *frame.Buffer, logger *logger.Logger) *Source {
	return &Source{
		locator: locator,
		name:    name,
		raw:     raw,
		open:    OpenReader,
		logger:  logger.With("camera", name),
	}
}

// Name returns the camera name.
func (s *Source) Name() string { return s.name }

// Open opens the locator, replacing any reader already open.
func (s *Source) Open() error {
	reader, err := s.open(s.locator)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.locator, err)
	}

	s.mu.Lock()
	previous := s.reader
	s.reader = reader
	s.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	s.logger.Info("Opened camera source %s", s.locator)
	return nil
}

// OpenWithRetry calls Open up to attempts times, doubling the wait between
// attempts starting at backoff.
func (s *Source) OpenWithRetry(ctx context.Context, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = s.Open(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		s.logger.Warning("Open attempt %d/%d failed: %v - retrying in %s", attempt, attempts, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxOpenBackoff)
	}

	s.logger.Error("Giving up on camera source after %d attempts: %v", attempts, err)
	return err
}

// CaptureLoop reads frames into the raw buffer until ctx is cancelled. Read
// failures are skipped; a long run of them slows the loop down.
func (s *Source) CaptureLoop(ctx context.Context) error {
	s.logger.Info("Capture loop started")
	defer s.logger.Info("Capture loop stopped")

	consecutive := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := s.readOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.failures.Add(1)
			consecutive++
			s.logger.Debug("Skipping frame: %v", err)
			if consecutive%failureBurst == 0 {
				s.logger.Warning("%d consecutive read failures", consecutive)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(failurePause):
				}
			}
			continue
		}

		consecutive = 0
		if f.CapturedAt.IsZero() {
			f.CapturedAt = time.Now()
		}
		s.raw.Set(f)
		s.captured.Add(1)
		s.lastFrame.Store(f.CapturedAt.UnixNano())
	}
}

func (s *Source) readOnce(ctx context.Context) (f *frame.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("%w: reader panicked: %v", ErrReadFailure, r)
		}
	}()

	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return nil, fmt.Errorf("%w: source not open", ErrReadFailure)
	}

	f, err = reader.Read(ctx)
	if err != nil {
		return nil, err
	}
	if f.Empty() {
		return nil, fmt.Errorf("%w: %w", ErrReadFailure, frame.ErrEmptyFrame)
	}
	return f, nil
}

// Stats returns the capture counters.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	open := s.reader != nil
	s.mu.Unlock()

	st := Stats{
		Open:         open,
		Captured:     s.captured.Load(),
		ReadFailures: s.failures.Load(),
	}
	if ns := s.lastFrame.Load(); ns != 0 {
		st.LastFrameAt = time.Unix(0, ns)
	}
	return st
}

// Close releases the reader. The source can be opened again.
func (s *Source) Close() error {
	s.mu.Lock()
	reader := s.reader
	s.reader = nil
	s.mu.Unlock()

	if reader == nil {
		return nil
	}
	s.logger.Info("Closing camera source")
	return reader.Close()
}
