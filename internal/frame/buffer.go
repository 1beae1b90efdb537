package frame

import "sync"

// Buffer is a single-slot, latest-value-wins mailbox for frames.
//
// Set never waits for readers: the copy is made before the lock is taken and
// the lock only guards a pointer swap. Get copies after the lock is released,
// which is safe because a stored frame is never mutated.
type Buffer struct {
	mu     sync.Mutex
	frame  *Frame
	seq    uint64
	notify chan struct{}
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{notify: make(chan struct{})}
}

// Set stores a copy of f, replacing whatever was there.
func (b *Buffer) Set(f *Frame) {
	if f == nil {
		return
	}
	owned := f.Clone()

	b.mu.Lock()
	b.frame = owned
	b.seq++
	wake := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()

	close(wake)
}

// Get returns an independent copy of the latest frame, or false if nothing
// has been stored yet.
func (b *Buffer) Get() (*Frame, bool) {
	f, _, ok := b.Latest()
	return f, ok
}

// Latest is Get plus the sequence number of the returned frame.
func (b *Buffer) Latest() (*Frame, uint64, bool) {
	b.mu.Lock()
	f, seq := b.frame, b.seq
	b.mu.Unlock()

	if f == nil {
		return nil, 0, false
	}
	return f.Clone(), seq, true
}

// Seq returns the number of frames stored so far.
func (b *Buffer) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Updated returns a channel that is closed by the next Set.
func (b *Buffer) Updated() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notify
}
