package alert

import (
	"context"
	"sync"
	"time"
)

// Summary is the snapshot-free record of an alert kept by the Journal.
type Summary struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Score     float64   `json:"score"`
	Timestamp string    `json:"timestamp"`
	RaisedAt  time.Time `json:"raised_at"`
	Details   Details   `json:"details"`
}

// Summary drops the snapshot and copies the details.
func (a Alert) Summary() Summary {
	details := make(Details, len(a.Details))
	for k, v := range a.Details {
		details[k] = v
	}
	ts, _ := a.Details[DetailTimestamp].(string)
	return Summary{
		ID:        a.ID,
		Kind:      a.Kind,
		Score:     a.Score(),
		Timestamp: ts,
		RaisedAt:  a.RaisedAt,
		Details:   details,
	}
}

// Journal keeps the most recent alert summaries in memory for the status UI.
// It is a Sender so it sits behind the dispatcher like any other channel.
type Journal struct {
	mu      sync.RWMutex
	entries []Summary
	next    int
	full    bool
}

// NewJournal keeps up to capacity summaries.
func NewJournal(capacity int) *Journal {
	if capacity < 1 {
		capacity = 1
	}
	return &Journal{entries: make([]Summary, capacity)}
}

func (j *Journal) Name() string { return "journal" }

func (j *Journal) Send(_ context.Context, a Alert) error {
	summary := a.Summary()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[j.next] = summary
	j.next = (j.next + 1) % len(j.entries)
	if j.next == 0 {
		j.full = true
	}
	return nil
}

// Recent returns up to limit summaries, newest first. limit <= 0 means all.
func (j *Journal) Recent(limit int) []Summary {
	j.mu.RLock()
	defer j.mu.RUnlock()

	n := j.next
	if j.full {
		n = len(j.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Summary, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (j.next - 1 - i + len(j.entries)) % len(j.entries)
		out = append(out, j.entries[idx])
	}
	return out
}

// Len returns the number of summaries held.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.full {
		return len(j.entries)
	}
	return j.next
}
