package alert

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"watchtower/internal/frame"

	"github.com/google/uuid"
)

// Kind names the category of an alert.
type Kind string

const (
	KindUnusualBehavior Kind = "Unusual Behavior"
	KindWeaponDetected  Kind = "Weapon Detected"
)

// Well-known detail keys.
const (
	DetailScore      = "score"
	DetailTimestamp  = "timestamp"
	DetailType       = "type"
	DetailConfidence = "confidence"
	DetailCamera     = "camera"
)

// TimestampLayout formats DetailTimestamp values.
const TimestampLayout = "20060102_150405"

// Details carries kind-specific values. Score and timestamp are always set.
type Details map[string]any

// Alert is a confirmed event plus the frame it was raised on. The snapshot
// is shared between senders and must not be modified.
type Alert struct {
	ID       string
	Kind     Kind
	Details  Details
	Snapshot *frame.Frame
	RaisedAt time.Time
}

// New builds an alert, filling in the ID and the score and timestamp details.
func New(kind Kind, score float64, details Details, snapshot *frame.Frame, at time.Time) Alert {
	d := make(Details, len(details)+2)
	for k, v := range details {
		d[k] = v
	}
	d[DetailScore] = score
	d[DetailTimestamp] = at.Format(TimestampLayout)

	return Alert{
		ID:       uuid.NewString(),
		Kind:     kind,
		Details:  d,
		Snapshot: snapshot,
		RaisedAt: at,
	}
}

// Score returns the numeric score detail.
func (a Alert) Score() float64 {
	switch v := a.Details[DetailScore].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Caption renders the alert as a short human readable message.
func (a Alert) Caption() string {
	keys := make([]string, 0, len(a.Details))
	for k := range a.Details {
		if k == DetailTimestamp {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, formatValue(a.Details[k])))
	}
	return fmt.Sprintf("🚨 %s\nDetails: %s\nTime: %v", a.Kind, strings.Join(parts, ", "), a.Details[DetailTimestamp])
}

// WithSnapshot returns a copy of the alert pointing at a different snapshot.
func (a Alert) WithSnapshot(f *frame.Frame) Alert {
	a.Snapshot = f
	return a
}

func formatValue(v any) any {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.2f", f)
	}
	return v
}
