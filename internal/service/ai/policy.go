package ai

import "strings"

// Class is what the pipeline does with a detection.
type Class int

const (
	// ClassIgnored detections are dropped: below the confidence floor or
	// outside the allowlist.
	ClassIgnored Class = iota
	// ClassTracked detections are drawn on the frame, no alert.
	ClassTracked
	// ClassWeapon detections raise an alert.
	ClassWeapon
)

func (c Class) String() string {
	switch c {
	case ClassTracked:
		return "tracked"
	case ClassWeapon:
		return "weapon"
	default:
		return "ignored"
	}
}

// LabelPolicy filters detections by confidence and a fixed label allowlist.
type LabelPolicy struct {
	MinConfidence float64
	weapons       map[string]struct{}
	tracked       map[string]struct{}
}

// NewLabelPolicy builds a policy. Labels are matched case-insensitively; a
// label listed in both sets is treated as a weapon.
func NewLabelPolicy(minConfidence float64, weapons, tracked []string) LabelPolicy {
	return LabelPolicy{
		MinConfidence: minConfidence,
		weapons:       labelSet(weapons),
		tracked:       labelSet(tracked),
	}
}

// Classify decides what to do with d. The confidence floor is strict.
func (p LabelPolicy) Classify(d Detection) Class {
	if d.Confidence <= p.MinConfidence {
		return ClassIgnored
	}
	label := normalizeLabel(d.Label)
	if _, ok := p.weapons[label]; ok {
		return ClassWeapon
	}
	if _, ok := p.tracked[label]; ok {
		return ClassTracked
	}
	return ClassIgnored
}

// Weapons returns the weapon labels, for status output.
func (p LabelPolicy) Weapons() []string { return setKeys(p.weapons) }

// Tracked returns the tracked labels, for status output.
func (p LabelPolicy) Tracked() []string { return setKeys(p.tracked) }

func labelSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l = normalizeLabel(l); l != "" {
			set[l] = struct{}{}
		}
	}
	return set
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
