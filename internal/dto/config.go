package dto

import "watchtower/internal/service/ai"

// ConfigResponse is the runtime tunable configuration.
type ConfigResponse struct {
	Anomaly             ai.AnomalyConfig `json:"anomaly"`
	ConfidenceThreshold float64          `json:"confidence_threshold"`
	WeaponLabels        []string         `json:"weapon_labels"`
	TrackedLabels       []string         `json:"tracked_labels"`
}

// ConfigUpdate is the body of PUT /api/config. Omitted fields keep their
// current value.
type ConfigUpdate struct {
	DiffThreshold       *int     `json:"diff_threshold"`
	FlowThreshold       *float64 `json:"flow_threshold"`
	MinConsecutive      *int     `json:"min_consecutive"`
	PixelThreshold      *int     `json:"pixel_threshold"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	WeaponLabels        []string `json:"weapon_labels"`
	TrackedLabels       []string `json:"tracked_labels"`
}

// ApplyAnomaly returns cfg with the anomaly fields of u applied.
func (u ConfigUpdate) ApplyAnomaly(cfg ai.AnomalyConfig) ai.AnomalyConfig {
	if u.DiffThreshold != nil {
		cfg.DiffThreshold = *u.DiffThreshold
	}
	if u.FlowThreshold != nil {
		cfg.FlowThreshold = *u.FlowThreshold
	}
	if u.MinConsecutive != nil {
		cfg.MinConsecutive = *u.MinConsecutive
	}
	if u.PixelThreshold != nil {
		cfg.PixelThreshold = *u.PixelThreshold
	}
	return cfg
}

// TouchesPolicy reports whether u changes the label policy.
func (u ConfigUpdate) TouchesPolicy() bool {
	return u.ConfidenceThreshold != nil || u.WeaponLabels != nil || u.TrackedLabels != nil
}
