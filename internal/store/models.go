package store

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusActive    ExperimentStatus = "active"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
)

// Experiment is a multi-variant test definition. Definitions are written by
// the operator surface and read-only from the evaluation path.
type Experiment struct {
	ID                string
	Name              string
	Description       string
	Status            ExperimentStatus
	TrafficAllocation float64 // percent of eligible users included at all, 0-100
	Variants          []Variant
	Targeting         *Targeting
	PrimaryMetric     string
	SecondaryMetrics  []string
	StartAt           *time.Time
	EndAt             *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Variant is one arm of an experiment. Config is opaque to the engine; only
// the caller interprets its shape.
type Variant struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Allocation  float64         `json:"allocation"` // share of included traffic, 0-100
	Config      json.RawMessage `json:"config,omitempty"`
	IsControl   bool            `json:"is_control"`
}

// Targeting restricts an experiment or flag to a slice of the audience.
// Empty fields match everyone.
type Targeting struct {
	Platforms   []string `json:"platforms,omitempty"`
	MinVersion  string   `json:"min_version,omitempty"`
	MaxVersion  string   `json:"max_version,omitempty"`
	MinSessions *int     `json:"min_sessions,omitempty"`
	MaxSessions *int     `json:"max_sessions,omitempty"`
	Segments    []string `json:"segments,omitempty"`
}

// FeatureFlag is a single on/off or valued gate, independent of the
// experiment model: no variants, no sticky assignment.
type FeatureFlag struct {
	ID                string
	Name              string
	Enabled           bool
	RolloutPercentage float64 // 0-100
	Targeting         *Targeting
	Value             json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Assignment pins a user to a variant. The variant never changes after the
// first write; exposure and conversion fields are fast-path counters kept in
// step with the append-only event log.
type Assignment struct {
	UserID         string
	ExperimentID   string
	VariantID      string
	AssignedAt     time.Time
	ExposureCount  int
	LastExposureAt *time.Time
	Converted      bool
	ConvertedAt    *time.Time
}

type EventType string

const (
	EventExposure   EventType = "exposure"
	EventConversion EventType = "conversion"
	EventCustom     EventType = "custom"
)

// Event is one row of the append-only log. Events are never mutated or
// deleted except by ClearAll.
type Event struct {
	ID           string
	UserID       string
	ExperimentID string
	VariantID    string
	Type         EventType
	Name         string
	Value        *float64
	Metadata     map[string]string
	CreatedAt    time.Time
}

// VariantCounts are the raw tallies the results aggregator works from.
type VariantCounts struct {
	VariantID    string
	Participants int // assignments
	Exposures    int // exposure events
	Conversions  int // conversion events
}

// Dump is the full-data export used for debugging and data-deletion audits.
type Dump struct {
	ExportedAt   time.Time      `json:"exported_at"`
	Experiments  []*Experiment  `json:"experiments"`
	FeatureFlags []*FeatureFlag `json:"feature_flags"`
	Assignments  []*Assignment  `json:"assignments"`
	Events       []*Event       `json:"events"`
}

const allocationTolerance = 0.001

// Validate checks the invariants a well-formed definition must hold: at
// least two variants, exactly one control, allocations summing to 100.
// Evaluation never calls this; a malformed stored definition degrades to
// "no assignment" instead of failing.
func (e *Experiment) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("experiment id is required")
	}
	if len(e.Variants) < 2 {
		return fmt.Errorf("experiment %q needs at least 2 variants, got %d", e.ID, len(e.Variants))
	}
	if e.TrafficAllocation < 0 || e.TrafficAllocation > 100 {
		return fmt.Errorf("experiment %q traffic allocation %.2f out of range [0,100]", e.ID, e.TrafficAllocation)
	}

	sum := 0.0
	controls := 0
	seen := make(map[string]bool, len(e.Variants))
	for _, v := range e.Variants {
		if v.ID == "" {
			return fmt.Errorf("experiment %q has a variant with no id", e.ID)
		}
		if seen[v.ID] {
			return fmt.Errorf("experiment %q has duplicate variant id %q", e.ID, v.ID)
		}
		seen[v.ID] = true
		if v.Allocation < 0 {
			return fmt.Errorf("variant %q has negative allocation", v.ID)
		}
		sum += v.Allocation
		if v.IsControl {
			controls++
		}
	}
	if math.Abs(sum-100) > allocationTolerance {
		return fmt.Errorf("experiment %q variant allocations sum to %.2f, want 100", e.ID, sum)
	}
	if controls != 1 {
		return fmt.Errorf("experiment %q has %d control variants, want exactly 1", e.ID, controls)
	}
	return nil
}

// ControlVariant returns the control arm, or nil for a malformed definition.
func (e *Experiment) ControlVariant() *Variant {
	for i := range e.Variants {
		if e.Variants[i].IsControl {
			return &e.Variants[i]
		}
	}
	return nil
}

// VariantByID returns the named variant, or nil.
func (e *Experiment) VariantByID(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// Validate checks a flag definition before it is stored.
func (f *FeatureFlag) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("flag id is required")
	}
	if f.RolloutPercentage < 0 || f.RolloutPercentage > 100 {
		return fmt.Errorf("flag %q rollout %.2f out of range [0,100]", f.ID, f.RolloutPercentage)
	}
	return nil
}
