package store

import (
	"context"
	"time"
)

// Store is the persistence surface for definitions, assignments, events and
// settings. Implementations must make InsertAssignment an insert-if-absent
// operation so concurrent first evaluations resolve to a single variant.
type Store interface {
	// Experiment definitions
	CreateExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpdateExperimentStatus(ctx context.Context, id string, status ExperimentStatus) error
	DeleteExperiment(ctx context.Context, id string) error

	// Feature flags
	CreateFlag(ctx context.Context, flag *FeatureFlag) error
	GetFlag(ctx context.Context, id string) (*FeatureFlag, error)
	ListFlags(ctx context.Context) ([]*FeatureFlag, error)
	UpdateFlag(ctx context.Context, flag *FeatureFlag) error
	DeleteFlag(ctx context.Context, id string) error

	// Assignments. InsertAssignment returns the stored row, which is the
	// caller's row only if no assignment existed for (user, experiment).
	InsertAssignment(ctx context.Context, a *Assignment) (*Assignment, error)
	GetAssignment(ctx context.Context, userID, experimentID string) (*Assignment, error)
	RecordExposure(ctx context.Context, userID, experimentID string, at time.Time) error
	// MarkConverted flips the converted flag and reports whether this call
	// was the first conversion for the pair.
	MarkConverted(ctx context.Context, userID, experimentID string, at time.Time) (bool, error)

	// Events
	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, experimentID string) ([]*Event, error)
	VariantCounts(ctx context.Context, experimentID string) ([]VariantCounts, error)

	// Settings (installation id and similar single-value records)
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Bulk
	ExportAll(ctx context.Context) (*Dump, error)
	ClearAll(ctx context.Context) error

	// Lifecycle
	Close() error
}
