// Package engine is the experimentation core: deterministic assignment of
// users to experiment variants, feature-flag gating, event recording and
// result aggregation. One Engine is constructed at application start and
// passed to call sites; there is no package-level state.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carsuggester/roadtest/internal/bucket"
	"github.com/carsuggester/roadtest/internal/stats"
	"github.com/carsuggester/roadtest/internal/store"
)

type Engine struct {
	store     store.Store
	log       zerolog.Logger
	minSample int

	// cache holds assignments already decided this session. It is the fast
	// path for repeat evaluations and keeps decisions stable when storage
	// writes fail: evaluation never errors out to the caller, it degrades
	// to memory-only until storage recovers.
	mu    sync.Mutex
	cache map[cacheKey]*store.Assignment
}

type cacheKey struct {
	userID       string
	experimentID string
}

func New(s store.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     s,
		log:       logger,
		minSample: stats.DefaultMinSample,
		cache:     make(map[cacheKey]*store.Assignment),
	}
}

// SetMinSample overrides the participant floor used for recommendations.
func (e *Engine) SetMinSample(n int) {
	e.minSample = n
}

// GetVariant evaluates the experiment for a user and returns the assigned
// variant id. ok is false when the user gets no assignment: unknown or
// non-active experiment, excluded by traffic allocation, targeting
// mismatch, or a malformed definition. Failures degrade to no assignment;
// this never panics or surfaces storage errors to UI code.
func (e *Engine) GetVariant(ctx context.Context, userID, experimentID string, c Context) (string, bool) {
	a, _ := e.evaluate(ctx, userID, experimentID, c)
	if a == nil {
		return "", false
	}
	return a.VariantID, true
}

// GetVariantConfig evaluates the experiment and returns the assigned
// variant's opaque config payload. The engine never inspects the payload.
func (e *Engine) GetVariantConfig(ctx context.Context, userID, experimentID string, c Context) (json.RawMessage, bool) {
	_, config, ok := e.Evaluate(ctx, userID, experimentID, c)
	return config, ok
}

// Evaluate returns the assigned variant id and its config payload from a
// single evaluation, recording exactly one exposure. Surfaces that need
// both must use this instead of calling GetVariant and GetVariantConfig
// back to back, which would count the user twice.
func (e *Engine) Evaluate(ctx context.Context, userID, experimentID string, c Context) (string, json.RawMessage, bool) {
	a, exp := e.evaluate(ctx, userID, experimentID, c)
	if a == nil {
		return "", nil, false
	}
	var config json.RawMessage
	if exp != nil {
		if v := exp.VariantByID(a.VariantID); v != nil {
			config = v.Config
		}
	}
	return a.VariantID, config, true
}

// evaluate runs the assignment state machine for (user, experiment):
// existing assignment wins unconditionally, then status, inclusion draw,
// targeting and the variant draw decide. Every evaluation that ends with a
// variant records an exposure.
func (e *Engine) evaluate(ctx context.Context, userID, experimentID string, c Context) (*store.Assignment, *store.Experiment) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.log.Warn().Err(err).Str("experiment", experimentID).Msg("definition read failed")
	}

	// 1. An existing assignment is returned as-is, even when the
	// experiment has since been paused or its definition is gone.
	// Stability beats re-randomization.
	if a := e.lookupAssignment(ctx, userID, experimentID); a != nil {
		e.recordExposure(ctx, a)
		return a, exp
	}

	if exp == nil {
		return nil, nil
	}

	// 2. Only active experiments inside their schedule window assign.
	now := time.Now()
	if exp.Status != store.StatusActive {
		return nil, exp
	}
	if exp.StartAt != nil && now.Before(*exp.StartAt) {
		return nil, exp
	}
	if exp.EndAt != nil && now.After(*exp.EndAt) {
		return nil, exp
	}

	// 3. Traffic-allocation draw. Excluded users are not persisted, so
	// storage stays proportional to actual participants.
	if bucket.Percent(bucket.InclusionSeed(userID, experimentID)) >= exp.TrafficAllocation {
		return nil, exp
	}

	// 4. Targeting predicate against the caller-supplied context.
	if !matchTargeting(exp.Targeting, c) {
		return nil, exp
	}

	// 5. Variant draw on a separate seed. A malformed definition whose
	// allocations do not reach the drawn point falls through to no
	// assignment instead of failing the call site.
	variant, ok := bucket.SelectVariant(bucket.Percent(bucket.VariantSeed(userID, experimentID)), exp.Variants)
	if !ok {
		e.log.Warn().Str("experiment", experimentID).Msg("variant allocations do not cover the draw; check the definition")
		return nil, exp
	}

	// 6. Persist insert-if-absent; a concurrent first evaluation may have
	// won the race, in which case the stored row replaces ours.
	a := &store.Assignment{
		UserID:       userID,
		ExperimentID: experimentID,
		VariantID:    variant.ID,
		AssignedAt:   now,
	}
	stored, err := e.store.InsertAssignment(ctx, a)
	if err != nil {
		e.log.Warn().Err(err).Str("experiment", experimentID).Msg("assignment write failed, continuing in memory")
	} else {
		a = stored
	}
	e.cacheAssignment(a)

	e.recordExposure(ctx, a)
	return a, exp
}

func (e *Engine) lookupAssignment(ctx context.Context, userID, experimentID string) *store.Assignment {
	key := cacheKey{userID, experimentID}
	e.mu.Lock()
	if a, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return a
	}
	e.mu.Unlock()

	a, err := e.store.GetAssignment(ctx, userID, experimentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn().Err(err).Str("experiment", experimentID).Msg("assignment read failed")
		}
		return nil
	}
	e.cacheAssignment(a)
	return a
}

func (e *Engine) cacheAssignment(a *store.Assignment) {
	e.mu.Lock()
	e.cache[cacheKey{a.UserID, a.ExperimentID}] = a
	e.mu.Unlock()
}

// recordExposure appends an exposure event and bumps the assignment's
// fast-path counters. Storage errors are logged and swallowed.
func (e *Engine) recordExposure(ctx context.Context, a *store.Assignment) {
	now := time.Now()
	e.appendEvent(ctx, &store.Event{
		ID:           uuid.NewString(),
		UserID:       a.UserID,
		ExperimentID: a.ExperimentID,
		VariantID:    a.VariantID,
		Type:         store.EventExposure,
		CreatedAt:    now,
	})
	if err := e.store.RecordExposure(ctx, a.UserID, a.ExperimentID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.log.Warn().Err(err).Str("experiment", a.ExperimentID).Msg("exposure counter update failed")
	}

	e.mu.Lock()
	a.ExposureCount++
	t := now
	a.LastExposureAt = &t
	e.mu.Unlock()
}

// RecordConversion logs the experiment's success signal for a user. The
// first conversion per (user, experiment) flips the assignment's converted
// flag and is logged as a conversion event; repeats are logged as custom
// events so the primary metric counts each user once while the raw log
// keeps everything. Without an assignment this is a no-op.
func (e *Engine) RecordConversion(ctx context.Context, userID, experimentID, name string, value *float64, metadata map[string]string) {
	a := e.lookupAssignment(ctx, userID, experimentID)
	if a == nil {
		return
	}

	now := time.Now()
	first, err := e.store.MarkConverted(ctx, userID, experimentID, now)
	if err != nil {
		e.log.Warn().Err(err).Str("experiment", experimentID).Msg("conversion flag update failed")
		e.mu.Lock()
		first = !a.Converted
		e.mu.Unlock()
	}

	eventType := store.EventConversion
	if !first {
		eventType = store.EventCustom
	}
	if name == "" {
		name = "conversion"
	}
	e.appendEvent(ctx, &store.Event{
		ID:           uuid.NewString(),
		UserID:       userID,
		ExperimentID: experimentID,
		VariantID:    a.VariantID,
		Type:         eventType,
		Name:         name,
		Value:        value,
		Metadata:     metadata,
		CreatedAt:    now,
	})

	if first {
		e.mu.Lock()
		a.Converted = true
		t := now
		a.ConvertedAt = &t
		e.mu.Unlock()
	}
}

// RecordCustom logs an arbitrary named event against the user's assigned
// variant. Without an assignment this is a no-op: custom events are only
// meaningful once a variant is known.
func (e *Engine) RecordCustom(ctx context.Context, userID, experimentID, name string, value *float64, metadata map[string]string) {
	a := e.lookupAssignment(ctx, userID, experimentID)
	if a == nil {
		return
	}
	e.appendEvent(ctx, &store.Event{
		ID:           uuid.NewString(),
		UserID:       userID,
		ExperimentID: experimentID,
		VariantID:    a.VariantID,
		Type:         store.EventCustom,
		Name:         name,
		Value:        value,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	})
}

func (e *Engine) appendEvent(ctx context.Context, ev *store.Event) {
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		e.log.Warn().Err(err).Str("experiment", ev.ExperimentID).Str("type", string(ev.Type)).Msg("event write failed")
	}
}

// IsFeatureEnabled gates a feature flag for a user. Flags are stateless per
// call: no assignment is persisted, the same draw is recomputed every time,
// which is what makes them cheap re-evaluated toggles rather than sticky
// experiment arms. A disabled, missing or mistargeted flag is off.
func (e *Engine) IsFeatureEnabled(ctx context.Context, userID, flagID string, c Context) bool {
	flag, err := e.store.GetFlag(ctx, flagID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn().Err(err).Str("flag", flagID).Msg("flag read failed")
		}
		return false
	}
	if !flag.Enabled {
		return false
	}
	if !matchTargeting(flag.Targeting, c) {
		return false
	}
	return bucket.Percent(bucket.FlagSeed(userID, flagID)) < flag.RolloutPercentage
}

// FeatureValue returns the flag's typed payload when the gate passes for
// this user, otherwise the caller-supplied default.
func (e *Engine) FeatureValue(ctx context.Context, userID, flagID string, def json.RawMessage, c Context) json.RawMessage {
	if !e.IsFeatureEnabled(ctx, userID, flagID, c) {
		return def
	}
	flag, err := e.store.GetFlag(ctx, flagID)
	if err != nil || len(flag.Value) == 0 {
		return def
	}
	return flag.Value
}

// Results computes the experiment report from accumulated assignments and
// events. Returns store.ErrNotFound for an unknown experiment.
func (e *Engine) Results(ctx context.Context, experimentID string) (*stats.ExperimentResults, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	counts, err := e.store.VariantCounts(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return stats.Aggregate(exp, counts, e.minSample), nil
}

// Export returns a full dump of definitions, assignments and events for
// debugging and compliance review.
func (e *Engine) Export(ctx context.Context) (*store.Dump, error) {
	return e.store.ExportAll(ctx)
}

// ClearAll deletes every stored record, including the installation id.
// Used by tests and data-deletion requests.
func (e *Engine) ClearAll(ctx context.Context) error {
	e.mu.Lock()
	e.cache = make(map[cacheKey]*store.Assignment)
	e.mu.Unlock()
	return e.store.ClearAll(ctx)
}
