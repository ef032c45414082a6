package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a Store kept entirely in process memory. It backs tests and
// the engine's degraded mode when durable storage is unavailable: evaluation
// keeps working for the session, persistence resumes when storage recovers.
type MemoryStore struct {
	mu          sync.Mutex
	experiments map[string]*Experiment
	flags       map[string]*FeatureFlag
	assignments map[assignmentKey]*Assignment
	events      []*Event
	settings    map[string]string
}

type assignmentKey struct {
	userID       string
	experimentID string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
		flags:       make(map[string]*FeatureFlag),
		assignments: make(map[assignmentKey]*Assignment),
		settings:    make(map[string]string),
	}
}

func (s *MemoryStore) CreateExperiment(_ context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[exp.ID]; ok {
		return fmt.Errorf("experiment %q already exists", exp.ID)
	}
	now := time.Now()
	exp.CreatedAt = now
	exp.UpdatedAt = now
	cp := *exp
	s.experiments[exp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (*Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *exp
	return &cp, nil
}

func (s *MemoryStore) ListExperiments(_ context.Context) ([]*Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		cp := *exp
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) UpdateExperimentStatus(_ context.Context, id string, status ExperimentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.experiments[id]
	if !ok {
		return ErrNotFound
	}
	exp.Status = status
	exp.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteExperiment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[id]; !ok {
		return ErrNotFound
	}
	delete(s.experiments, id)
	return nil
}

func (s *MemoryStore) CreateFlag(_ context.Context, flag *FeatureFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flags[flag.ID]; ok {
		return fmt.Errorf("flag %q already exists", flag.ID)
	}
	now := time.Now()
	flag.CreatedAt = now
	flag.UpdatedAt = now
	cp := *flag
	s.flags[flag.ID] = &cp
	return nil
}

func (s *MemoryStore) GetFlag(_ context.Context, id string) (*FeatureFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag, ok := s.flags[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *flag
	return &cp, nil
}

func (s *MemoryStore) ListFlags(_ context.Context) ([]*FeatureFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*FeatureFlag, 0, len(s.flags))
	for _, flag := range s.flags {
		cp := *flag
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) UpdateFlag(_ context.Context, flag *FeatureFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flags[flag.ID]; !ok {
		return ErrNotFound
	}
	flag.UpdatedAt = time.Now()
	cp := *flag
	s.flags[flag.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteFlag(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flags[id]; !ok {
		return ErrNotFound
	}
	delete(s.flags, id)
	return nil
}

// InsertAssignment keeps the first write for a pair; later writers get the
// stored row, mirroring the SQLite INSERT OR IGNORE semantics.
func (s *MemoryStore) InsertAssignment(_ context.Context, a *Assignment) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey{a.UserID, a.ExperimentID}
	if existing, ok := s.assignments[key]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *a
	s.assignments[key] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) GetAssignment(_ context.Context, userID, experimentID string) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentKey{userID, experimentID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) RecordExposure(_ context.Context, userID, experimentID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentKey{userID, experimentID}]
	if !ok {
		return ErrNotFound
	}
	a.ExposureCount++
	t := at
	a.LastExposureAt = &t
	return nil
}

func (s *MemoryStore) MarkConverted(_ context.Context, userID, experimentID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentKey{userID, experimentID}]
	if !ok {
		return false, nil
	}
	if a.Converted {
		return false, nil
	}
	a.Converted = true
	t := at
	a.ConvertedAt = &t
	return true, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, experimentID string) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.ExperimentID == experimentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) VariantCounts(_ context.Context, experimentID string) ([]VariantCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]*VariantCounts)
	var order []string
	get := func(variantID string) *VariantCounts {
		if c, ok := counts[variantID]; ok {
			return c
		}
		c := &VariantCounts{VariantID: variantID}
		counts[variantID] = c
		order = append(order, variantID)
		return c
	}

	for key, a := range s.assignments {
		if key.experimentID == experimentID {
			get(a.VariantID).Participants++
		}
	}
	for _, e := range s.events {
		if e.ExperimentID != experimentID {
			continue
		}
		switch e.Type {
		case EventExposure:
			get(e.VariantID).Exposures++
		case EventConversion:
			get(e.VariantID).Conversions++
		}
	}

	out := make([]VariantCounts, 0, len(order))
	for _, id := range order {
		out = append(out, *counts[id])
	}
	return out, nil
}

func (s *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *MemoryStore) ExportAll(ctx context.Context) (*Dump, error) {
	exps, _ := s.ListExperiments(ctx)
	flags, _ := s.ListFlags(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	assignments := make([]*Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		cp := *a
		assignments = append(assignments, &cp)
	}
	events := make([]*Event, 0, len(s.events))
	for _, e := range s.events {
		cp := *e
		events = append(events, &cp)
	}

	return &Dump{
		ExportedAt:   time.Now(),
		Experiments:  exps,
		FeatureFlags: flags,
		Assignments:  assignments,
		Events:       events,
	}, nil
}

func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments = make(map[string]*Experiment)
	s.flags = make(map[string]*FeatureFlag)
	s.assignments = make(map[assignmentKey]*Assignment)
	s.events = nil
	s.settings = make(map[string]string)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
