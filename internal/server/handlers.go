package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/carsuggester/roadtest/internal/engine"
	"github.com/carsuggester/roadtest/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	FlagsCount       int    `json:"flags_count"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	exps, err := s.store.ListExperiments(ctx)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	flags, err := s.store.ListFlags(ctx)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(exps),
		FlagsCount:       len(flags),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

// EvaluateRequest asks for a variant on behalf of a user. The context block
// feeds the experiment's targeting predicate.
type EvaluateRequest struct {
	UserID       string         `json:"user_id"`
	ExperimentID string         `json:"experiment_id"`
	Context      engine.Context `json:"context"`
}

type EvaluateResponse struct {
	Assigned  bool            `json:"assigned"`
	VariantID string          `json:"variant_id,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ExperimentID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	variantID, config, ok := s.engine.Evaluate(r.Context(), req.UserID, req.ExperimentID, req.Context)
	writeJSON(w, EvaluateResponse{Assigned: ok, VariantID: variantID, Config: config})
}

// EventRequest is the beacon payload. Exposures are recorded implicitly on
// evaluation, so only conversion and custom events arrive here.
type EventRequest struct {
	UserID       string            `json:"user_id"`
	ExperimentID string            `json:"experiment_id"`
	Type         string            `json:"type"`
	Name         string            `json:"name,omitempty"`
	Value        *float64          `json:"value,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ExperimentID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	switch req.Type {
	case string(store.EventConversion):
		s.engine.RecordConversion(ctx, req.UserID, req.ExperimentID, req.Name, req.Value, req.Metadata)
	case string(store.EventCustom):
		s.engine.RecordCustom(ctx, req.UserID, req.ExperimentID, req.Name, req.Value, req.Metadata)
	default:
		http.Error(w, "Invalid event type", http.StatusBadRequest)
		return
	}

	// Recording without an assignment is a silent no-op by design, so the
	// beacon always answers 204 for a well-formed payload.
	w.WriteHeader(http.StatusNoContent)
}

type FlagEvaluateRequest struct {
	UserID  string         `json:"user_id"`
	FlagID  string         `json:"flag_id"`
	Context engine.Context `json:"context"`
}

type FlagEvaluateResponse struct {
	Enabled bool            `json:"enabled"`
	Value   json.RawMessage `json:"value,omitempty"`
}

func (s *Server) handleFlagEvaluate(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req FlagEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.FlagID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	resp := FlagEvaluateResponse{Enabled: s.engine.IsFeatureEnabled(ctx, req.UserID, req.FlagID, req.Context)}
	if resp.Enabled {
		resp.Value = s.engine.FeatureValue(ctx, req.UserID, req.FlagID, nil, req.Context)
	}
	writeJSON(w, resp)
}

// ExperimentPayload is the operator-facing experiment shape.
type ExperimentPayload struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Status            string          `json:"status"`
	TrafficAllocation float64         `json:"traffic_allocation"`
	Variants          []store.Variant `json:"variants"`
	Targeting         *store.Targeting `json:"targeting,omitempty"`
	PrimaryMetric     string          `json:"primary_metric,omitempty"`
	SecondaryMetrics  []string        `json:"secondary_metrics,omitempty"`
	StartAt           *time.Time      `json:"start_at,omitempty"`
	EndAt             *time.Time      `json:"end_at,omitempty"`
}

func experimentPayload(exp *store.Experiment) ExperimentPayload {
	return ExperimentPayload{
		ID:                exp.ID,
		Name:              exp.Name,
		Description:       exp.Description,
		Status:            string(exp.Status),
		TrafficAllocation: exp.TrafficAllocation,
		Variants:          exp.Variants,
		Targeting:         exp.Targeting,
		PrimaryMetric:     exp.PrimaryMetric,
		SecondaryMetrics:  exp.SecondaryMetrics,
		StartAt:           exp.StartAt,
		EndAt:             exp.EndAt,
	}
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		exps, err := s.store.ListExperiments(ctx)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		payloads := make([]ExperimentPayload, 0, len(exps))
		for _, exp := range exps {
			payloads = append(payloads, experimentPayload(exp))
		}
		writeJSON(w, payloads)

	case http.MethodPost:
		var p ExperimentPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		status := store.ExperimentStatus(p.Status)
		if status == "" {
			status = store.StatusDraft
		}
		traffic := p.TrafficAllocation
		if traffic == 0 {
			traffic = 100
		}
		exp := &store.Experiment{
			ID:                p.ID,
			Name:              p.Name,
			Description:       p.Description,
			Status:            status,
			TrafficAllocation: traffic,
			Variants:          p.Variants,
			Targeting:         p.Targeting,
			PrimaryMetric:     p.PrimaryMetric,
			SecondaryMetrics:  p.SecondaryMetrics,
			StartAt:           p.StartAt,
			EndAt:             p.EndAt,
		}
		if err := exp.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.store.CreateExperiment(ctx, exp); err != nil {
			http.Error(w, "Failed to create experiment", http.StatusInternalServerError)
			return
		}
		s.log.Info().Str("experiment", exp.ID).Msg("experiment created")
		writeJSONStatus(w, http.StatusCreated, experimentPayload(exp))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExperiment serves /api/experiments/{id} and its sub-resources
// /status and /results.
func (s *Server) handleExperiment(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/experiments/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			exp, err := s.store.GetExperiment(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			if err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, experimentPayload(exp))
		case http.MethodDelete:
			if err := s.store.DeleteExperiment(ctx, id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					http.NotFound(w, r)
					return
				}
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case "status":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		switch store.ExperimentStatus(req.Status) {
		case store.StatusDraft, store.StatusActive, store.StatusPaused, store.StatusCompleted:
		default:
			http.Error(w, "Invalid status", http.StatusBadRequest)
			return
		}
		if err := s.store.UpdateExperimentStatus(ctx, id, store.ExperimentStatus(req.Status)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "results":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		results, err := s.engine.Results(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, results)

	default:
		http.NotFound(w, r)
	}
}

// FlagPayload is the operator-facing flag shape.
type FlagPayload struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Enabled           bool             `json:"enabled"`
	RolloutPercentage float64          `json:"rollout_percentage"`
	Targeting         *store.Targeting `json:"targeting,omitempty"`
	Value             json.RawMessage  `json:"value,omitempty"`
}

func flagPayload(flag *store.FeatureFlag) FlagPayload {
	return FlagPayload{
		ID:                flag.ID,
		Name:              flag.Name,
		Enabled:           flag.Enabled,
		RolloutPercentage: flag.RolloutPercentage,
		Targeting:         flag.Targeting,
		Value:             flag.Value,
	}
}

func (p FlagPayload) toModel() *store.FeatureFlag {
	return &store.FeatureFlag{
		ID:                p.ID,
		Name:              p.Name,
		Enabled:           p.Enabled,
		RolloutPercentage: p.RolloutPercentage,
		Targeting:         p.Targeting,
		Value:             p.Value,
	}
}

func (s *Server) handleFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		flags, err := s.store.ListFlags(ctx)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		payloads := make([]FlagPayload, 0, len(flags))
		for _, flag := range flags {
			payloads = append(payloads, flagPayload(flag))
		}
		writeJSON(w, payloads)

	case http.MethodPost:
		var p FlagPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		flag := p.toModel()
		if err := flag.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.store.CreateFlag(ctx, flag); err != nil {
			http.Error(w, "Failed to create flag", http.StatusInternalServerError)
			return
		}
		s.log.Info().Str("flag", flag.ID).Msg("flag created")
		writeJSONStatus(w, http.StatusCreated, flagPayload(flag))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/flags/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		flag, err := s.store.GetFlag(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, flagPayload(flag))

	case http.MethodPut:
		var p FlagPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		p.ID = id
		flag := p.toModel()
		if err := flag.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.store.UpdateFlag(ctx, flag); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, flagPayload(flag))

	case http.MethodDelete:
		if err := s.store.DeleteFlag(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dump, err := s.engine.Export(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, dump)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.engine.ClearAll(r.Context()); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.log.Info().Msg("all data cleared")
	w.WriteHeader(http.StatusNoContent)
}

func setCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
