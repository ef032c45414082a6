package engine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/carsuggester/roadtest/internal/bucket"
	"github.com/carsuggester/roadtest/internal/engine"
	"github.com/carsuggester/roadtest/internal/store"
	"github.com/carsuggester/roadtest/internal/testutil"
)

func setupEngine(t *testing.T) (*engine.Engine, *store.SQLiteStore) {
	t.Helper()
	s := testutil.SetupTestStore(t)
	return engine.New(s, testutil.NopLogger()), s
}

func createExperiment(t *testing.T, s store.Store, exp *store.Experiment) {
	t.Helper()
	if err := s.CreateExperiment(context.Background(), exp); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
}

func fiftyFifty(id string, status store.ExperimentStatus, traffic float64) *store.Experiment {
	return &store.Experiment{
		ID:                id,
		Name:              id,
		Status:            status,
		TrafficAllocation: traffic,
		Variants: []store.Variant{
			{ID: "control", Name: "control", Allocation: 50, IsControl: true, Config: json.RawMessage(`{"label":"old"}`)},
			{ID: "treatment", Name: "treatment", Allocation: 50, Config: json.RawMessage(`{"label":"new"}`)},
		},
		PrimaryMetric: "converted",
	}
}

func TestGetVariant_StableAcrossRestarts(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	first, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{})
	if !ok {
		t.Fatal("expected an assignment at 100% traffic")
	}

	for i := 0; i < 20; i++ {
		got, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{})
		if !ok || got != first {
			t.Fatalf("assignment flapped: got %q ok=%t, want %q", got, ok, first)
		}
	}

	// A fresh engine over the same store must read back the same variant,
	// not redraw it.
	eng2 := engine.New(s, testutil.NopLogger())
	got, ok := eng2.GetVariant(ctx, "user-1", "exp", engine.Context{})
	if !ok || got != first {
		t.Errorf("restart changed the assignment: got %q ok=%t, want %q", got, ok, first)
	}
}

func TestGetVariant_NonActiveStatuses(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()

	for _, status := range []store.ExperimentStatus{store.StatusDraft, store.StatusPaused, store.StatusCompleted} {
		id := "exp-" + string(status)
		createExperiment(t, s, fiftyFifty(id, status, 100))
		if _, ok := eng.GetVariant(ctx, "user-1", id, engine.Context{}); ok {
			t.Errorf("%s experiment must not assign", status)
		}
	}

	if _, ok := eng.GetVariant(ctx, "user-1", "no-such-experiment", engine.Context{}); ok {
		t.Error("unknown experiment must not assign")
	}
}

func TestGetVariant_ExistingAssignmentSurvivesPause(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	first, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{})
	if !ok {
		t.Fatal("expected an assignment")
	}

	if err := s.UpdateExperimentStatus(ctx, "exp", store.StatusPaused); err != nil {
		t.Fatalf("UpdateExperimentStatus: %v", err)
	}

	// Assigned users keep their variant after a pause; only new users are
	// turned away. Use a fresh engine so the cache cannot mask a redraw.
	eng2 := engine.New(s, testutil.NopLogger())
	got, ok := eng2.GetVariant(ctx, "user-1", "exp", engine.Context{})
	if !ok || got != first {
		t.Errorf("pause dropped an existing assignment: got %q ok=%t", got, ok)
	}
	if _, ok := eng2.GetVariant(ctx, "user-2", "exp", engine.Context{}); ok {
		t.Error("paused experiment assigned a new user")
	}
}

func TestGetVariant_ZeroTraffic(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 0))

	for i := 0; i < 100; i++ {
		if _, ok := eng.GetVariant(ctx, fmt.Sprintf("user-%d", i), "exp", engine.Context{}); ok {
			t.Fatal("zero traffic allocation must exclude everyone")
		}
	}

	// Excluded users leave no rows behind.
	counts, err := s.VariantCounts(ctx, "exp")
	if err != nil {
		t.Fatalf("VariantCounts: %v", err)
	}
	for _, c := range counts {
		if c.Participants != 0 {
			t.Errorf("excluded users were persisted: %+v", c)
		}
	}
}

func TestGetVariant_TargetingMismatch(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()

	exp := fiftyFifty("exp", store.StatusActive, 100)
	exp.Targeting = &store.Targeting{Platforms: []string{"ios"}}
	createExperiment(t, s, exp)

	if _, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{Platform: "android"}); ok {
		t.Error("mistargeted user must not be assigned")
	}
	if _, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{Platform: "ios"}); !ok {
		t.Error("targeted user should be assigned")
	}
}

func TestGetVariant_MalformedAllocations(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()

	// Allocations cover only 60% of the line. Find a user whose variant
	// draw lands in the unowned tail; evaluation must degrade to no
	// assignment rather than fail.
	exp := &store.Experiment{
		ID:                "broken",
		Name:              "broken",
		Status:            store.StatusActive,
		TrafficAllocation: 100,
		Variants: []store.Variant{
			{ID: "a", Name: "a", Allocation: 30, IsControl: true},
			{ID: "b", Name: "b", Allocation: 30},
		},
	}
	createExperiment(t, s, exp)

	userID := ""
	for i := 0; i < 10000; i++ {
		candidate := fmt.Sprintf("tail-user-%d", i)
		if bucket.Percent(bucket.VariantSeed(candidate, "broken")) >= 60 {
			userID = candidate
			break
		}
	}
	if userID == "" {
		t.Fatal("no candidate draw beyond the allocation sum")
	}

	if v, ok := eng.GetVariant(ctx, userID, "broken", engine.Context{}); ok {
		t.Errorf("draw beyond total allocation assigned %q", v)
	}
}

func TestGetVariantConfig(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	variantID, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{})
	if !ok {
		t.Fatal("expected an assignment")
	}

	cfg, ok := eng.GetVariantConfig(ctx, "user-1", "exp", engine.Context{})
	if !ok {
		t.Fatal("expected a config payload")
	}
	var payload struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(cfg, &payload); err != nil {
		t.Fatalf("config payload not JSON: %v", err)
	}
	want := map[string]string{"control": "old", "treatment": "new"}[variantID]
	if payload.Label != want {
		t.Errorf("config label %q does not match assigned variant %q", payload.Label, variantID)
	}
}

func TestRecordConversion_FirstCountsRepeatsAreCustom(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	if _, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{}); !ok {
		t.Fatal("expected an assignment")
	}

	eng.RecordConversion(ctx, "user-1", "exp", "", nil, nil)
	eng.RecordConversion(ctx, "user-1", "exp", "", nil, nil)
	eng.RecordConversion(ctx, "user-1", "exp", "", nil, nil)

	events, err := s.ListEvents(ctx, "exp")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	conversions, customs := 0, 0
	for _, e := range events {
		switch e.Type {
		case store.EventConversion:
			conversions++
			if e.Name != "conversion" {
				t.Errorf("default conversion name %q", e.Name)
			}
		case store.EventCustom:
			customs++
		}
	}
	if conversions != 1 {
		t.Errorf("%d conversion events, want 1", conversions)
	}
	if customs != 2 {
		t.Errorf("%d custom events for repeats, want 2", customs)
	}

	counts, err := s.VariantCounts(ctx, "exp")
	if err != nil {
		t.Fatalf("VariantCounts: %v", err)
	}
	total := 0
	for _, c := range counts {
		total += c.Conversions
	}
	if total != 1 {
		t.Errorf("repeat conversions leaked into the metric: %d", total)
	}
}

func TestRecording_NoAssignmentIsNoOp(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	// user-1 was never evaluated, so nothing may be recorded for them.
	eng.RecordConversion(ctx, "user-1", "exp", "purchase", nil, nil)
	eng.RecordCustom(ctx, "user-1", "exp", "scrolled", nil, nil)

	events, err := s.ListEvents(ctx, "exp")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("recording without an assignment wrote %d events", len(events))
	}
}

func TestRecordCustom_CarriesValueAndMetadata(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	if _, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{}); !ok {
		t.Fatal("expected an assignment")
	}

	value := 42.5
	eng.RecordCustom(ctx, "user-1", "exp", "lead_value", &value, map[string]string{"source": "listing"})

	events, err := s.ListEvents(ctx, "exp")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	found := false
	for _, e := range events {
		if e.Type == store.EventCustom && e.Name == "lead_value" {
			found = true
			if e.Value == nil || *e.Value != 42.5 {
				t.Errorf("value not carried: %v", e.Value)
			}
			if e.Metadata["source"] != "listing" {
				t.Errorf("metadata not carried: %v", e.Metadata)
			}
		}
	}
	if !found {
		t.Error("custom event not recorded")
	}
}

func TestExposures_AccumulatePerEvaluation(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	for i := 0; i < 5; i++ {
		if _, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{}); !ok {
			t.Fatal("expected an assignment")
		}
	}

	a, err := s.GetAssignment(ctx, "user-1", "exp")
	if err != nil {
		t.Fatalf("GetAssignment: %v", err)
	}
	if a.ExposureCount != 5 {
		t.Errorf("exposure count %d, want 5", a.ExposureCount)
	}
}

func TestEvaluate_SingleExposure(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	variantID, config, ok := eng.Evaluate(ctx, "user-1", "exp", engine.Context{})
	if !ok || variantID == "" || len(config) == 0 {
		t.Fatalf("Evaluate: variant=%q config=%s ok=%t", variantID, config, ok)
	}

	// Variant and config come from one evaluation, one exposure.
	a, err := s.GetAssignment(ctx, "user-1", "exp")
	if err != nil {
		t.Fatalf("GetAssignment: %v", err)
	}
	if a.ExposureCount != 1 {
		t.Errorf("exposure count %d after one Evaluate, want 1", a.ExposureCount)
	}
}

func TestIsFeatureEnabled(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()

	flags := []*store.FeatureFlag{
		{ID: "all-on", Name: "all-on", Enabled: true, RolloutPercentage: 100},
		{ID: "all-off", Name: "all-off", Enabled: true, RolloutPercentage: 0},
		{ID: "disabled", Name: "disabled", Enabled: false, RolloutPercentage: 100},
	}
	for _, f := range flags {
		if err := s.CreateFlag(ctx, f); err != nil {
			t.Fatalf("CreateFlag: %v", err)
		}
	}

	for i := 0; i < 100; i++ {
		userID := fmt.Sprintf("user-%d", i)
		if !eng.IsFeatureEnabled(ctx, userID, "all-on", engine.Context{}) {
			t.Fatalf("100%% rollout off for %s", userID)
		}
		if eng.IsFeatureEnabled(ctx, userID, "all-off", engine.Context{}) {
			t.Fatalf("0%% rollout on for %s", userID)
		}
		if eng.IsFeatureEnabled(ctx, userID, "disabled", engine.Context{}) {
			t.Fatalf("disabled flag on for %s", userID)
		}
	}

	if eng.IsFeatureEnabled(ctx, "user-1", "no-such-flag", engine.Context{}) {
		t.Error("unknown flag must be off")
	}
}

func TestIsFeatureEnabled_Targeting(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()

	flag := &store.FeatureFlag{
		ID:                "ios-only",
		Name:              "ios-only",
		Enabled:           true,
		RolloutPercentage: 100,
		Targeting:         &store.Targeting{Platforms: []string{"ios"}},
	}
	if err := s.CreateFlag(ctx, flag); err != nil {
		t.Fatalf("CreateFlag: %v", err)
	}

	if eng.IsFeatureEnabled(ctx, "user-1", "ios-only", engine.Context{Platform: "android"}) {
		t.Error("mistargeted flag must be off")
	}
	if !eng.IsFeatureEnabled(ctx, "user-1", "ios-only", engine.Context{Platform: "ios"}) {
		t.Error("targeted flag should be on")
	}
}

func TestFeatureValue(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	def := json.RawMessage(`{"km":25}`)

	flag := &store.FeatureFlag{
		ID:                "search-radius",
		Name:              "search-radius",
		Enabled:           true,
		RolloutPercentage: 100,
		Value:             json.RawMessage(`{"km":50}`),
	}
	if err := s.CreateFlag(ctx, flag); err != nil {
		t.Fatalf("CreateFlag: %v", err)
	}

	if got := eng.FeatureValue(ctx, "user-1", "search-radius", def, engine.Context{}); string(got) != `{"km":50}` {
		t.Errorf("expected flag value, got %s", got)
	}
	if got := eng.FeatureValue(ctx, "user-1", "no-such-flag", def, engine.Context{}); string(got) != string(def) {
		t.Errorf("expected default for unknown flag, got %s", got)
	}

	if err := s.UpdateFlag(ctx, &store.FeatureFlag{ID: "search-radius", Name: "search-radius", Enabled: false, RolloutPercentage: 100, Value: flag.Value}); err != nil {
		t.Fatalf("UpdateFlag: %v", err)
	}
	if got := eng.FeatureValue(ctx, "user-1", "search-radius", def, engine.Context{}); string(got) != string(def) {
		t.Errorf("expected default for disabled flag, got %s", got)
	}
}

func TestFlag_DeterministicPerUser(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()

	if err := s.CreateFlag(ctx, &store.FeatureFlag{ID: "partial", Name: "partial", Enabled: true, RolloutPercentage: 50}); err != nil {
		t.Fatalf("CreateFlag: %v", err)
	}

	for i := 0; i < 50; i++ {
		userID := fmt.Sprintf("user-%d", i)
		first := eng.IsFeatureEnabled(ctx, userID, "partial", engine.Context{})
		for j := 0; j < 10; j++ {
			if eng.IsFeatureEnabled(ctx, userID, "partial", engine.Context{}) != first {
				t.Fatalf("flag flapped for %s", userID)
			}
		}
	}
}

func TestResults_EndToEnd(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	// Assign a population and convert every treatment user; control users
	// never convert, so treatment must come out ahead.
	converted := 0
	for i := 0; i < 400; i++ {
		userID := fmt.Sprintf("user-%d", i)
		variantID, ok := eng.GetVariant(ctx, userID, "exp", engine.Context{})
		if !ok {
			t.Fatalf("no assignment for %s", userID)
		}
		if variantID == "treatment" {
			eng.RecordConversion(ctx, userID, "exp", "purchase", nil, nil)
			converted++
		}
	}
	if converted == 0 {
		t.Fatal("no treatment users in the population")
	}

	r, err := eng.Results(ctx, "exp")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	for _, v := range r.Variants {
		switch v.VariantID {
		case "treatment":
			if v.ConversionRate != 1 {
				t.Errorf("treatment rate %f, want 1", v.ConversionRate)
			}
			if !v.IsWinner {
				t.Error("all-converting treatment should win")
			}
		case "control":
			if v.ConversionRate != 0 {
				t.Errorf("control rate %f, want 0", v.ConversionRate)
			}
		}
	}

	if _, err := eng.Results(ctx, "no-such-experiment"); err == nil {
		t.Error("expected an error for an unknown experiment")
	}
}

func TestClearAll_ResetsAssignments(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	if _, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{}); !ok {
		t.Fatal("expected an assignment")
	}

	if err := eng.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	// The cache was dropped along with storage: no stale assignment may
	// resurface for the now-deleted experiment.
	if _, ok := eng.GetVariant(ctx, "user-1", "exp", engine.Context{}); ok {
		t.Error("assignment survived ClearAll")
	}
	if _, err := s.GetAssignment(ctx, "user-1", "exp"); err == nil {
		t.Error("assignment row survived ClearAll")
	}
}

func TestClient_BindsUser(t *testing.T) {
	eng, s := setupEngine(t)
	ctx := context.Background()
	createExperiment(t, s, fiftyFifty("exp", store.StatusActive, 100))

	c := eng.Client("installation-1")
	if c.UserID() != "installation-1" {
		t.Errorf("UserID() = %q", c.UserID())
	}

	got, ok := c.GetVariant(ctx, "exp", engine.Context{})
	if !ok {
		t.Fatal("expected an assignment")
	}
	want, ok := eng.GetVariant(ctx, "installation-1", "exp", engine.Context{})
	if !ok || got != want {
		t.Errorf("client assignment %q differs from engine assignment %q", got, want)
	}

	c.RecordConversion(ctx, "exp", "purchase", nil, nil)
	a, err := s.GetAssignment(ctx, "installation-1", "exp")
	if err != nil {
		t.Fatalf("GetAssignment: %v", err)
	}
	if !a.Converted {
		t.Error("client conversion did not reach the bound user's assignment")
	}
}
