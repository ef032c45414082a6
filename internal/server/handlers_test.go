package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carsuggester/roadtest/internal/engine"
	"github.com/carsuggester/roadtest/internal/server"
	"github.com/carsuggester/roadtest/internal/store"
	"github.com/carsuggester/roadtest/internal/testutil"
)

func setupServer(t *testing.T) (*server.Server, *store.SQLiteStore) {
	t.Helper()
	s := testutil.SetupTestStore(t)
	eng := engine.New(s, testutil.NopLogger())
	return server.New(s, eng, 0, "", testutil.NopLogger()), s
}

func doJSON(t *testing.T, srv *server.Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func experimentBody() server.ExperimentPayload {
	return server.ExperimentPayload{
		ID:     "listing-cta",
		Name:   "Listing CTA",
		Status: "active",
		Variants: []store.Variant{
			{ID: "control", Name: "control", Allocation: 50, IsControl: true},
			{ID: "treatment", Name: "treatment", Allocation: 50},
		},
	}
}

func TestHealth(t *testing.T) {
	srv, _ := setupServer(t)

	w := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	var resp server.HealthResponse
	decode(t, w, &resp)
	if resp.Status != "ok" {
		t.Errorf("status %q, want ok", resp.Status)
	}
}

func TestOperatorAPI_RequiresToken(t *testing.T) {
	srv, _ := setupServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/experiments", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/experiments", "wrong-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/experiments", srv.Token(), nil)
	if w.Code != http.StatusOK {
		t.Errorf("bearer token: status %d, want 200", w.Code)
	}

	// The query-param form works too, for browser poking.
	req := httptest.NewRequest(http.MethodGet, "/api/experiments?token="+srv.Token(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("query token: status %d, want 200", rec.Code)
	}
}

func TestCreateExperiment(t *testing.T) {
	srv, s := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/experiments", srv.Token(), experimentBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type %q", ct)
	}

	exp, err := s.GetExperiment(context.Background(), "listing-cta")
	if err != nil {
		t.Fatalf("experiment not persisted: %v", err)
	}
	if exp.TrafficAllocation != 100 {
		t.Errorf("traffic should default to 100, got %f", exp.TrafficAllocation)
	}
}

func TestCreateExperiment_RejectsInvalid(t *testing.T) {
	srv, _ := setupServer(t)

	body := experimentBody()
	body.Variants[1].Allocation = 30 // sums to 80
	w := doJSON(t, srv, http.MethodPost, "/api/experiments", srv.Token(), body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed allocations: status %d, want 400", w.Code)
	}

	body = experimentBody()
	body.Variants = body.Variants[:1]
	w = doJSON(t, srv, http.MethodPost, "/api/experiments", srv.Token(), body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("single variant: status %d, want 400", w.Code)
	}
}

func TestExperimentLifecycle(t *testing.T) {
	srv, _ := setupServer(t)
	token := srv.Token()

	if w := doJSON(t, srv, http.MethodPost, "/api/experiments", token, experimentBody()); w.Code != http.StatusCreated {
		t.Fatalf("create: status %d", w.Code)
	}

	w := doJSON(t, srv, http.MethodGet, "/api/experiments/listing-cta", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}
	var got server.ExperimentPayload
	decode(t, w, &got)
	if got.ID != "listing-cta" || len(got.Variants) != 2 {
		t.Errorf("unexpected payload: %+v", got)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/experiments/listing-cta/status", token, map[string]string{"status": "paused"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status change: status %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodPost, "/api/experiments/listing-cta/status", token, map[string]string{"status": "bogus"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus status: status %d, want 400", w.Code)
	}

	w = doJSON(t, srv, http.MethodDelete, "/api/experiments/listing-cta", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodGet, "/api/experiments/listing-cta", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", w.Code)
	}
}

func TestEvaluate_StableAssignment(t *testing.T) {
	srv, _ := setupServer(t)

	if w := doJSON(t, srv, http.MethodPost, "/api/experiments", srv.Token(), experimentBody()); w.Code != http.StatusCreated {
		t.Fatalf("create: status %d", w.Code)
	}

	evaluate := func(userID string) server.EvaluateResponse {
		w := doJSON(t, srv, http.MethodPost, "/v1/evaluate", "", server.EvaluateRequest{
			UserID:       userID,
			ExperimentID: "listing-cta",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("evaluate: status %d", w.Code)
		}
		var resp server.EvaluateResponse
		decode(t, w, &resp)
		return resp
	}

	first := evaluate("user-1")
	if !first.Assigned || first.VariantID == "" {
		t.Fatalf("expected an assignment, got %+v", first)
	}
	for i := 0; i < 10; i++ {
		if got := evaluate("user-1"); got.VariantID != first.VariantID {
			t.Fatalf("assignment flapped over HTTP: %q then %q", first.VariantID, got.VariantID)
		}
	}

	w := doJSON(t, srv, http.MethodPost, "/v1/evaluate", "", server.EvaluateRequest{UserID: "user-1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing experiment id: status %d, want 400", w.Code)
	}
}

func TestEvents_FeedResults(t *testing.T) {
	srv, _ := setupServer(t)
	token := srv.Token()

	if w := doJSON(t, srv, http.MethodPost, "/api/experiments", token, experimentBody()); w.Code != http.StatusCreated {
		t.Fatalf("create: status %d", w.Code)
	}

	// Assign a small population and convert everyone.
	for i := 0; i < 30; i++ {
		userID := fmt.Sprintf("user-%d", i)
		w := doJSON(t, srv, http.MethodPost, "/v1/evaluate", "", server.EvaluateRequest{
			UserID:       userID,
			ExperimentID: "listing-cta",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("evaluate: status %d", w.Code)
		}
		w = doJSON(t, srv, http.MethodPost, "/v1/events", "", server.EventRequest{
			UserID:       userID,
			ExperimentID: "listing-cta",
			Type:         "conversion",
			Name:         "dealer_contacted",
		})
		if w.Code != http.StatusNoContent {
			t.Fatalf("event: status %d", w.Code)
		}
	}

	w := doJSON(t, srv, http.MethodGet, "/api/experiments/listing-cta/results", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("results: status %d", w.Code)
	}
	var results struct {
		Variants []struct {
			VariantID      string  `json:"variant_id"`
			Participants   int     `json:"participants"`
			Conversions    int     `json:"conversions"`
			ConversionRate float64 `json:"conversion_rate"`
		} `json:"variants"`
	}
	decode(t, w, &results)
	total := 0
	for _, v := range results.Variants {
		total += v.Participants
		if v.Participants > 0 && v.ConversionRate != 1 {
			t.Errorf("variant %s rate %f, want 1", v.VariantID, v.ConversionRate)
		}
	}
	if total != 30 {
		t.Errorf("total participants %d, want 30", total)
	}
}

func TestEvents_RejectsUnknownType(t *testing.T) {
	srv, _ := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/v1/events", "", server.EventRequest{
		UserID:       "user-1",
		ExperimentID: "listing-cta",
		Type:         "exposure",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("exposure events arrive via evaluation, beacon must reject: status %d", w.Code)
	}
}

func TestFlagLifecycleAndEvaluate(t *testing.T) {
	srv, _ := setupServer(t)
	token := srv.Token()

	flag := server.FlagPayload{
		ID:                "search-radius",
		Name:              "Search radius",
		Enabled:           true,
		RolloutPercentage: 100,
		Value:             json.RawMessage(`{"km":50}`),
	}
	w := doJSON(t, srv, http.MethodPost, "/api/flags", token, flag)
	if w.Code != http.StatusCreated {
		t.Fatalf("create flag: status %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodPost, "/v1/flags/evaluate", "", server.FlagEvaluateRequest{
		UserID: "user-1",
		FlagID: "search-radius",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("flag evaluate: status %d", w.Code)
	}
	var resp server.FlagEvaluateResponse
	decode(t, w, &resp)
	if !resp.Enabled {
		t.Error("100% rollout should be enabled")
	}
	if string(resp.Value) != `{"km":50}` {
		t.Errorf("flag value %s", resp.Value)
	}

	flag.Enabled = false
	w = doJSON(t, srv, http.MethodPut, "/api/flags/search-radius", token, flag)
	if w.Code != http.StatusOK {
		t.Fatalf("update flag: status %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodPost, "/v1/flags/evaluate", "", server.FlagEvaluateRequest{
		UserID: "user-1",
		FlagID: "search-radius",
	})
	decode(t, w, &resp)
	if resp.Enabled {
		t.Error("disabled flag evaluated as enabled")
	}

	w = doJSON(t, srv, http.MethodDelete, "/api/flags/search-radius", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete flag: status %d", w.Code)
	}
}

func TestExportAndClearData(t *testing.T) {
	srv, _ := setupServer(t)
	token := srv.Token()

	if w := doJSON(t, srv, http.MethodPost, "/api/experiments", token, experimentBody()); w.Code != http.StatusCreated {
		t.Fatalf("create: status %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodPost, "/v1/evaluate", "", server.EvaluateRequest{UserID: "user-1", ExperimentID: "listing-cta"}); w.Code != http.StatusOK {
		t.Fatalf("evaluate: status %d", w.Code)
	}

	w := doJSON(t, srv, http.MethodGet, "/api/export", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: status %d", w.Code)
	}
	var dump store.Dump
	decode(t, w, &dump)
	if len(dump.Experiments) != 1 || len(dump.Assignments) != 1 {
		t.Errorf("dump sizes: %d experiments, %d assignments", len(dump.Experiments), len(dump.Assignments))
	}

	w = doJSON(t, srv, http.MethodDelete, "/api/data", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear: status %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodGet, "/api/export", token, nil)
	decode(t, w, &dump)
	if len(dump.Experiments) != 0 || len(dump.Assignments) != 0 {
		t.Error("clear left data behind")
	}
}

func TestEvaluate_CORSPreflight(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/evaluate", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: status %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin %q", got)
	}
}
