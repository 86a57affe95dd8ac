package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/semlens/semlens-engine/pkg/apperrors"
	"github.com/semlens/semlens-engine/pkg/graph"
	"github.com/semlens/semlens-engine/pkg/models"
)

// mockResolverService implements services.ResolverService for handler tests.
type mockResolverService struct {
	joinSteps  []models.JoinStep
	joinErr    error
	resolution *models.ConceptResolution
	conceptErr error
	rebuildErr error
	rebuilds   int
}

func (m *mockResolverService) ResolveJoinPath(ctx context.Context, sourceTable, targetTable string) ([]models.JoinStep, error) {
	return m.joinSteps, m.joinErr
}

func (m *mockResolverService) ResolveConcept(ctx context.Context, intentName, fieldName, tableScope string) (*models.ConceptResolution, error) {
	return m.resolution, m.conceptErr
}

func (m *mockResolverService) Rebuild(ctx context.Context) error {
	m.rebuilds++
	return m.rebuildErr
}

func (m *mockResolverService) SchemaGraph() *graph.Graph   { return nil }
func (m *mockResolverService) SemanticGraph() *graph.Graph { return nil }

func TestResolverHandler_ResolveJoinPath(t *testing.T) {
	svc := &mockResolverService{
		joinSteps: []models.JoinStep{
			{From: "orders", To: "customers", RelationshipKind: "many-to-one", JoinColumn: "customer_id"},
		},
	}
	handler := NewResolverHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/join-path?source=orders&target=customers", nil)
	rec := httptest.NewRecorder()
	handler.ResolveJoinPath(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool             `json:"success"`
		Data    JoinPathResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if len(resp.Data.Steps) != 1 || resp.Data.Steps[0].JoinColumn != "customer_id" {
		t.Errorf("unexpected steps: %+v", resp.Data.Steps)
	}
}

func TestResolverHandler_ResolveJoinPath_MissingParams(t *testing.T) {
	handler := NewResolverHandler(&mockResolverService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/join-path?source=orders", nil)
	rec := httptest.NewRecorder()
	handler.ResolveJoinPath(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestResolverHandler_ResolveJoinPath_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown table", &apperrors.UnknownNodeError{Node: "nosuch"}, http.StatusNotFound, "unknown_node"},
		{"disconnected tables", &apperrors.NoPathError{Source: "orders", Target: "audit_log"}, http.StatusNotFound, "no_join_path"},
		{"internal failure", errors.New("boom"), http.StatusInternalServerError, "resolution_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewResolverHandler(&mockResolverService{joinErr: tt.err}, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/v1/join-path?source=orders&target=audit_log", nil)
			rec := httptest.NewRecorder()
			handler.ResolveJoinPath(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("expected error code %q, got %q", tt.wantCode, body["error"])
			}
		})
	}
}

func TestResolverHandler_ResolveConcept(t *testing.T) {
	svc := &mockResolverService{
		resolution: &models.ConceptResolution{
			Concept:   "Revenue",
			Table:     "invoices",
			Column:    "amount",
			Rationale: `perspective "finance" elevates "Revenue" (weight 0.90)`,
		},
	}
	handler := NewResolverHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/concept?intent=monthly_revenue&field=amount", nil)
	rec := httptest.NewRecorder()
	handler.ResolveConcept(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool                     `json:"success"`
		Data    models.ConceptResolution `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Concept != "Revenue" || resp.Data.Table != "invoices" {
		t.Errorf("unexpected resolution: %+v", resp.Data)
	}
}

func TestResolverHandler_ResolveConcept_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no applicable concept", &apperrors.NoApplicableConceptError{Intent: "monthly_revenue", Field: "zzz"}, http.StatusNotFound, "no_applicable_concept"},
		{"tied candidates", &apperrors.AmbiguousResolutionError{Intent: "monthly_revenue", Field: "amount", Candidates: []string{"Cost", "Revenue"}, Reason: "tied scores"}, http.StatusConflict, "ambiguous_resolution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewResolverHandler(&mockResolverService{conceptErr: tt.err}, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/v1/concept?intent=monthly_revenue&field=amount", nil)
			rec := httptest.NewRecorder()
			handler.ResolveConcept(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("expected error code %q, got %q", tt.wantCode, body["error"])
			}
		})
	}
}

func TestResolverHandler_ResolveConcept_MissingParams(t *testing.T) {
	handler := NewResolverHandler(&mockResolverService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/concept?field=amount", nil)
	rec := httptest.NewRecorder()
	handler.ResolveConcept(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestResolverHandler_Rebuild(t *testing.T) {
	svc := &mockResolverService{}
	handler := NewResolverHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/rebuild", nil)
	rec := httptest.NewRecorder()
	handler.Rebuild(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if svc.rebuilds != 1 {
		t.Errorf("expected 1 rebuild call, got %d", svc.rebuilds)
	}
}

func TestResolverHandler_Rebuild_Failure(t *testing.T) {
	svc := &mockResolverService{rebuildErr: errors.New("catalog unreachable")}
	handler := NewResolverHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/rebuild", nil)
	rec := httptest.NewRecorder()
	handler.Rebuild(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}
