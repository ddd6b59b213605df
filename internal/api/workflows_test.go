package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roofline-crm/backend/internal/repository"
	"roofline-crm/backend/internal/workflow"
	"roofline-crm/backend/pkg/models"
)

// memStore is a minimal in-memory workflow.Store for handler tests.
type memStore struct {
	workflows   map[string]*models.ProductionWorkflow
	transitions []*models.StageTransition
	validations []*models.GateValidation
}

func newMemStore() *memStore {
	return &memStore{workflows: make(map[string]*models.ProductionWorkflow)}
}

func (s *memStore) Insert(ctx context.Context, wf *models.ProductionWorkflow) error {
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*models.ProductionWorkflow, error) {
	wf, ok := s.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (s *memStore) GetBySubject(ctx context.Context, tenantID, subjectID string) (*models.ProductionWorkflow, error) {
	for _, wf := range s.workflows {
		if wf.TenantID != tenantID {
			continue
		}
		if (wf.JobID != nil && *wf.JobID == subjectID) || (wf.ProjectID != nil && *wf.ProjectID == subjectID) {
			cp := *wf
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) ListByTenant(ctx context.Context, tenantID string) ([]*models.ProductionWorkflow, error) {
	var out []*models.ProductionWorkflow
	for _, wf := range s.workflows {
		if wf.TenantID == tenantID {
			cp := *wf
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) UpdateStage(ctx context.Context, id string, stage models.Stage, version int) error {
	wf, ok := s.workflows[id]
	if !ok || wf.Version != version {
		return repository.ErrConflict
	}
	wf.CurrentStage = stage
	wf.Version++
	return nil
}

func (s *memStore) UpdateFlags(ctx context.Context, id string, flags models.ProductionFlags, version int) error {
	wf, ok := s.workflows[id]
	if !ok || wf.Version != version {
		return repository.ErrConflict
	}
	wf.Flags = flags
	wf.Version++
	return nil
}

func (s *memStore) AppendTransition(ctx context.Context, t *models.StageTransition) error {
	s.transitions = append(s.transitions, t)
	return nil
}

func (s *memStore) ListTransitions(ctx context.Context, workflowID string) ([]*models.StageTransition, error) {
	var out []*models.StageTransition
	for _, t := range s.transitions {
		if t.WorkflowID == workflowID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) AppendValidation(ctx context.Context, v *models.GateValidation) error {
	s.validations = append(s.validations, v)
	return nil
}

func (s *memStore) ListValidations(ctx context.Context, workflowID string) ([]*models.GateValidation, error) {
	var out []*models.GateValidation
	for _, v := range s.validations {
		if v.WorkflowID == workflowID {
			out = append(out, v)
		}
	}
	return out, nil
}

type fixedPhotos struct{ count int }

func (p fixedPhotos) CountPhotosForSubject(ctx context.Context, subjectID string) (int, error) {
	return p.count, nil
}

type quietLogger struct{}

func (quietLogger) Debug(msg string, args ...any) {}
func (quietLogger) Info(msg string, args ...any)  {}
func (quietLogger) Error(msg string, args ...any) {}

const testTenant = "tenant-abc"

// newTestAPI wires the handlers the way cmd/server does, with tenant
// injection standing in for the auth middleware.
func newTestAPI(store *memStore) *echo.Echo {
	engine := workflow.NewEngine(store, fixedPhotos{count: 0}, quietLogger{}, nil)
	e := echo.New()
	g := e.Group("/api/v1")
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), "tenant_id", testTenant)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	RegisterHandlers(g, NewServer(engine))
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateWorkflow(t *testing.T) {
	e := newTestAPI(newMemStore())

	rec := doJSON(e, http.MethodPost, "/api/v1/production/workflows",
		`{"job_id": "job-77", "actor": "pm@roofline.dev"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var wf models.ProductionWorkflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.Equal(t, testTenant, wf.TenantID)
	assert.Equal(t, "job-77", *wf.JobID)
	assert.Equal(t, models.StageSubmitDocuments, wf.CurrentStage)
	assert.Equal(t, 1, wf.Version)

	// same subject again returns the existing workflow
	rec = doJSON(e, http.MethodPost, "/api/v1/production/workflows",
		`{"job_id": "job-77", "actor": "pm@roofline.dev"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var again models.ProductionWorkflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, wf.ID, again.ID)
}

func TestCreateWorkflowRejectsBadSubject(t *testing.T) {
	e := newTestAPI(newMemStore())

	rec := doJSON(e, http.MethodPost, "/api/v1/production/workflows",
		`{"actor": "pm@roofline.dev"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/production/workflows",
		`{"job_id": "j1", "project_id": "p1", "actor": "pm@roofline.dev"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func createViaAPI(t *testing.T, e *echo.Echo, jobID string) models.ProductionWorkflow {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/api/v1/production/workflows",
		`{"job_id": "`+jobID+`", "actor": "pm@roofline.dev"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var wf models.ProductionWorkflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	return wf
}

func TestAdvanceStageGateFailure(t *testing.T) {
	e := newTestAPI(newMemStore())
	wf := createViaAPI(t, e, "job-80")

	rec := doJSON(e, http.MethodPost, "/api/v1/production/workflows/"+wf.ID+"/advance",
		`{"to_stage": "permit_submitted", "actor": "pm@roofline.dev"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp GateFailureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "stage gate validation failed", resp.Message)
	assert.Len(t, resp.Failures, 2)
}

func TestAdvanceStageSuccess(t *testing.T) {
	store := newMemStore()
	e := newTestAPI(store)
	wf := createViaAPI(t, e, "job-81")

	rec := doJSON(e, http.MethodPatch, "/api/v1/production/workflows/"+wf.ID+"/documents",
		`{"noc_uploaded": true, "permit_application_submitted": true, "actor": "pm@roofline.dev"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(e, http.MethodPost, "/api/v1/production/workflows/"+wf.ID+"/advance",
		`{"to_stage": "permit_submitted", "actor": "pm@roofline.dev"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.AdvanceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.StageSubmitDocuments, result.PreviousStage)
	assert.Equal(t, models.StagePermitSubmitted, result.NewStage)
	assert.True(t, result.GateValidated)
	assert.False(t, result.GateBypassed)
}

func TestAdvanceStageRejectsSkipAndUnknownStage(t *testing.T) {
	e := newTestAPI(newMemStore())
	wf := createViaAPI(t, e, "job-82")

	// skipping ahead is structurally invalid
	rec := doJSON(e, http.MethodPost, "/api/v1/production/workflows/"+wf.ID+"/advance",
		`{"to_stage": "materials_ordered", "actor": "pm@roofline.dev"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/production/workflows/"+wf.ID+"/advance",
		`{"to_stage": "warranty_review", "actor": "pm@roofline.dev"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvanceStageBypassWithoutReason(t *testing.T) {
	e := newTestAPI(newMemStore())
	wf := createViaAPI(t, e, "job-83")

	rec := doJSON(e, http.MethodPost, "/api/v1/production/workflows/"+wf.ID+"/advance",
		`{"to_stage": "permit_submitted", "actor": "pm@roofline.dev", "bypass": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkflowNotFound(t *testing.T) {
	e := newTestAPI(newMemStore())

	rec := doJSON(e, http.MethodGet, "/api/v1/production/workflows/subject/job-missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWorkflowReturnsTimeline(t *testing.T) {
	store := newMemStore()
	e := newTestAPI(store)
	wf := createViaAPI(t, e, "job-84")

	doJSON(e, http.MethodPatch, "/api/v1/production/workflows/"+wf.ID+"/documents",
		`{"noc_uploaded": true, "permit_application_submitted": true, "actor": "pm@roofline.dev"}`)
	doJSON(e, http.MethodPost, "/api/v1/production/workflows/"+wf.ID+"/advance",
		`{"to_stage": "permit_submitted", "actor": "pm@roofline.dev"}`)

	rec := doJSON(e, http.MethodGet, "/api/v1/production/workflows/subject/job-84", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var detail models.WorkflowDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, models.StagePermitSubmitted, detail.Workflow.CurrentStage)
	assert.Len(t, detail.History, 2)
	assert.Len(t, detail.Validations, 1)
	assert.Equal(t, models.GateOutcomePassed, detail.Validations[0].Outcome)
}

func TestTenantMissingIsUnauthorized(t *testing.T) {
	// no tenant middleware here
	engine := workflow.NewEngine(newMemStore(), fixedPhotos{}, quietLogger{}, nil)
	e := echo.New()
	RegisterHandlers(e.Group("/api/v1"), NewServer(engine))

	rec := doJSON(e, http.MethodGet, "/api/v1/production/workflows", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
