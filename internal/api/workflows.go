// Package api contains the HTTP handlers for the production service
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"roofline-crm/backend/internal/repository"
	"roofline-crm/backend/internal/workflow"
	"roofline-crm/backend/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Engine *workflow.Engine
}

// NewServer creates a new Server.
func NewServer(engine *workflow.Engine) *Server {
	return &Server{Engine: engine}
}

// RegisterHandlers mounts the production workflow routes on an echo group.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.POST("/production/workflows", s.CreateWorkflow)
	g.GET("/production/workflows", s.ListWorkflows)
	g.GET("/production/workflows/subject/:subjectID", s.GetWorkflow)
	g.POST("/production/workflows/:id/advance", s.AdvanceStage)
	g.PATCH("/production/workflows/:id/documents", s.UpdateDocuments)
}

func tenantID(c echo.Context) (string, error) {
	id, ok := c.Request().Context().Value("tenant_id").(string)
	if !ok || id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Tenant ID not found in context")
	}
	return id, nil
}

// CreateWorkflowRequest starts production for a job or project.
type CreateWorkflowRequest struct {
	models.SubjectRef
	Actor string `json:"actor"`
}

// CreateWorkflow creates the production workflow for a subject. Repeated
// calls for the same subject return the existing workflow.
// (POST /api/v1/production/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	tenant, err := tenantID(c)
	if err != nil {
		return err
	}
	if err := req.SubjectRef.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	wf, err := s.Engine.Create(ctx, tenant, req.SubjectRef, req.Actor)
	if err != nil {
		return engineError(err)
	}
	return c.JSON(http.StatusOK, wf)
}

// ListWorkflows returns all production workflows for the tenant.
// (GET /api/v1/production/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}
	workflows, err := s.Engine.List(ctx, tenant)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, workflows)
}

// GetWorkflow returns a subject's workflow with its transition history and
// gate validation trail.
// (GET /api/v1/production/workflows/subject/:subjectID)
func (s *Server) GetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}
	detail, err := s.Engine.Get(ctx, tenant, c.Param("subjectID"))
	if err != nil {
		return engineError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

// AdvanceStageRequest asks for one stage transition.
type AdvanceStageRequest struct {
	ToStage      string `json:"to_stage"`
	Actor        string `json:"actor"`
	Notes        string `json:"notes,omitempty"`
	Bypass       bool   `json:"bypass,omitempty"`
	BypassReason string `json:"bypass_reason,omitempty"`
}

// GateFailureResponse reports every unmet requirement of a rejected advance.
type GateFailureResponse struct {
	Message  string         `json:"message"`
	Failures []string       `json:"failures"`
	Details  map[string]any `json:"details,omitempty"`
}

// AdvanceStage attempts to move a workflow to the requested stage.
// (POST /api/v1/production/workflows/:id/advance)
func (s *Server) AdvanceStage(c echo.Context) error {
	ctx := c.Request().Context()

	var req AdvanceStageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if _, err := tenantID(c); err != nil {
		return err
	}
	toStage, err := models.ParseStage(req.ToStage)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.Engine.Advance(ctx, workflow.AdvanceRequest{
		WorkflowID:   c.Param("id"),
		ToStage:      toStage,
		Actor:        req.Actor,
		Notes:        req.Notes,
		Bypass:       req.Bypass,
		BypassReason: req.BypassReason,
	})
	if err != nil {
		var gfe *workflow.GateFailureError
		if errors.As(err, &gfe) {
			return c.JSON(http.StatusUnprocessableEntity, GateFailureResponse{
				Message:  "stage gate validation failed",
				Failures: gfe.Failures,
				Details:  gfe.Details,
			})
		}
		return engineError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// UpdateDocumentsRequest is a partial flag update.
type UpdateDocumentsRequest struct {
	models.FlagPatch
	Actor string `json:"actor"`
}

// UpdateDocuments merges document/progress flag changes into a workflow
// without touching its stage.
// (PATCH /api/v1/production/workflows/:id/documents)
func (s *Server) UpdateDocuments(c echo.Context) error {
	ctx := c.Request().Context()

	var req UpdateDocumentsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if _, err := tenantID(c); err != nil {
		return err
	}

	wf, err := s.Engine.UpdateFlags(ctx, c.Param("id"), req.FlagPatch, req.Actor)
	if err != nil {
		return engineError(err)
	}
	return c.JSON(http.StatusOK, wf)
}

// engineError maps engine and store errors onto HTTP statuses. Gate failures
// are handled separately because their response body is structured.
func engineError(err error) error {
	var ite *workflow.InvalidTransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	case errors.Is(err, repository.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "workflow was modified concurrently, reload and retry")
	case errors.Is(err, workflow.ErrBypassJustification):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &ite):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ite.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
