package repository

import (
	"context"
	"errors"

	"roofline-crm/backend/pkg/models"
)

// Store errors. ErrConflict means the optimistic version check failed and the
// caller should reload and retry.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("version conflict")
)

// WorkflowStore persists production workflow instances.
type WorkflowStore interface {
	// Insert persists a new workflow instance.
	Insert(ctx context.Context, wf *models.ProductionWorkflow) error
	// GetByID retrieves a workflow by its ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*models.ProductionWorkflow, error)
	// GetBySubject retrieves the workflow attached to a job or project,
	// scoped to a tenant. Returns ErrNotFound if absent.
	GetBySubject(ctx context.Context, tenantID, subjectID string) (*models.ProductionWorkflow, error)
	// ListByTenant returns all workflows for a tenant.
	ListByTenant(ctx context.Context, tenantID string) ([]*models.ProductionWorkflow, error)
	// UpdateStage moves a workflow to a new stage. The version must match the
	// stored version; returns ErrConflict otherwise.
	UpdateStage(ctx context.Context, id string, stage models.Stage, version int) error
	// UpdateFlags replaces a workflow's document flags. The version must
	// match the stored version; returns ErrConflict otherwise.
	UpdateFlags(ctx context.Context, id string, flags models.ProductionFlags, version int) error
}

// HistoryStore is the append-only stage transition log.
type HistoryStore interface {
	AppendTransition(ctx context.Context, t *models.StageTransition) error
	ListTransitions(ctx context.Context, workflowID string) ([]*models.StageTransition, error)
}

// AuditStore is the append-only gate validation trail.
type AuditStore interface {
	AppendValidation(ctx context.Context, v *models.GateValidation) error
	ListValidations(ctx context.Context, workflowID string) ([]*models.GateValidation, error)
}

// TenantStore resolves and provisions tenants for the auth layer.
type TenantStore interface {
	GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
}

// PhotoCounter reports how many photos are documented for a job or project.
// Read-only; gate rule inputs come through here so the validator stays pure.
type PhotoCounter interface {
	CountPhotosForSubject(ctx context.Context, subjectID string) (int, error)
}
