package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roofline-crm/backend/pkg/models"
)

// PostgresWorkflowStore is a PostgreSQL implementation of the workflow,
// history, audit and tenant stores.
type PostgresWorkflowStore struct {
	db *pgxpool.Pool
}

// NewPostgresWorkflowStore creates a new PostgresWorkflowStore.
func NewPostgresWorkflowStore(db *pgxpool.Pool) *PostgresWorkflowStore {
	return &PostgresWorkflowStore{db: db}
}

const workflowColumns = `id, tenant_id, job_id, project_id, current_stage,
	noc_uploaded, permit_application_submitted, permit_approved,
	materials_ordered, materials_delivered, work_completed,
	final_inspection_passed, version, created_by, created_at, updated_at`

func scanWorkflow(row pgx.Row) (*models.ProductionWorkflow, error) {
	var wf models.ProductionWorkflow
	err := row.Scan(
		&wf.ID, &wf.TenantID, &wf.JobID, &wf.ProjectID, &wf.CurrentStage,
		&wf.Flags.NOCUploaded, &wf.Flags.PermitApplicationSubmitted, &wf.Flags.PermitApproved,
		&wf.Flags.MaterialsOrdered, &wf.Flags.MaterialsDelivered, &wf.Flags.WorkCompleted,
		&wf.Flags.FinalInspectionPassed, &wf.Version, &wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// Insert persists a new workflow instance.
func (s *PostgresWorkflowStore) Insert(ctx context.Context, wf *models.ProductionWorkflow) error {
	_, err := s.db.Exec(ctx, `INSERT INTO production_workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		wf.ID, wf.TenantID, wf.JobID, wf.ProjectID, wf.CurrentStage,
		wf.Flags.NOCUploaded, wf.Flags.PermitApplicationSubmitted, wf.Flags.PermitApproved,
		wf.Flags.MaterialsOrdered, wf.Flags.MaterialsDelivered, wf.Flags.WorkCompleted,
		wf.Flags.FinalInspectionPassed, wf.Version, wf.CreatedBy, wf.CreatedAt, wf.UpdatedAt)
	return err
}

// GetByID retrieves a workflow by its ID.
func (s *PostgresWorkflowStore) GetByID(ctx context.Context, id string) (*models.ProductionWorkflow, error) {
	row := s.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM production_workflows WHERE id = $1`, id)
	return scanWorkflow(row)
}

// GetBySubject retrieves the workflow attached to a job or project.
func (s *PostgresWorkflowStore) GetBySubject(ctx context.Context, tenantID, subjectID string) (*models.ProductionWorkflow, error) {
	row := s.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM production_workflows
		WHERE tenant_id = $1 AND (job_id = $2 OR project_id = $2)`, tenantID, subjectID)
	return scanWorkflow(row)
}

// ListByTenant returns all workflows for a tenant, newest first.
func (s *PostgresWorkflowStore) ListByTenant(ctx context.Context, tenantID string) ([]*models.ProductionWorkflow, error) {
	rows, err := s.db.Query(ctx, `SELECT `+workflowColumns+` FROM production_workflows
		WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*models.ProductionWorkflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// UpdateStage moves a workflow to a new stage with an optimistic version
// check. Two racing advances cannot both commit against the same version.
func (s *PostgresWorkflowStore) UpdateStage(ctx context.Context, id string, stage models.Stage, version int) error {
	ct, err := s.db.Exec(ctx, `UPDATE production_workflows
		SET current_stage = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3`, stage, id, version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateFlags replaces a workflow's document flags with an optimistic version
// check.
func (s *PostgresWorkflowStore) UpdateFlags(ctx context.Context, id string, flags models.ProductionFlags, version int) error {
	ct, err := s.db.Exec(ctx, `UPDATE production_workflows
		SET noc_uploaded = $1, permit_application_submitted = $2, permit_approved = $3,
			materials_ordered = $4, materials_delivered = $5, work_completed = $6,
			final_inspection_passed = $7, version = version + 1, updated_at = now()
		WHERE id = $8 AND version = $9`,
		flags.NOCUploaded, flags.PermitApplicationSubmitted, flags.PermitApproved,
		flags.MaterialsOrdered, flags.MaterialsDelivered, flags.WorkCompleted,
		flags.FinalInspectionPassed, id, version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// AppendTransition adds a stage transition to the history log.
func (s *PostgresWorkflowStore) AppendTransition(ctx context.Context, t *models.StageTransition) error {
	_, err := s.db.Exec(ctx, `INSERT INTO stage_transitions (id, workflow_id, from_stage, to_stage, actor, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.WorkflowID, t.FromStage, t.ToStage, t.Actor, t.Notes, t.CreatedAt)
	return err
}

// ListTransitions returns a workflow's transition history, oldest first.
func (s *PostgresWorkflowStore) ListTransitions(ctx context.Context, workflowID string) ([]*models.StageTransition, error) {
	rows, err := s.db.Query(ctx, `SELECT id, workflow_id, from_stage, to_stage, actor, notes, created_at
		FROM stage_transitions WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []*models.StageTransition
	for rows.Next() {
		var t models.StageTransition
		if err := rows.Scan(&t.ID, &t.WorkflowID, &t.FromStage, &t.ToStage, &t.Actor, &t.Notes, &t.CreatedAt); err != nil {
			return nil, err
		}
		transitions = append(transitions, &t)
	}
	return transitions, rows.Err()
}

// AppendValidation adds a gate validation record to the audit trail.
func (s *PostgresWorkflowStore) AppendValidation(ctx context.Context, v *models.GateValidation) error {
	_, err := s.db.Exec(ctx, `INSERT INTO gate_validations (id, workflow_id, from_stage, to_stage, outcome,
		failures, details, bypass_actor, bypass_reason, validated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		v.ID, v.WorkflowID, v.FromStage, v.ToStage, v.Outcome,
		v.Failures, v.Details, v.BypassActor, v.BypassReason, v.ValidatedBy, v.CreatedAt)
	return err
}

// ListValidations returns a workflow's gate validation trail, oldest first.
func (s *PostgresWorkflowStore) ListValidations(ctx context.Context, workflowID string) ([]*models.GateValidation, error) {
	rows, err := s.db.Query(ctx, `SELECT id, workflow_id, from_stage, to_stage, outcome,
		failures, details, bypass_actor, bypass_reason, validated_by, created_at
		FROM gate_validations WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var validations []*models.GateValidation
	for rows.Next() {
		var v models.GateValidation
		if err := rows.Scan(&v.ID, &v.WorkflowID, &v.FromStage, &v.ToStage, &v.Outcome,
			&v.Failures, &v.Details, &v.BypassActor, &v.BypassReason, &v.ValidatedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		validations = append(validations, &v)
	}
	return validations, rows.Err()
}

// GetTenantByDomain retrieves a tenant by its email domain.
func (s *PostgresWorkflowStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRow(ctx, `SELECT id, name, domain, created_at, updated_at FROM tenants WHERE domain = $1`, domain).
		Scan(&t.ID, &t.Name, &t.Domain, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTenant inserts a new tenant, filling in its generated ID.
func (s *PostgresWorkflowStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	return s.db.QueryRow(ctx, `INSERT INTO tenants (name, domain) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
		tenant.Name, tenant.Domain).Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
}
