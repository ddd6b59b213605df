package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"roofline-crm/backend/pkg/models"
)

const testSchema = `
CREATE TABLE tenants (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	domain TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE production_workflows (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL,
	job_id TEXT,
	project_id TEXT,
	current_stage TEXT NOT NULL,
	noc_uploaded BOOLEAN NOT NULL DEFAULT false,
	permit_application_submitted BOOLEAN NOT NULL DEFAULT false,
	permit_approved BOOLEAN NOT NULL DEFAULT false,
	materials_ordered BOOLEAN NOT NULL DEFAULT false,
	materials_delivered BOOLEAN NOT NULL DEFAULT false,
	work_completed BOOLEAN NOT NULL DEFAULT false,
	final_inspection_passed BOOLEAN NOT NULL DEFAULT false,
	version INT NOT NULL,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CHECK (job_id IS NOT NULL OR project_id IS NOT NULL)
);
CREATE TABLE stage_transitions (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL,
	from_stage TEXT NOT NULL,
	to_stage TEXT NOT NULL,
	actor TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE gate_validations (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL,
	from_stage TEXT NOT NULL,
	to_stage TEXT NOT NULL,
	outcome TEXT NOT NULL,
	failures TEXT[],
	details JSONB,
	bypass_actor TEXT,
	bypass_reason TEXT,
	validated_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

func newWorkflow(tenantID, jobID string) *models.ProductionWorkflow {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.ProductionWorkflow{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		JobID:        &jobID,
		CurrentStage: models.StageSubmitDocuments,
		Version:      1,
		CreatedBy:    "test@roofline.dev",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresWorkflowStore(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, testSchema); err != nil {
		t.Fatal(err)
	}

	store := NewPostgresWorkflowStore(pool)
	tenantID := uuid.New().String()

	t.Run("Insert and GetByID", func(t *testing.T) {
		wf := newWorkflow(tenantID, "job-1001")
		wf.Flags.NOCUploaded = true

		err := store.Insert(ctx, wf)
		assert.NoError(t, err)

		retrieved, err := store.GetByID(ctx, wf.ID)
		assert.NoError(t, err)
		assert.Equal(t, wf.ID, retrieved.ID)
		assert.Equal(t, wf.TenantID, retrieved.TenantID)
		assert.Equal(t, "job-1001", *retrieved.JobID)
		assert.Nil(t, retrieved.ProjectID)
		assert.Equal(t, models.StageSubmitDocuments, retrieved.CurrentStage)
		assert.True(t, retrieved.Flags.NOCUploaded)
		assert.False(t, retrieved.Flags.PermitApproved)
		assert.Equal(t, 1, retrieved.Version)
	})

	t.Run("GetByID not found", func(t *testing.T) {
		_, err := store.GetByID(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("GetBySubject is tenant scoped", func(t *testing.T) {
		wf := newWorkflow(tenantID, "job-1002")
		assert.NoError(t, store.Insert(ctx, wf))

		retrieved, err := store.GetBySubject(ctx, tenantID, "job-1002")
		assert.NoError(t, err)
		assert.Equal(t, wf.ID, retrieved.ID)

		_, err = store.GetBySubject(ctx, uuid.New().String(), "job-1002")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListByTenant", func(t *testing.T) {
		otherTenant := uuid.New().String()
		assert.NoError(t, store.Insert(ctx, newWorkflow(otherTenant, "job-2001")))
		assert.NoError(t, store.Insert(ctx, newWorkflow(otherTenant, "job-2002")))

		workflows, err := store.ListByTenant(ctx, otherTenant)
		assert.NoError(t, err)
		assert.Len(t, workflows, 2)
	})

	t.Run("UpdateStage bumps version", func(t *testing.T) {
		wf := newWorkflow(tenantID, "job-1003")
		assert.NoError(t, store.Insert(ctx, wf))

		err := store.UpdateStage(ctx, wf.ID, models.StagePermitSubmitted, 1)
		assert.NoError(t, err)

		retrieved, err := store.GetByID(ctx, wf.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.StagePermitSubmitted, retrieved.CurrentStage)
		assert.Equal(t, 2, retrieved.Version)
	})

	t.Run("UpdateStage stale version conflicts", func(t *testing.T) {
		wf := newWorkflow(tenantID, "job-1004")
		assert.NoError(t, store.Insert(ctx, wf))

		// first writer wins
		assert.NoError(t, store.UpdateStage(ctx, wf.ID, models.StagePermitSubmitted, 1))

		// second writer using the same version loses
		err := store.UpdateStage(ctx, wf.ID, models.StagePermitSubmitted, 1)
		assert.ErrorIs(t, err, ErrConflict)

		retrieved, err := store.GetByID(ctx, wf.ID)
		assert.NoError(t, err)
		assert.Equal(t, 2, retrieved.Version)
	})

	t.Run("UpdateFlags", func(t *testing.T) {
		wf := newWorkflow(tenantID, "job-1005")
		assert.NoError(t, store.Insert(ctx, wf))

		flags := wf.Flags
		flags.PermitApproved = true
		flags.MaterialsDelivered = true
		assert.NoError(t, store.UpdateFlags(ctx, wf.ID, flags, 1))

		retrieved, err := store.GetByID(ctx, wf.ID)
		assert.NoError(t, err)
		assert.True(t, retrieved.Flags.PermitApproved)
		assert.True(t, retrieved.Flags.MaterialsDelivered)
		assert.Equal(t, 2, retrieved.Version)

		err = store.UpdateFlags(ctx, wf.ID, flags, 1)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("Transition history ordering", func(t *testing.T) {
		wf := newWorkflow(tenantID, "job-1006")
		assert.NoError(t, store.Insert(ctx, wf))

		base := time.Now().UTC().Truncate(time.Microsecond)
		stages := []models.Stage{models.StagePermitSubmitted, models.StagePermitApproved}
		from := models.StageSubmitDocuments
		for i, to := range stages {
			assert.NoError(t, store.AppendTransition(ctx, &models.StageTransition{
				ID:         uuid.New().String(),
				WorkflowID: wf.ID,
				FromStage:  from,
				ToStage:    to,
				Actor:      "pm@roofline.dev",
				Notes:      "Stage advanced",
				CreatedAt:  base.Add(time.Duration(i) * time.Second),
			}))
			from = to
		}

		transitions, err := store.ListTransitions(ctx, wf.ID)
		assert.NoError(t, err)
		assert.Len(t, transitions, 2)
		assert.Equal(t, models.StagePermitSubmitted, transitions[0].ToStage)
		assert.Equal(t, models.StagePermitApproved, transitions[1].ToStage)
	})

	t.Run("Validation trail roundtrip", func(t *testing.T) {
		wf := newWorkflow(tenantID, "job-1007")
		assert.NoError(t, store.Insert(ctx, wf))

		reason := "inspector waived the permit check"
		actor := "ops-manager@roofline.dev"
		v := &models.GateValidation{
			ID:         uuid.New().String(),
			WorkflowID: wf.ID,
			FromStage:  models.StageMaterialsDelivered,
			ToStage:    models.StageInProgress,
			Outcome:    models.GateOutcomeBypassed,
			Failures:   []string{"Permit must be approved before proceeding", "Minimum 5 photos required"},
			Details: map[string]any{
				"photos_required": 5,
				"photos_actual":   2,
			},
			BypassActor:  &actor,
			BypassReason: &reason,
			ValidatedBy:  actor,
			CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		}
		assert.NoError(t, store.AppendValidation(ctx, v))

		validations, err := store.ListValidations(ctx, wf.ID)
		assert.NoError(t, err)
		assert.Len(t, validations, 1)
		got := validations[0]
		assert.Equal(t, models.GateOutcomeBypassed, got.Outcome)
		assert.Equal(t, v.Failures, got.Failures)
		assert.Equal(t, reason, *got.BypassReason)
		assert.Equal(t, float64(5), got.Details["photos_required"])
	})

	t.Run("Tenant create and lookup", func(t *testing.T) {
		tenant := &models.Tenant{Name: "Acme Roofing", Domain: "acmeroofing.com"}
		assert.NoError(t, store.CreateTenant(ctx, tenant))
		assert.NotEmpty(t, tenant.ID)

		retrieved, err := store.GetTenantByDomain(ctx, "acmeroofing.com")
		assert.NoError(t, err)
		assert.Equal(t, tenant.ID, retrieved.ID)

		_, err = store.GetTenantByDomain(ctx, "missing.example")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
