package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"roofline-crm/backend/internal/repository"
	"roofline-crm/backend/internal/telemetry"
	"roofline-crm/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Store is the persistence surface the engine needs: workflow state plus the
// two append-only logs.
type Store interface {
	repository.WorkflowStore
	repository.HistoryStore
	repository.AuditStore
}

// Engine orchestrates stage transitions for production workflows. Each call
// is one bounded read-validate-write sequence; concurrent advances on the
// same workflow are resolved by the store's version check.
type Engine struct {
	graph   *StageGraph
	gates   *GateValidator
	store   Store
	photos  repository.PhotoCounter
	logger  Logger
	metrics *telemetry.EngineMetrics
}

// NewEngine creates an Engine over the default production stage order.
// metrics may be nil when telemetry is not wired (tests).
func NewEngine(store Store, photos repository.PhotoCounter, logger Logger, metrics *telemetry.EngineMetrics) *Engine {
	graph := NewStageGraph()
	return &Engine{
		graph:   graph,
		gates:   NewGateValidator(graph),
		store:   store,
		photos:  photos,
		logger:  logger,
		metrics: metrics,
	}
}

// AdvanceRequest carries one advance attempt. Bypass forces the transition
// past a failed gate and requires both an actor and a reason; it never waives
// the stage-ordering check.
type AdvanceRequest struct {
	WorkflowID   string
	ToStage      models.Stage
	Actor        string
	Notes        string
	Bypass       bool
	BypassReason string
}

// Create starts production for a subject. It is idempotent: if a workflow
// already exists for the job or project, that instance is returned unchanged.
func (e *Engine) Create(ctx context.Context, tenantID string, subject models.SubjectRef, actor string) (*models.ProductionWorkflow, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	existing, err := e.store.GetBySubject(ctx, tenantID, subject.ID())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	wf := &models.ProductionWorkflow{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		JobID:        subject.JobID,
		ProjectID:    subject.ProjectID,
		CurrentStage: e.graph.First(),
		Version:      1,
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.Insert(ctx, wf); err != nil {
		return nil, fmt.Errorf("creating workflow for subject %s: %w", subject.ID(), err)
	}
	e.logger.Info("production workflow created: id=%s subject=%s stage=%s", wf.ID, subject.ID(), wf.CurrentStage)
	return wf, nil
}

// Get returns a subject's workflow together with its transition history and
// gate validation trail.
func (e *Engine) Get(ctx context.Context, tenantID, subjectID string) (*models.WorkflowDetail, error) {
	wf, err := e.store.GetBySubject(ctx, tenantID, subjectID)
	if err != nil {
		return nil, err
	}
	history, err := e.store.ListTransitions(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("loading transition history: %w", err)
	}
	validations, err := e.store.ListValidations(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("loading validation trail: %w", err)
	}
	return &models.WorkflowDetail{Workflow: wf, History: history, Validations: validations}, nil
}

// List returns all of a tenant's production workflows.
func (e *Engine) List(ctx context.Context, tenantID string) ([]*models.ProductionWorkflow, error) {
	return e.store.ListByTenant(ctx, tenantID)
}

// Advance attempts one stage transition. Ordering violations are rejected
// before any audit record is written; every attempt that reaches gate
// validation leaves exactly one GateValidation record, whatever the outcome.
func (e *Engine) Advance(ctx context.Context, req AdvanceRequest) (*models.AdvanceResult, error) {
	if req.Bypass && (strings.TrimSpace(req.Actor) == "" || strings.TrimSpace(req.BypassReason) == "") {
		return nil, ErrBypassJustification
	}

	wf, err := e.store.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if err := e.graph.CheckOrdering(wf.CurrentStage, req.ToStage); err != nil {
		return nil, err
	}

	photoCount := 0
	if _, needed := e.gates.PhotoMinimum(req.ToStage); needed && e.graph.IsForward(wf.CurrentStage, req.ToStage) {
		photoCount, err = e.photos.CountPhotosForSubject(ctx, wf.SubjectID())
		if err != nil {
			return nil, fmt.Errorf("counting photos for subject %s: %w", wf.SubjectID(), err)
		}
	}

	res := e.gates.Evaluate(wf.CurrentStage, req.ToStage, wf.Flags, photoCount)

	// A bypass on a gate that passes on its own is recorded as passed, so
	// bypass statistics only count genuine overrides.
	outcome := models.GateOutcomePassed
	if !res.Passed {
		outcome = models.GateOutcomeFailed
		if req.Bypass {
			outcome = models.GateOutcomeBypassed
		}
	}

	validation := &models.GateValidation{
		ID:          uuid.New().String(),
		WorkflowID:  wf.ID,
		FromStage:   wf.CurrentStage,
		ToStage:     req.ToStage,
		Outcome:     outcome,
		Failures:    res.Failures,
		Details:     res.Details,
		ValidatedBy: req.Actor,
		CreatedAt:   time.Now().UTC(),
	}
	if outcome == models.GateOutcomeBypassed {
		validation.BypassActor = &req.Actor
		validation.BypassReason = &req.BypassReason
	}

	// The audit record goes in before the stage commit: a failed commit must
	// not lose the attempt from the trail.
	if err := e.store.AppendValidation(ctx, validation); err != nil {
		return nil, fmt.Errorf("recording gate validation: %w", err)
	}
	e.countAttempt(ctx, outcome)

	if outcome == models.GateOutcomeFailed {
		return nil, &GateFailureError{From: wf.CurrentStage, To: req.ToStage, Failures: res.Failures, Details: res.Details}
	}

	if err := e.store.UpdateStage(ctx, wf.ID, req.ToStage, wf.Version); err != nil {
		return nil, fmt.Errorf("committing stage %s: %w", req.ToStage, err)
	}

	notes := req.Notes
	if notes == "" {
		notes = fmt.Sprintf("Stage advanced from %s to %s", wf.CurrentStage, req.ToStage)
		if outcome == models.GateOutcomeBypassed {
			notes += " (gate bypassed)"
		}
	}
	transition := &models.StageTransition{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		FromStage:  wf.CurrentStage,
		ToStage:    req.ToStage,
		Actor:      req.Actor,
		Notes:      notes,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.AppendTransition(ctx, transition); err != nil {
		return nil, fmt.Errorf("recording stage transition: %w", err)
	}

	if outcome == models.GateOutcomeBypassed {
		e.logger.Info("gate bypassed: workflow=%s %s -> %s actor=%s reason=%q",
			wf.ID, wf.CurrentStage, req.ToStage, req.Actor, req.BypassReason)
	} else {
		e.logger.Debug("stage advanced: workflow=%s %s -> %s", wf.ID, wf.CurrentStage, req.ToStage)
	}

	return &models.AdvanceResult{
		PreviousStage: wf.CurrentStage,
		NewStage:      req.ToStage,
		GateValidated: outcome != models.GateOutcomeBypassed,
		GateBypassed:  outcome == models.GateOutcomeBypassed,
	}, nil
}

// UpdateFlags merges a partial flag update into a workflow. The stage is
// untouched and no gate runs; the change lands on the same timeline as stage
// transitions via a from == to history entry.
func (e *Engine) UpdateFlags(ctx context.Context, workflowID string, patch models.FlagPatch, actor string) (*models.ProductionWorkflow, error) {
	wf, err := e.store.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	changed := patch.Apply(&wf.Flags)
	if len(changed) == 0 {
		return wf, nil
	}

	if err := e.store.UpdateFlags(ctx, wf.ID, wf.Flags, wf.Version); err != nil {
		return nil, fmt.Errorf("committing flag update: %w", err)
	}

	now := time.Now().UTC()
	transition := &models.StageTransition{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		FromStage:  wf.CurrentStage,
		ToStage:    wf.CurrentStage,
		Actor:      actor,
		Notes:      "Document updates: " + strings.Join(changed, ", "),
		CreatedAt:  now,
	}
	if err := e.store.AppendTransition(ctx, transition); err != nil {
		return nil, fmt.Errorf("recording flag update: %w", err)
	}

	wf.Version++
	wf.UpdatedAt = now
	return wf, nil
}

func (e *Engine) countAttempt(ctx context.Context, outcome models.GateOutcome) {
	if e.metrics == nil {
		return
	}
	e.metrics.Advances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
	switch outcome {
	case models.GateOutcomeFailed:
		e.metrics.GateFailures.Add(ctx, 1)
	case models.GateOutcomeBypassed:
		e.metrics.Bypasses.Add(ctx, 1)
	}
}
