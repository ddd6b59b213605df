// Package models defines the domain models for the production service
package models

import (
	"errors"
	"fmt"
	"time"
)

// ProductionFlags are the document/progress booleans tracked on a workflow.
// Stage gates read these; they are only ever written by the flag updater.
type ProductionFlags struct {
	NOCUploaded                bool `json:"noc_uploaded" db:"noc_uploaded"`
	PermitApplicationSubmitted bool `json:"permit_application_submitted" db:"permit_application_submitted"`
	PermitApproved             bool `json:"permit_approved" db:"permit_approved"`
	MaterialsOrdered           bool `json:"materials_ordered" db:"materials_ordered"`
	MaterialsDelivered         bool `json:"materials_delivered" db:"materials_delivered"`
	WorkCompleted              bool `json:"work_completed" db:"work_completed"`
	FinalInspectionPassed      bool `json:"final_inspection_passed" db:"final_inspection_passed"`
}

// FlagPatch is a partial update to ProductionFlags. Nil fields are left
// untouched.
type FlagPatch struct {
	NOCUploaded                *bool `json:"noc_uploaded,omitempty"`
	PermitApplicationSubmitted *bool `json:"permit_application_submitted,omitempty"`
	PermitApproved             *bool `json:"permit_approved,omitempty"`
	MaterialsOrdered           *bool `json:"materials_ordered,omitempty"`
	MaterialsDelivered         *bool `json:"materials_delivered,omitempty"`
	WorkCompleted              *bool `json:"work_completed,omitempty"`
	FinalInspectionPassed      *bool `json:"final_inspection_passed,omitempty"`
}

// Apply merges the patch into flags and returns a "name: value" summary for
// every supplied field, in declaration order so notes are deterministic.
func (p FlagPatch) Apply(flags *ProductionFlags) []string {
	fields := []struct {
		name string
		src  *bool
		dst  *bool
	}{
		{"noc_uploaded", p.NOCUploaded, &flags.NOCUploaded},
		{"permit_application_submitted", p.PermitApplicationSubmitted, &flags.PermitApplicationSubmitted},
		{"permit_approved", p.PermitApproved, &flags.PermitApproved},
		{"materials_ordered", p.MaterialsOrdered, &flags.MaterialsOrdered},
		{"materials_delivered", p.MaterialsDelivered, &flags.MaterialsDelivered},
		{"work_completed", p.WorkCompleted, &flags.WorkCompleted},
		{"final_inspection_passed", p.FinalInspectionPassed, &flags.FinalInspectionPassed},
	}

	var changed []string
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		*f.dst = *f.src
		changed = append(changed, fmt.Sprintf("%s: %t", f.name, *f.src))
	}
	return changed
}

// SubjectRef identifies the job or project a workflow belongs to. Exactly one
// of the two IDs must be set.
type SubjectRef struct {
	JobID     *string `json:"job_id,omitempty"`
	ProjectID *string `json:"project_id,omitempty"`
}

// Validate checks that exactly one subject ID is present.
func (s SubjectRef) Validate() error {
	if (s.JobID == nil) == (s.ProjectID == nil) {
		return errors.New("exactly one of job_id or project_id must be set")
	}
	return nil
}

// ID returns whichever subject ID is set.
func (s SubjectRef) ID() string {
	if s.JobID != nil {
		return *s.JobID
	}
	if s.ProjectID != nil {
		return *s.ProjectID
	}
	return ""
}

// ProductionWorkflow is one job/project's production run. There is at most
// one per subject; the stage is only mutated by the transition executor and
// the flags only by the flag updater.
type ProductionWorkflow struct {
	ID           string          `json:"id" db:"id"`
	TenantID     string          `json:"tenant_id" db:"tenant_id"`
	JobID        *string         `json:"job_id,omitempty" db:"job_id"`
	ProjectID    *string         `json:"project_id,omitempty" db:"project_id"`
	CurrentStage Stage           `json:"current_stage" db:"current_stage"`
	Flags        ProductionFlags `json:"flags"`
	Version      int             `json:"version" db:"version"`
	CreatedBy    string          `json:"created_by" db:"created_by"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// SubjectID returns the job or project ID the workflow is attached to.
func (w *ProductionWorkflow) SubjectID() string {
	if w.JobID != nil {
		return *w.JobID
	}
	if w.ProjectID != nil {
		return *w.ProjectID
	}
	return ""
}

// StageTransition is an immutable history entry written once per successful
// or bypassed advance, and once per flag update (with from == to).
type StageTransition struct {
	ID         string    `json:"id" db:"id"`
	WorkflowID string    `json:"workflow_id" db:"workflow_id"`
	FromStage  Stage     `json:"from_stage" db:"from_stage"`
	ToStage    Stage     `json:"to_stage" db:"to_stage"`
	Actor      string    `json:"actor" db:"actor"`
	Notes      string    `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// GateValidation is the immutable audit entry written once per attempted
// advance, whatever the outcome. Rejected attempts leave no other trace.
type GateValidation struct {
	ID           string         `json:"id" db:"id"`
	WorkflowID   string         `json:"workflow_id" db:"workflow_id"`
	FromStage    Stage          `json:"from_stage" db:"from_stage"`
	ToStage      Stage          `json:"to_stage" db:"to_stage"`
	Outcome      GateOutcome    `json:"outcome" db:"outcome"`
	Failures     []string       `json:"failures,omitempty" db:"failures"`
	Details      map[string]any `json:"details,omitempty" db:"details"`
	BypassActor  *string        `json:"bypass_actor,omitempty" db:"bypass_actor"`
	BypassReason *string        `json:"bypass_reason,omitempty" db:"bypass_reason"`
	ValidatedBy  string         `json:"validated_by" db:"validated_by"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// GateResult is the outcome of evaluating stage-entry requirements. Failures
// accumulate; a single attempt can report every unmet requirement at once.
type GateResult struct {
	Passed   bool           `json:"passed"`
	Failures []string       `json:"failures,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// AdvanceResult is returned to the caller after a committed stage change.
type AdvanceResult struct {
	PreviousStage Stage `json:"previous_stage"`
	NewStage      Stage `json:"new_stage"`
	GateValidated bool  `json:"gate_validated"`
	GateBypassed  bool  `json:"gate_bypassed"`
}

// WorkflowDetail bundles a workflow with its full timeline for read APIs.
type WorkflowDetail struct {
	Workflow    *ProductionWorkflow `json:"workflow"`
	History     []*StageTransition  `json:"history"`
	Validations []*GateValidation   `json:"validations"`
}
