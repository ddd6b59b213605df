package models

import (
	"fmt"
	"strings"
)

// Stage is one of the fixed, ordered states a production workflow passes
// through on its way from document submission to close-out.
type Stage string

const (
	StageSubmitDocuments    Stage = "submit_documents"
	StagePermitSubmitted    Stage = "permit_submitted"
	StagePermitApproved     Stage = "permit_approved"
	StageMaterialsOrdered   Stage = "materials_ordered"
	StageMaterialsOnHold    Stage = "materials_on_hold"
	StageMaterialsDelivered Stage = "materials_delivered"
	StageInProgress         Stage = "in_progress"
	StageComplete           Stage = "complete"
	StageFinalInspection    Stage = "final_inspection"
	StageFinalCheckNeeded   Stage = "final_check_needed"
	StageClosed             Stage = "closed"
)

// ProductionStages returns all stages in production order, rank 1 first.
func ProductionStages() []Stage {
	return []Stage{
		StageSubmitDocuments,
		StagePermitSubmitted,
		StagePermitApproved,
		StageMaterialsOrdered,
		StageMaterialsOnHold,
		StageMaterialsDelivered,
		StageInProgress,
		StageComplete,
		StageFinalInspection,
		StageFinalCheckNeeded,
		StageClosed,
	}
}

// ParseStage parses a string into a Stage, case-insensitive.
func ParseStage(s string) (Stage, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, stage := range ProductionStages() {
		if string(stage) == lower {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown production stage %q", s)
}

// GateOutcome records how a gate validation attempt ended.
type GateOutcome string

const (
	GateOutcomePassed   GateOutcome = "passed"
	GateOutcomeFailed   GateOutcome = "failed"
	GateOutcomeBypassed GateOutcome = "bypassed"
)
