package workflow

import (
	"fmt"

	"roofline-crm/backend/pkg/models"
)

// flagRule ties one document flag to the failure message reported when the
// flag is not yet set.
type flagRule struct {
	flag    string
	met     func(models.ProductionFlags) bool
	message string
}

// GateValidator evaluates stage-entry requirements. It is pure: everything it
// needs (flags, photo count) is handed in by the caller, so identical inputs
// always produce identical output. Failures accumulate rather than
// short-circuit, and rules run in a fixed order.
type GateValidator struct {
	graph         *StageGraph
	exitRules     map[models.Stage][]flagRule
	entryRules    map[models.Stage][]flagRule
	photoMinimums map[models.Stage]int
}

// NewGateValidator builds the validator with the production requirement
// tables. The tables are constructed here rather than held as package state
// so per-tenant engine instances stay independent.
func NewGateValidator(graph *StageGraph) *GateValidator {
	return &GateValidator{
		graph: graph,
		exitRules: map[models.Stage][]flagRule{
			models.StageSubmitDocuments: {
				{"noc_uploaded", func(f models.ProductionFlags) bool { return f.NOCUploaded },
					"NOC document must be uploaded before leaving submit_documents"},
				{"permit_application_submitted", func(f models.ProductionFlags) bool { return f.PermitApplicationSubmitted },
					"permit application must be submitted before leaving submit_documents"},
			},
			models.StagePermitSubmitted: {
				{"permit_approved", func(f models.ProductionFlags) bool { return f.PermitApproved },
					"permit must be approved before leaving permit_submitted"},
			},
			models.StageMaterialsOrdered: {
				{"materials_ordered", func(f models.ProductionFlags) bool { return f.MaterialsOrdered },
					"materials must be ordered before leaving materials_ordered"},
			},
			models.StageMaterialsDelivered: {
				{"materials_delivered", func(f models.ProductionFlags) bool { return f.MaterialsDelivered },
					"materials must be delivered before leaving materials_delivered"},
			},
			models.StageInProgress: {
				{"work_completed", func(f models.ProductionFlags) bool { return f.WorkCompleted },
					"work must be completed before leaving in_progress"},
			},
			models.StageFinalInspection: {
				{"final_inspection_passed", func(f models.ProductionFlags) bool { return f.FinalInspectionPassed },
					"final inspection must pass before leaving final_inspection"},
			},
		},
		entryRules: map[models.Stage][]flagRule{
			models.StageMaterialsOrdered: {
				{"noc_uploaded", func(f models.ProductionFlags) bool { return f.NOCUploaded },
					"NOC document must be uploaded before ordering materials"},
			},
			models.StageInProgress: {
				{"permit_approved", func(f models.ProductionFlags) bool { return f.PermitApproved },
					"permit must be approved before work can begin"},
				{"materials_delivered", func(f models.ProductionFlags) bool { return f.MaterialsDelivered },
					"materials must be delivered before work can begin"},
			},
			models.StageComplete: {
				{"permit_approved", func(f models.ProductionFlags) bool { return f.PermitApproved },
					"permit must be approved before marking work complete"},
			},
			models.StageFinalInspection: {
				{"work_completed", func(f models.ProductionFlags) bool { return f.WorkCompleted },
					"work must be completed before final inspection"},
			},
			models.StageClosed: {
				{"final_inspection_passed", func(f models.ProductionFlags) bool { return f.FinalInspectionPassed },
					"final inspection must pass before closing out the job"},
			},
		},
		photoMinimums: map[models.Stage]int{
			models.StageInProgress:      5,
			models.StageComplete:        10,
			models.StageFinalInspection: 15,
		},
	}
}

// PhotoMinimum returns the photo-documentation threshold for entering a
// stage, if one applies.
func (v *GateValidator) PhotoMinimum(to models.Stage) (int, bool) {
	min, ok := v.photoMinimums[to]
	return min, ok
}

// Evaluate checks every requirement for moving from one stage to another.
// Backward and same-rank moves are corrections and skip content gates
// entirely; gates guard forward entry only.
func (v *GateValidator) Evaluate(from, to models.Stage, flags models.ProductionFlags, photoCount int) models.GateResult {
	if !v.graph.IsForward(from, to) {
		return models.GateResult{Passed: true, Details: map[string]any{"corrective_move": true}}
	}

	var failures []string
	var missing []string
	details := make(map[string]any)

	for _, r := range v.exitRules[from] {
		if !r.met(flags) {
			failures = append(failures, r.message)
			missing = append(missing, r.flag)
		}
	}
	for _, r := range v.entryRules[to] {
		if !r.met(flags) {
			failures = append(failures, r.message)
			missing = append(missing, r.flag)
		}
	}
	if min, ok := v.photoMinimums[to]; ok && photoCount < min {
		failures = append(failures, fmt.Sprintf("at least %d photos must be documented before entering %s, found %d", min, to, photoCount))
		details["photos_required"] = min
		details["photos_actual"] = photoCount
	}

	if len(missing) > 0 {
		details["missing_flags"] = missing
	}
	if len(details) == 0 {
		details = nil
	}
	return models.GateResult{Passed: len(failures) == 0, Failures: failures, Details: details}
}
