package workflow

import (
	"errors"
	"fmt"
	"strings"

	"roofline-crm/backend/pkg/models"
)

// ErrBypassJustification is returned when a bypass is requested without an
// actor or a reason. No audit record is written for this.
var ErrBypassJustification = errors.New("gate bypass requires an actor and a justification")

// InvalidTransitionError reports a forward rank-skip or an unknown stage.
// This is a structural precondition failure, not a gate outcome, so no audit
// record accompanies it.
type InvalidTransitionError struct {
	From   models.Stage
	To     models.Stage
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// GateFailureError reports unmet stage-entry requirements on an advance with
// no bypass. A failed GateValidation record was persisted before this error
// was returned.
type GateFailureError struct {
	From     models.Stage
	To       models.Stage
	Failures []string
	Details  map[string]any
}

func (e *GateFailureError) Error() string {
	return fmt.Sprintf("gate validation failed for %s -> %s: %s", e.From, e.To, strings.Join(e.Failures, "; "))
}
