// Package workflow implements the production stage-gate engine: an ordered
// stage catalog, per-stage entry gates, a transition executor with a
// supervised bypass path, and a flag updater. All state lives in the backing
// store; the engine holds nothing mutable between calls.
package workflow

import (
	"roofline-crm/backend/pkg/models"
)

// StageGraph is the fixed, ordered catalog of production stages. Ranks start
// at 1. It decides whether a requested move is a forward step, a skip, or a
// correction; it never looks at document flags.
type StageGraph struct {
	order []models.Stage
	ranks map[models.Stage]int
}

// NewStageGraph builds a graph over the given stage order, or the default
// production order when none is supplied.
func NewStageGraph(order ...models.Stage) *StageGraph {
	if len(order) == 0 {
		order = models.ProductionStages()
	}
	ranks := make(map[models.Stage]int, len(order))
	for i, s := range order {
		ranks[s] = i + 1
	}
	return &StageGraph{order: order, ranks: ranks}
}

// First returns the initial stage for new workflows.
func (g *StageGraph) First() models.Stage {
	return g.order[0]
}

// Rank returns a stage's position in the production order, 1-based.
func (g *StageGraph) Rank(s models.Stage) (int, bool) {
	r, ok := g.ranks[s]
	return r, ok
}

// CheckOrdering enforces the sequencing invariant. Backward and same-rank
// moves are always structurally allowed (corrections); forward moves may only
// step to the next rank. Bypass never waives this check.
func (g *StageGraph) CheckOrdering(from, to models.Stage) error {
	fromRank, ok := g.ranks[from]
	if !ok {
		return &InvalidTransitionError{From: from, To: to, Reason: "unknown current stage"}
	}
	toRank, ok := g.ranks[to]
	if !ok {
		return &InvalidTransitionError{From: from, To: to, Reason: "unknown target stage"}
	}
	if toRank <= fromRank {
		return nil
	}
	if toRank > fromRank+1 {
		return &InvalidTransitionError{From: from, To: to, Reason: "cannot skip stages, must progress sequentially"}
	}
	return nil
}

// IsForward reports whether the move increases rank. Both stages must be
// known to the graph.
func (g *StageGraph) IsForward(from, to models.Stage) bool {
	return g.ranks[to] > g.ranks[from]
}
