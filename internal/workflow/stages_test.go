package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"roofline-crm/backend/pkg/models"
)

func TestStageGraphRanks(t *testing.T) {
	g := NewStageGraph()

	r, ok := g.Rank(models.StageSubmitDocuments)
	assert.True(t, ok)
	assert.Equal(t, 1, r)

	r, ok = g.Rank(models.StageClosed)
	assert.True(t, ok)
	assert.Equal(t, 11, r)

	_, ok = g.Rank(models.Stage("demolition"))
	assert.False(t, ok)

	assert.Equal(t, models.StageSubmitDocuments, g.First())
}

func TestCheckOrdering(t *testing.T) {
	g := NewStageGraph()

	cases := []struct {
		name    string
		from    models.Stage
		to      models.Stage
		allowed bool
	}{
		{"single forward step", models.StageSubmitDocuments, models.StagePermitSubmitted, true},
		{"same rank", models.StageInProgress, models.StageInProgress, true},
		{"backward correction", models.StageComplete, models.StageMaterialsDelivered, true},
		{"backward out of closed", models.StageClosed, models.StageFinalCheckNeeded, true},
		{"skip one stage", models.StageSubmitDocuments, models.StagePermitApproved, false},
		{"skip to materials", models.StageSubmitDocuments, models.StageMaterialsOrdered, false},
		{"skip to closed", models.StageInProgress, models.StageClosed, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.CheckOrdering(tc.from, tc.to)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			var ite *InvalidTransitionError
			assert.True(t, errors.As(err, &ite))
			assert.Equal(t, tc.from, ite.From)
			assert.Equal(t, tc.to, ite.To)
			assert.Contains(t, ite.Reason, "cannot skip stages")
		})
	}
}

func TestCheckOrderingUnknownStage(t *testing.T) {
	g := NewStageGraph()

	var ite *InvalidTransitionError
	err := g.CheckOrdering(models.StageInProgress, models.Stage("demolition"))
	assert.True(t, errors.As(err, &ite))

	err = g.CheckOrdering(models.Stage("demolition"), models.StageInProgress)
	assert.True(t, errors.As(err, &ite))
}
