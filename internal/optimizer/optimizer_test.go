package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-orchestrator/internal/variable"
)

func TestDominatesMinimization(t *testing.T) {
	a := Solution{Objectives: []float64{1, 2}}
	b := Solution{Objectives: []float64{2, 3}}
	assert.True(t, Dominates(a, b))
	assert.False(t, Dominates(b, a))

	equal := Solution{Objectives: []float64{1, 2}}
	assert.False(t, Dominates(a, equal))
}

func biObjective(vars []variable.Variable) []float64 {
	x := vars[0].F
	return []float64{x, 10 - x}
}

func TestNSGA2PostCondition(t *testing.T) {
	defs := []variable.Definition{variable.NewFloatDef(0, 10)}
	n := NewNSGA2(12, defs, 2, 0.2, 0.9)

	population, err := n.Run(context.Background(), 5, biObjective)
	require.NoError(t, err)
	assert.Len(t, population, 12)

	var rankZero []Solution
	for _, s := range population {
		if s.Rank == 0 {
			rankZero = append(rankZero, s)
		}
	}
	assert.NotEmpty(t, rankZero)
	for i := range rankZero {
		for j := range rankZero {
			if i == j {
				continue
			}
			assert.False(t, Dominates(rankZero[i], rankZero[j]),
				"rank-0 member %d must not dominate rank-0 member %d", i, j)
		}
	}
}

func TestMultiObjectiveDescentReturnsNonDominatedArchive(t *testing.T) {
	defs := []variable.Definition{variable.NewFloatDef(0, 10)}
	d := NewMultiObjectiveDescent(1.0, defs, 50, 10, 2)

	archive, err := d.Run(context.Background(), 200, biObjective)
	require.NoError(t, err)
	require.NotEmpty(t, archive)
	assert.LessOrEqual(t, len(archive), 10)

	for i := range archive {
		for j := range archive {
			if i == j {
				continue
			}
			assert.False(t, Dominates(archive[i], archive[j]))
		}
	}
}
