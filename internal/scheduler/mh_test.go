package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/variable"
)

func TestBuildRunnerAcceptsAttestedNSGAIIName(t *testing.T) {
	defs := []variable.Definition{variable.NewIntegerDef(1, 100), variable.NewFloatDef(0, 1)}
	params := []byte(`{"population_size":8,"generations":3,"mutation_rate":0.1,"crossover_rate":0.9,"num_objectives":2}`)

	runner, budget, numObjectives, err := BuildRunner("NSGA-II", params, defs)

	require.NoError(t, err)
	assert.NotNil(t, runner)
	assert.Equal(t, 3, budget)
	assert.Equal(t, 2, numObjectives)
}

func TestBuildRunnerRejectsUnknownAlgorithmName(t *testing.T) {
	_, _, _, err := BuildRunner("not-a-real-algorithm", []byte(`{}`), nil)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.VariableTypeMismatch))
}
