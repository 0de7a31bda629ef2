package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-orchestrator/internal/indicator"
	"backtest-orchestrator/internal/interval"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

func buildCollection(n int) *klines.Collection {
	c := &klines.Collection{Interval: interval.Int1m}
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.1
		k := klines.Kline{High: price + 1, Low: price - 1, Close: price}
		if i < n-4 {
			c.Past = append(c.Past, k)
		} else if i < n-2 {
			c.Training = append(c.Training, k)
		} else {
			c.Validation = append(c.Validation, k)
		}
	}
	return c
}

func TestEvaluateProducesFiniteObjectives(t *testing.T) {
	ma := indicator.NewMovingAverage(3)
	perDefs := [][]variable.Definition{ma.AllVariableDefinitions()}
	vars := []variable.Variable{
		variable.NewInteger(3),
		variable.NewBoolean(true),
		variable.NewBoolean(false),
		variable.NewBoolean(true),
	}

	collections := []*klines.Collection{buildCollection(20)}
	objectives, err := Evaluate(context.Background(), vars, collections,
		[]indicator.Indicator{ma}, perDefs, nil, 3)

	require.NoError(t, err)
	assert.Len(t, objectives, 3)
	assert.GreaterOrEqual(t, objectives[0], 0.0)
}

func TestEvaluateRejectsShortVector(t *testing.T) {
	ma := indicator.NewMovingAverage(3)
	perDefs := [][]variable.Definition{ma.AllVariableDefinitions()}
	vars := []variable.Variable{variable.NewInteger(3)}

	_, err := Evaluate(context.Background(), vars, []*klines.Collection{buildCollection(10)},
		[]indicator.Indicator{ma}, perDefs, nil, 3)
	assert.Error(t, err)
}

func TestEvaluateCancellation(t *testing.T) {
	ma := indicator.NewMovingAverage(3)
	perDefs := [][]variable.Definition{ma.AllVariableDefinitions()}
	vars := []variable.Variable{
		variable.NewInteger(3), variable.NewBoolean(false), variable.NewBoolean(false), variable.NewBoolean(false),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Evaluate(ctx, vars, []*klines.Collection{buildCollection(10)},
		[]indicator.Indicator{ma}, perDefs, nil, 3)
	assert.Error(t, err)
}

func TestVariableCount(t *testing.T) {
	ma := indicator.NewMovingAverage(3)
	assert.Equal(t, 4, VariableCount([][]variable.Definition{ma.AllVariableDefinitions()}))
}
