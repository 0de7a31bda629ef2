// Package evaluator is the pure-function bridge between a candidate
// variable vector and its objective vector: it rebuilds indicators from
// the vector's parameter slice, computes their values and criteria against
// each kline collection, and folds the result into a fixed-width score.
//
// Evaluate touches neither the store nor the network — by the time it is called, collections must already
// be retrieved and extended by the caller so the function itself stays a
// pure transform of its arguments, safe to call concurrently across a
// population.
package evaluator

import (
	"context"
	"fmt"
	"sort"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/indicator"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// CriteriaResult is the per-(collection, indicator) outcome of one
// evaluation pass: the computed boolean criteria plus the enable/disable
// switches decoded from the trailing Boolean variables.
type CriteriaResult struct {
	CollectionIndex int
	IndicatorIndex  int
	Criteria        map[string]criterion.Series
	Switches        []bool
}

// ObjectiveFunc folds every CriteriaResult from one evaluation into a
// fixed-width objective vector. The combination rule is intentionally
// pluggable; DefaultObjectiveFunc implements the one attested rule.
type ObjectiveFunc func(results []CriteriaResult, numObjectives int) []float64

// DefaultObjectiveFunc reproduces the one attested skeleton:
// [sum_of_first_criterion_true, 0, 0, ...]. "first criterion" is the
// lexicographically smallest criterion name for each result, since map
// iteration order is not itself meaningful.
func DefaultObjectiveFunc(results []CriteriaResult, numObjectives int) []float64 {
	objectives := make([]float64, numObjectives)
	if numObjectives == 0 {
		return objectives
	}
	sum := 0.0
	for _, r := range results {
		if len(r.Criteria) == 0 {
			continue
		}
		names := make([]string, 0, len(r.Criteria))
		for name := range r.Criteria {
			names = append(names, name)
		}
		sort.Strings(names)
		series := r.Criteria[names[0]]
		for i := range series {
			if series.True(i) {
				sum++
			}
		}
	}
	objectives[0] = sum
	return objectives
}

// Evaluate partitions vars by each indicator's declared variable-definition
// width, clones each indicator with its decoded parameters, computes its
// values and criteria against every collection, and folds the results
// through objectiveFunc. It polls ctx at collection granularity so a
// cancelled task aborts promptly.
func Evaluate(
	ctx context.Context,
	vars []variable.Variable,
	collections []*klines.Collection,
	indicators []indicator.Indicator,
	perIndicatorDefs [][]variable.Definition,
	objectiveFunc ObjectiveFunc,
	numObjectives int,
) ([]float64, error) {
	const op = "evaluator.Evaluate"
	if len(indicators) != len(perIndicatorDefs) {
		return nil, apperrors.New(op, apperrors.VariableTypeMismatch,
			fmt.Errorf("evaluator: %d indicators but %d definition groups", len(indicators), len(perIndicatorDefs)))
	}

	paramSlices := make([][]variable.Variable, len(indicators))
	switches := make([][]bool, len(indicators))
	offset := 0
	for i, ind := range indicators {
		defs := perIndicatorDefs[i]
		if offset+len(defs) > len(vars) {
			return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("evaluator: variable vector too short"))
		}
		slice := vars[offset : offset+len(defs)]
		offset += len(defs)

		paramCount := len(ind.ParamVariableDefinitions())
		if paramCount > len(slice) {
			return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("evaluator: indicator %s declares more parameters than variables", ind.StructName()))
		}
		paramSlices[i] = slice[:paramCount]

		sw := make([]bool, 0, len(slice)-paramCount)
		for _, v := range slice[paramCount:] {
			sw = append(sw, v.B)
		}
		switches[i] = sw
	}

	if objectiveFunc == nil {
		objectiveFunc = DefaultObjectiveFunc
	}

	var results []CriteriaResult
	for ci, collection := range collections {
		select {
		case <-ctx.Done():
			return nil, apperrors.New(op, apperrors.Cancelled, ctx.Err())
		default:
		}

		for ii, ind := range indicators {
			fresh, err := ind.CloneWithNewParameters(paramSlices[ii])
			if err != nil {
				return nil, err
			}
			fresh.Reserve(collection.GetLength())
			fresh.Calculate(collection)
			fresh.CalculateCriteria(collection)
			results = append(results, CriteriaResult{
				CollectionIndex: ci,
				IndicatorIndex:  ii,
				Criteria:        fresh.Criteria(),
				Switches:        switches[ii],
			})
		}
	}

	objectives := objectiveFunc(results, numObjectives)
	for _, v := range objectives {
		if v != v { // NaN guard: the evaluator must return finite reals
			return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("evaluator: non-finite objective"))
		}
	}
	return objectives, nil
}

// VariableCount returns the total variable-vector width implied by
// perIndicatorDefs, the expected |variables| an optimizer run over these
// indicators must sample.
func VariableCount(perIndicatorDefs [][]variable.Definition) int {
	n := 0
	for _, defs := range perIndicatorDefs {
		n += len(defs)
	}
	return n
}
