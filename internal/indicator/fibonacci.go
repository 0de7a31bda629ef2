package indicator

import (
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// FibonacciRetracement computes retracement levels over the high/low range
// of the trailing Period bars: 0, 0.236, 0.382, 0.5, 0.618, 0.786 and 1.
type FibonacciRetracement struct {
	base
	Period int
}

var fibLevels = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

func fibColumn(period int, level float64) string {
	return fmt.Sprintf("i_fib_%d_%03d", period, int(level*1000))
}

func fibColumnNames(period int) []string {
	names := make([]string, len(fibLevels))
	for i, lvl := range fibLevels {
		names[i] = fibColumn(period, lvl)
	}
	return names
}

func NewFibonacciRetracement(period int) *FibonacciRetracement {
	return &FibonacciRetracement{base: newBase(fibColumnNames(period)), Period: period}
}

func (f *FibonacciRetracement) StructName() string    { return "FibonacciRetracement" }
func (f *FibonacciRetracement) ColumnNames() []string { return fibColumnNames(f.Period) }
func (f *FibonacciRetracement) NBeforeNeeded() int    { return f.Period }

func (f *FibonacciRetracement) Calculate(c *klines.Collection) {
	length := c.GetLength()
	f.ensureLength(length)
	names := f.ColumnNames()
	for _, i := range f.MissingIndices() {
		idx := length - 1 - i
		var max, min float64
		available := true
		for j := 0; j < f.Period; j++ {
			k, ok := c.GetRev(idx + j)
			if !ok {
				available = false
				break
			}
			if j == 0 {
				max, min = k.High, k.Low
				continue
			}
			if k.High > max {
				max = k.High
			}
			if k.Low < min {
				min = k.Low
			}
		}
		if !available {
			continue
		}
		span := max - min
		for li, lvl := range fibLevels {
			set(f.columns[names[li]], i, max-lvl*span)
		}
	}
}

func (f *FibonacciRetracement) CalculateCriteria(c *klines.Collection) {
	names := f.ColumnNames()
	closes := make([]*float64, f.length)
	for i, v := range c.GetClosePrices() {
		if i >= len(closes) {
			break
		}
		val := v
		closes[i] = &val
	}
	midCol := f.columns[names[3]]
	cmp := criterion.Compare(closes, midCol)
	f.criteria["close_gt_50pct"] = cmp
	f.criteria["cross_up"] = criterion.Cross(cmp, true)
	f.criteria["cross_down"] = criterion.Cross(cmp, false)
}

func (f *FibonacciRetracement) CriteriaCount() int { return 3 }

func (f *FibonacciRetracement) ParamVariableDefinitions() []variable.Definition {
	return []variable.Definition{variable.NewIntegerDef(2, 200)}
}

func (f *FibonacciRetracement) AllVariableDefinitions() []variable.Definition {
	defs := f.ParamVariableDefinitions()
	for i := 0; i < f.CriteriaCount(); i++ {
		defs = append(defs, variable.NewBooleanDef())
	}
	return defs
}

func (f *FibonacciRetracement) CloneWithNewParameters(vars []variable.Variable) (Indicator, error) {
	period, err := expectInteger(vars, 0, "FibonacciRetracement.CloneWithNewParameters")
	if err != nil {
		return nil, err
	}
	if period < 1 {
		return nil, apperrors.New("FibonacciRetracement.CloneWithNewParameters", apperrors.VariableTypeMismatch, fmt.Errorf("indicator: period must be positive"))
	}
	return NewFibonacciRetracement(int(period)), nil
}
