package indicator

import (
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// ExponentialMovingAverage weights recent closes more heavily than a
// simple moving average, smoothing factor alpha = 2/(period+1).
type ExponentialMovingAverage struct {
	base
	Period int
}

func emaColumn(period int) string { return fmt.Sprintf("i_ema_%d", period) }

func NewExponentialMovingAverage(period int) *ExponentialMovingAverage {
	return &ExponentialMovingAverage{base: newBase([]string{emaColumn(period)}), Period: period}
}

func (e *ExponentialMovingAverage) StructName() string   { return "ExponentialMovingAverage" }
func (e *ExponentialMovingAverage) ColumnNames() []string { return []string{emaColumn(e.Period)} }
func (e *ExponentialMovingAverage) NBeforeNeeded() int    { return e.Period * 2 }

// Calculate seeds the first missing position whose simple-average window is
// fully available (or that already has a computed predecessor) with that
// seed, then walks forward applying the EMA recurrence. Positions before
// that seed are left missing: their window reaches past data that was
// never retrieved, so there is no value to seed the recurrence from.
func (e *ExponentialMovingAverage) Calculate(c *klines.Collection) {
	length := c.GetLength()
	e.ensureLength(length)
	missing := e.MissingIndices()
	if len(missing) == 0 {
		return
	}
	col := e.columns[emaColumn(e.Period)]
	alpha := 2.0 / (float64(e.Period) + 1.0)

	start := -1
	var prev float64
	for _, i := range missing {
		if i > 0 && col[i-1] != nil {
			start, prev = i, *col[i-1]
			break
		}
		idx := length - 1 - i
		sum := 0.0
		available := true
		for j := 0; j < e.Period; j++ {
			k, ok := c.GetRev(idx + j)
			if !ok {
				available = false
				break
			}
			sum += k.Close
		}
		if !available {
			continue
		}
		start, prev = i, sum/float64(e.Period)
		break
	}
	if start < 0 {
		return
	}

	for i := start; i < length; i++ {
		close := c.Get(i).Close
		prev = alpha*close + (1-alpha)*prev
		set(col, i, prev)
	}
}

func (e *ExponentialMovingAverage) CalculateCriteria(c *klines.Collection) {
	col := e.columns[emaColumn(e.Period)]
	closes := make([]*float64, len(col))
	for i, v := range c.GetClosePrices() {
		if i >= len(closes) {
			break
		}
		val := v
		closes[i] = &val
	}
	cmp := criterion.Compare(closes, col)
	e.criteria["close_gt_ema"] = cmp
	e.criteria["cross_up"] = criterion.Cross(cmp, true)
	e.criteria["cross_down"] = criterion.Cross(cmp, false)
}

func (e *ExponentialMovingAverage) CriteriaCount() int { return 3 }

func (e *ExponentialMovingAverage) ParamVariableDefinitions() []variable.Definition {
	return []variable.Definition{variable.NewIntegerDef(2, 200)}
}

func (e *ExponentialMovingAverage) AllVariableDefinitions() []variable.Definition {
	defs := e.ParamVariableDefinitions()
	for i := 0; i < e.CriteriaCount(); i++ {
		defs = append(defs, variable.NewBooleanDef())
	}
	return defs
}

func (e *ExponentialMovingAverage) CloneWithNewParameters(vars []variable.Variable) (Indicator, error) {
	period, err := expectInteger(vars, 0, "ExponentialMovingAverage.CloneWithNewParameters")
	if err != nil {
		return nil, err
	}
	if period < 1 {
		return nil, apperrors.New("ExponentialMovingAverage.CloneWithNewParameters", apperrors.VariableTypeMismatch, fmt.Errorf("indicator: period must be positive"))
	}
	return NewExponentialMovingAverage(int(period)), nil
}
