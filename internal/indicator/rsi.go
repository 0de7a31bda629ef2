package indicator

import (
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// RelativeStrengthIndex is the Wilder momentum oscillator bounded in
// [0,100]: 100 - 100/(1+RS), RS = average gain / average loss over Period
// bars.
type RelativeStrengthIndex struct {
	base
	Period int
}

func rsiColumn(period int) string { return fmt.Sprintf("i_rsi_%d", period) }

func NewRelativeStrengthIndex(period int) *RelativeStrengthIndex {
	return &RelativeStrengthIndex{base: newBase([]string{rsiColumn(period)}), Period: period}
}

func (r *RelativeStrengthIndex) StructName() string   { return "RelativeStrengthIndex" }
func (r *RelativeStrengthIndex) ColumnNames() []string { return []string{rsiColumn(r.Period)} }
func (r *RelativeStrengthIndex) NBeforeNeeded() int    { return r.Period + 1 }

func (r *RelativeStrengthIndex) Calculate(c *klines.Collection) {
	length := c.GetLength()
	r.ensureLength(length)
	col := r.columns[rsiColumn(r.Period)]
	for _, i := range r.MissingIndices() {
		idx := length - 1 - i
		var gains, losses float64
		available := true
		for j := 0; j < r.Period; j++ {
			cur, curOK := c.GetRev(idx + j)
			prev, prevOK := c.GetRev(idx + j + 1)
			if !curOK || !prevOK {
				available = false
				break
			}
			diff := cur.Close - prev.Close
			if diff >= 0 {
				gains += diff
			} else {
				losses -= diff
			}
		}
		if !available {
			continue
		}
		avgGain := gains / float64(r.Period)
		avgLoss := losses / float64(r.Period)
		var rsi float64
		if avgLoss == 0 {
			rsi = 100
		} else {
			rs := avgGain / avgLoss
			rsi = 100 - 100/(1+rs)
		}
		set(col, i, rsi)
	}
}

func (r *RelativeStrengthIndex) CalculateCriteria(c *klines.Collection) {
	col := r.columns[rsiColumn(r.Period)]
	overbought := criterion.CompareConst(col, 70)
	oversold := criterion.CompareConst(col, 30)
	r.criteria["overbought"] = overbought
	r.criteria["cross_above_overbought"] = criterion.Cross(overbought, true)
	r.criteria["cross_below_oversold"] = criterion.Cross(oversold, false)
}

func (r *RelativeStrengthIndex) CriteriaCount() int { return 3 }

func (r *RelativeStrengthIndex) ParamVariableDefinitions() []variable.Definition {
	return []variable.Definition{variable.NewIntegerDef(2, 100)}
}

func (r *RelativeStrengthIndex) AllVariableDefinitions() []variable.Definition {
	defs := r.ParamVariableDefinitions()
	for i := 0; i < r.CriteriaCount(); i++ {
		defs = append(defs, variable.NewBooleanDef())
	}
	return defs
}

func (r *RelativeStrengthIndex) CloneWithNewParameters(vars []variable.Variable) (Indicator, error) {
	period, err := expectInteger(vars, 0, "RelativeStrengthIndex.CloneWithNewParameters")
	if err != nil {
		return nil, err
	}
	if period < 1 {
		return nil, apperrors.New("RelativeStrengthIndex.CloneWithNewParameters", apperrors.VariableTypeMismatch, fmt.Errorf("indicator: period must be positive"))
	}
	return NewRelativeStrengthIndex(int(period)), nil
}
