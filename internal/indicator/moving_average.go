package indicator

import (
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// MovingAverage is the simple moving average of close price over Period
// bars, the reference variant for bit-exact value derivation.
type MovingAverage struct {
	base
	Period int
}

func maColumn(period int) string { return fmt.Sprintf("i_ma_%d", period) }

// NewMovingAverage builds an empty MovingAverage(period).
func NewMovingAverage(period int) *MovingAverage {
	return &MovingAverage{base: newBase([]string{maColumn(period)}), Period: period}
}

func (m *MovingAverage) StructName() string   { return "MovingAverage" }
func (m *MovingAverage) ColumnNames() []string { return []string{maColumn(m.Period)} }
func (m *MovingAverage) NBeforeNeeded() int   { return m.Period }

// Calculate fills each missing position i whose full Period-kline lookback
// is available with the average close of the klines ending at that
// position: idx = length-1-i, value[i] = (1/period) * sum_{j=0..period-1}
// GetRev(idx+j).Close. A position whose window reaches past data that was
// never retrieved is left missing rather than computed from a truncated
// window.
func (m *MovingAverage) Calculate(c *klines.Collection) {
	length := c.GetLength()
	m.ensureLength(length)
	col := m.columns[maColumn(m.Period)]
	for _, i := range m.MissingIndices() {
		idx := length - 1 - i
		sum := 0.0
		available := true
		for j := 0; j < m.Period; j++ {
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
		set(col, i, sum/float64(m.Period))
	}
}

// CalculateCriteria derives the sole Compare criterion "close > MA" and two
// Cross criteria from it (upward and downward).
func (m *MovingAverage) CalculateCriteria(c *klines.Collection) {
	col := m.columns[maColumn(m.Period)]
	closes := make([]*float64, len(col))
	for i, v := range c.GetClosePrices() {
		if i >= len(closes) {
			break
		}
		val := v
		closes[i] = &val
	}
	cmp := criterion.Compare(closes, col)
	m.criteria["close_gt_ma"] = cmp
	m.criteria["cross_up"] = criterion.Cross(cmp, true)
	m.criteria["cross_down"] = criterion.Cross(cmp, false)
}

func (m *MovingAverage) CriteriaCount() int { return 3 }

func (m *MovingAverage) ParamVariableDefinitions() []variable.Definition {
	return []variable.Definition{variable.NewIntegerDef(2, 200)}
}

func (m *MovingAverage) AllVariableDefinitions() []variable.Definition {
	defs := m.ParamVariableDefinitions()
	for i := 0; i < m.CriteriaCount(); i++ {
		defs = append(defs, variable.NewBooleanDef())
	}
	return defs
}

func (m *MovingAverage) CloneWithNewParameters(vars []variable.Variable) (Indicator, error) {
	period, err := expectInteger(vars, 0, "MovingAverage.CloneWithNewParameters")
	if err != nil {
		return nil, err
	}
	if period < 1 {
		return nil, apperrors.New("MovingAverage.CloneWithNewParameters", apperrors.VariableTypeMismatch,
			fmt.Errorf("indicator: period must be positive"))
	}
	return NewMovingAverage(int(period)), nil
}
