package indicator

import (
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// OnBalanceVolume is a cumulative volume-flow indicator: volume is added
// when close rises and subtracted when it falls, then smoothed by a simple
// moving average over Period bars.
type OnBalanceVolume struct {
	base
	Period int
}

func obvColumn(period int) string { return fmt.Sprintf("i_obv_%d", period) }

func NewOnBalanceVolume(period int) *OnBalanceVolume {
	return &OnBalanceVolume{base: newBase([]string{obvColumn(period)}), Period: period}
}

func (o *OnBalanceVolume) StructName() string    { return "OnBalanceVolume" }
func (o *OnBalanceVolume) ColumnNames() []string { return []string{obvColumn(o.Period)} }
func (o *OnBalanceVolume) NBeforeNeeded() int    { return o.Period + 1 }

// Calculate recomputes the raw running OBV across the whole forward window
// and then smooths it with a trailing Period average, whenever any
// position is missing.
func (o *OnBalanceVolume) Calculate(c *klines.Collection) {
	length := c.GetLength()
	o.ensureLength(length)
	if len(o.MissingIndices()) == 0 {
		return
	}

	raw := make([]float64, length)
	running := 0.0
	var prevClose float64
	for i := 0; i < length; i++ {
		k := c.Get(i)
		if i == 0 {
			prevClose = k.Close
			raw[0] = 0
			continue
		}
		switch {
		case k.Close > prevClose:
			running += k.Volume
		case k.Close < prevClose:
			running -= k.Volume
		}
		raw[i] = running
		prevClose = k.Close
	}

	col := o.columns[obvColumn(o.Period)]
	for i := 0; i < length; i++ {
		start := i - o.Period + 1
		if start < 0 {
			start = 0
		}
		sum := 0.0
		count := 0
		for j := start; j <= i; j++ {
			sum += raw[j]
			count++
		}
		set(col, i, sum/float64(count))
	}
}

func (o *OnBalanceVolume) CalculateCriteria(c *klines.Collection) {
	col := o.columns[obvColumn(o.Period)]
	rising := make(criterion.Series, len(col))
	for i := 1; i < len(col); i++ {
		if col[i-1] == nil || col[i] == nil {
			continue
		}
		v := *col[i] > *col[i-1]
		rising[i] = &v
	}
	o.criteria["rising"] = rising
}

func (o *OnBalanceVolume) CriteriaCount() int { return 1 }

func (o *OnBalanceVolume) ParamVariableDefinitions() []variable.Definition {
	return []variable.Definition{variable.NewIntegerDef(2, 100)}
}

func (o *OnBalanceVolume) AllVariableDefinitions() []variable.Definition {
	defs := o.ParamVariableDefinitions()
	for i := 0; i < o.CriteriaCount(); i++ {
		defs = append(defs, variable.NewBooleanDef())
	}
	return defs
}

func (o *OnBalanceVolume) CloneWithNewParameters(vars []variable.Variable) (Indicator, error) {
	period, err := expectInteger(vars, 0, "OnBalanceVolume.CloneWithNewParameters")
	if err != nil {
		return nil, err
	}
	if period < 1 {
		return nil, apperrors.New("OnBalanceVolume.CloneWithNewParameters", apperrors.VariableTypeMismatch, fmt.Errorf("indicator: period must be positive"))
	}
	return NewOnBalanceVolume(int(period)), nil
}
