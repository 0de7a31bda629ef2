package indicator

import (
	"fmt"
	"math"
	"strings"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// BollingerBands is a moving average with upper/lower bands Deviation
// standard deviations away from it, over Period bars.
type BollingerBands struct {
	base
	Period    int
	Deviation float64
}

func bbColumns(period int, deviation float64) (string, string, string) {
	tag := strings.ReplaceAll(fmt.Sprintf("%g", deviation), ".", "p")
	prefix := fmt.Sprintf("i_bb_%d_%s", period, tag)
	return prefix + "_mid", prefix + "_upper", prefix + "_lower"
}

func NewBollingerBands(period int, deviation float64) *BollingerBands {
	mid, upper, lower := bbColumns(period, deviation)
	return &BollingerBands{base: newBase([]string{mid, upper, lower}), Period: period, Deviation: deviation}
}

func (b *BollingerBands) StructName() string { return "BollingerBands" }

func (b *BollingerBands) ColumnNames() []string {
	mid, upper, lower := bbColumns(b.Period, b.Deviation)
	return []string{mid, upper, lower}
}

func (b *BollingerBands) NBeforeNeeded() int { return b.Period }

func (b *BollingerBands) Calculate(c *klines.Collection) {
	length := c.GetLength()
	b.ensureLength(length)
	names := b.ColumnNames()
	midCol, upperCol, lowerCol := b.columns[names[0]], b.columns[names[1]], b.columns[names[2]]
	for _, i := range b.MissingIndices() {
		idx := length - 1 - i
		closes := make([]float64, b.Period)
		available := true
		for j := 0; j < b.Period; j++ {
			k, ok := c.GetRev(idx + j)
			if !ok {
				available = false
				break
			}
			closes[j] = k.Close
		}
		if !available {
			continue
		}
		sum := 0.0
		for _, v := range closes {
			sum += v
		}
		mean := sum / float64(b.Period)
		variance := 0.0
		for _, v := range closes {
			diff := v - mean
			variance += diff * diff
		}
		stddev := math.Sqrt(variance / float64(b.Period))
		set(midCol, i, mean)
		set(upperCol, i, mean+b.Deviation*stddev)
		set(lowerCol, i, mean-b.Deviation*stddev)
	}
}

func (b *BollingerBands) CalculateCriteria(c *klines.Collection) {
	names := b.ColumnNames()
	upperCol, lowerCol := b.columns[names[1]], b.columns[names[2]]
	closes := make([]*float64, b.length)
	for i, v := range c.GetClosePrices() {
		if i >= len(closes) {
			break
		}
		val := v
		closes[i] = &val
	}
	aboveUpper := criterion.Compare(closes, upperCol)
	belowLower := criterion.Compare(lowerCol, closes)
	b.criteria["close_gt_upper"] = aboveUpper
	b.criteria["close_lt_lower"] = belowLower
	b.criteria["cross_above_upper"] = criterion.Cross(aboveUpper, true)
}

func (b *BollingerBands) CriteriaCount() int { return 3 }

func (b *BollingerBands) ParamVariableDefinitions() []variable.Definition {
	return []variable.Definition{variable.NewIntegerDef(2, 100), variable.NewFloatDef(0.5, 4.0)}
}

func (b *BollingerBands) AllVariableDefinitions() []variable.Definition {
	defs := b.ParamVariableDefinitions()
	for i := 0; i < b.CriteriaCount(); i++ {
		defs = append(defs, variable.NewBooleanDef())
	}
	return defs
}

func (b *BollingerBands) CloneWithNewParameters(vars []variable.Variable) (Indicator, error) {
	const op = "BollingerBands.CloneWithNewParameters"
	period, err := expectInteger(vars, 0, op)
	if err != nil {
		return nil, err
	}
	deviation, err := expectFloat(vars, 1, op)
	if err != nil {
		return nil, err
	}
	if period < 1 {
		return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("indicator: period must be positive"))
	}
	return NewBollingerBands(int(period), deviation), nil
}
