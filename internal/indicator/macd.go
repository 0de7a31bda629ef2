package indicator

import (
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// MACD is the difference of a short and long exponential moving average,
// smoothed again by a signal-period EMA.
type MACD struct {
	base
	Short, Long, Signal int
}

func macdColumns(short, long, signal int) (string, string, string) {
	prefix := fmt.Sprintf("i_macd_%d_%d_%d", short, long, signal)
	return prefix + "_macd", prefix + "_signal", prefix + "_hist"
}

func NewMACD(short, long, signal int) *MACD {
	m, s, h := macdColumns(short, long, signal)
	return &MACD{base: newBase([]string{m, s, h}), Short: short, Long: long, Signal: signal}
}

func (m *MACD) StructName() string { return "MACD" }

func (m *MACD) ColumnNames() []string {
	a, b, c := macdColumns(m.Short, m.Long, m.Signal)
	return []string{a, b, c}
}

func (m *MACD) NBeforeNeeded() int { return (m.Long + m.Signal) * 2 }

func ema(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = alpha*closes[i] + (1-alpha)*out[i-1]
	}
	return out
}

// Calculate recomputes the full MACD/signal/histogram sequences over the
// collection's forward window whenever any position is missing; EMA
// recurrences are not incrementally resumable across partial fills.
func (m *MACD) Calculate(c *klines.Collection) {
	length := c.GetLength()
	m.ensureLength(length)
	if len(m.MissingIndices()) == 0 {
		return
	}
	closes := c.GetClosePrices()
	shortEMA := ema(closes, m.Short)
	longEMA := ema(closes, m.Long)
	macdLine := make([]float64, length)
	for i := range macdLine {
		macdLine[i] = shortEMA[i] - longEMA[i]
	}
	signalLine := ema(macdLine, m.Signal)

	macdCol, signalCol, histCol := m.columns[m.ColumnNames()[0]], m.columns[m.ColumnNames()[1]], m.columns[m.ColumnNames()[2]]
	for i := 0; i < length; i++ {
		set(macdCol, i, macdLine[i])
		set(signalCol, i, signalLine[i])
		set(histCol, i, macdLine[i]-signalLine[i])
	}
}

func (m *MACD) CalculateCriteria(c *klines.Collection) {
	names := m.ColumnNames()
	macdCol, signalCol := m.columns[names[0]], m.columns[names[1]]
	cmp := criterion.Compare(macdCol, signalCol)
	m.criteria["macd_gt_signal"] = cmp
	m.criteria["cross_up"] = criterion.Cross(cmp, true)
	m.criteria["cross_down"] = criterion.Cross(cmp, false)
}

func (m *MACD) CriteriaCount() int { return 3 }

func (m *MACD) ParamVariableDefinitions() []variable.Definition {
	return []variable.Definition{
		variable.NewIntegerDef(2, 50),
		variable.NewIntegerDef(3, 100),
		variable.NewIntegerDef(2, 50),
	}
}

func (m *MACD) AllVariableDefinitions() []variable.Definition {
	defs := m.ParamVariableDefinitions()
	for i := 0; i < m.CriteriaCount(); i++ {
		defs = append(defs, variable.NewBooleanDef())
	}
	return defs
}

func (m *MACD) CloneWithNewParameters(vars []variable.Variable) (Indicator, error) {
	const op = "MACD.CloneWithNewParameters"
	short, err := expectInteger(vars, 0, op)
	if err != nil {
		return nil, err
	}
	long, err := expectInteger(vars, 1, op)
	if err != nil {
		return nil, err
	}
	signal, err := expectInteger(vars, 2, op)
	if err != nil {
		return nil, err
	}
	if short < 1 || long < 1 || signal < 1 {
		return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("indicator: periods must be positive"))
	}
	return NewMACD(int(short), int(long), int(signal)), nil
}
