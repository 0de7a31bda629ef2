// Package indicator implements the closed Indicator sum type: value
// sequences derived from a kline collection, and the boolean criteria
// derived from those values.
package indicator

import (
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// Indicator is the shared capability set every variant implements. New
// variants are a compile-time addition to this package, not an open
// extension point.
type Indicator interface {
	StructName() string
	ColumnNames() []string
	NBeforeNeeded() int
	Reserve(n int)
	StoreRow(revIndex int, row map[string]float64)
	StoreRows(rows map[int]map[string]float64)
	MissingIndices() []int
	Calculate(c *klines.Collection)
	Values() map[string][]*float64
	CriteriaCount() int
	CalculateCriteria(c *klines.Collection)
	Criteria() map[string]criterion.Series
	ParamVariableDefinitions() []variable.Definition
	AllVariableDefinitions() []variable.Definition
	CloneWithNewParameters(vars []variable.Variable) (Indicator, error)
}

// base implements the bookkeeping shared by every variant: column storage,
// length tracking, reservation and the missing-index scan. Concrete
// variants embed base and supply Calculate/CalculateCriteria plus their
// parameter-derived identity.
type base struct {
	length   int
	columns  map[string][]*float64
	criteria map[string]criterion.Series
}

func newBase(columnNames []string) base {
	cols := make(map[string][]*float64, len(columnNames))
	for _, name := range columnNames {
		cols[name] = nil
	}
	return base{columns: cols, criteria: map[string]criterion.Series{}}
}

func (b *base) ensureLength(n int) {
	if n <= b.length {
		return
	}
	for name, col := range b.columns {
		grown := make([]*float64, n)
		copy(grown, col)
		b.columns[name] = grown
	}
	b.length = n
}

// Reserve grows every value column to at least n entries, leaving new
// entries unset.
func (b *base) Reserve(n int) { b.ensureLength(n) }

// StoreRow materializes a persisted row at the given reverse index (row i
// corresponds to collection.GetRev(i)) into the matching named columns.
func (b *base) StoreRow(revIndex int, row map[string]float64) {
	idx := b.length - 1 - revIndex
	if idx < 0 || idx >= b.length {
		return
	}
	for name, v := range row {
		col, ok := b.columns[name]
		if !ok {
			continue
		}
		val := v
		col[idx] = &val
	}
}

// StoreRows applies StoreRow for every entry in rows, keyed by reverse
// index.
func (b *base) StoreRows(rows map[int]map[string]float64) {
	for revIndex, row := range rows {
		b.StoreRow(revIndex, row)
	}
}

// MissingIndices returns positions in [0, length) where any declared
// column is still unset.
func (b *base) MissingIndices() []int {
	var out []int
	for i := 0; i < b.length; i++ {
		missing := false
		for _, col := range b.columns {
			if i >= len(col) || col[i] == nil {
				missing = true
				break
			}
		}
		if missing {
			out = append(out, i)
		}
	}
	return out
}

// Values returns the raw per-column sequences, nil entries meaning "not
// yet computed".
func (b *base) Values() map[string][]*float64 { return b.columns }

// Criteria returns the derived boolean series computed by the most recent
// CalculateCriteria call.
func (b *base) Criteria() map[string]criterion.Series { return b.criteria }

func (b *base) saturated() bool {
	for i := 0; i < b.length; i++ {
		for _, col := range b.columns {
			if i >= len(col) || col[i] == nil {
				return false
			}
		}
	}
	return true
}

func set(col []*float64, i int, v float64) {
	if i < 0 || i >= len(col) {
		return
	}
	val := v
	col[i] = &val
}

func typeMismatch(op string) error {
	return apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("indicator: unexpected variable shape"))
}

func expectFloat(vars []variable.Variable, i int, op string) (float64, error) {
	if i >= len(vars) || vars[i].Kind != variable.Float {
		return 0, typeMismatch(op)
	}
	return vars[i].F, nil
}

func expectInteger(vars []variable.Variable, i int, op string) (int64, error) {
	if i >= len(vars) || vars[i].Kind != variable.Integer {
		return 0, typeMismatch(op)
	}
	return vars[i].I, nil
}

// Describe is a catalog entry used by the /indicators listing endpoint:
// a struct name, its parameter shape and a short
// human-readable summary, independent of any live instance.
type Describe struct {
	StructName  string
	ParamNames  []string
	Description string
}

// Catalog lists every registered indicator variant.
func Catalog() []Describe {
	return []Describe{
		{"MovingAverage", []string{"period"}, "Simple moving average of close price over period bars."},
		{"ExponentialMovingAverage", []string{"period"}, "Exponentially weighted moving average of close price."},
		{"RelativeStrengthIndex", []string{"period"}, "Momentum oscillator bounded in [0,100]."},
		{"MACD", []string{"short", "long", "signal"}, "Moving average convergence/divergence with signal line."},
		{"BollingerBands", []string{"period", "deviation"}, "Moving average with upper/lower bands at deviation standard deviations."},
		{"FibonacciRetracement", []string{"period"}, "Retracement levels over the period's high/low range."},
		{"StochasticOscillator", []string{"k_period", "d_period"}, "Momentum oscillator comparing close to its high/low range."},
		{"OnBalanceVolume", []string{"period"}, "Cumulative volume flow smoothed over period bars."},
		{"IchimokuCloud", []string{"conversion", "base", "lagging"}, "Trend indicator with conversion, base and lagging spans."},
	}
}

// New builds a fresh, empty indicator of the named variant using the given
// parameter variables (decoded left-to-right, the same order
// ParamVariableDefinitions declares).
func New(structName string, params []variable.Variable) (Indicator, error) {
	const op = "indicator.New"
	switch structName {
	case "MovingAverage":
		period, err := expectInteger(params, 0, op)
		if err != nil {
			return nil, err
		}
		return NewMovingAverage(int(period)), nil
	case "ExponentialMovingAverage":
		period, err := expectInteger(params, 0, op)
		if err != nil {
			return nil, err
		}
		return NewExponentialMovingAverage(int(period)), nil
	case "RelativeStrengthIndex":
		period, err := expectInteger(params, 0, op)
		if err != nil {
			return nil, err
		}
		return NewRelativeStrengthIndex(int(period)), nil
	case "MACD":
		short, err := expectInteger(params, 0, op)
		if err != nil {
			return nil, err
		}
		long, err := expectInteger(params, 1, op)
		if err != nil {
			return nil, err
		}
		signal, err := expectInteger(params, 2, op)
		if err != nil {
			return nil, err
		}
		return NewMACD(int(short), int(long), int(signal)), nil
	case "BollingerBands":
		period, err := expectInteger(params, 0, op)
		if err != nil {
			return nil, err
		}
		deviation, err := expectFloat(params, 1, op)
		if err != nil {
			return nil, err
		}
		return NewBollingerBands(int(period), deviation), nil
	case "FibonacciRetracement":
		period, err := expectInteger(params, 0, op)
		if err != nil {
			return nil, err
		}
		return NewFibonacciRetracement(int(period)), nil
	case "StochasticOscillator":
		k, err := expectInteger(params, 0, op)
		if err != nil {
			return nil, err
		}
		d, err := expectInteger(params, 1, op)
		if err != nil {
			return nil, err
		}
		return NewStochasticOscillator(int(k), int(d)), nil
	case "OnBalanceVolume":
		period, err := expectInteger(params, 0, op)
		if err != nil {
			return nil, err
		}
		return NewOnBalanceVolume(int(period)), nil
	case "IchimokuCloud":
		conv, err := expectInteger(params, 0, op)
		if err != nil {
			return nil, err
		}
		baseP, err := expectInteger(params, 1, op)
		if err != nil {
			return nil, err
		}
		lagging, err := expectInteger(params, 2, op)
		if err != nil {
			return nil, err
		}
		return NewIchimokuCloud(int(conv), int(baseP), int(lagging)), nil
	default:
		return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("indicator: unknown struct name %q", structName))
	}
}
