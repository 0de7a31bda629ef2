package indicator

import (
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// StochasticOscillator is the second reference variant: %K compares close
// to its K-period high/low range, %D smooths %K over D periods.
type StochasticOscillator struct {
	base
	KPeriod int
	DPeriod int
}

func soColumns(k, d int) (string, string) {
	return fmt.Sprintf("i_so_%d_%d_k", k, d), fmt.Sprintf("i_so_%d_%d_d", k, d)
}

// NewStochasticOscillator builds an empty StochasticOscillator(k, d).
func NewStochasticOscillator(kPeriod, dPeriod int) *StochasticOscillator {
	kCol, dCol := soColumns(kPeriod, dPeriod)
	return &StochasticOscillator{base: newBase([]string{kCol, dCol}), KPeriod: kPeriod, DPeriod: dPeriod}
}

func (s *StochasticOscillator) StructName() string { return "StochasticOscillator" }

func (s *StochasticOscillator) ColumnNames() []string {
	kCol, dCol := soColumns(s.KPeriod, s.DPeriod)
	return []string{kCol, dCol}
}

func (s *StochasticOscillator) NBeforeNeeded() int { return s.KPeriod + s.DPeriod }

// Calculate computes %K over a D-sentinel-extended virtual index space so
// %D's lookback reaches before index 0, then drops the sentinels. idx =
// length-1-i; a = D+i addresses the virtual array; %K uses the strict
// high/low scan over KPeriod klines starting at GetRev(idx), so equal
// extremes never replace the first-seen one.
// Calculate computes %K over a D-sentinel-extended virtual index space, as
// above, tracking per-entry availability in rawKOK: a virtual position
// whose K-period high/low scan reaches past data never retrieved is left
// unavailable, and %D at a real column position is only set once every
// rawK entry its D-period sum depends on is itself available.
func (s *StochasticOscillator) Calculate(c *klines.Collection) {
	length := c.GetLength()
	s.ensureLength(length)
	if len(s.MissingIndices()) == 0 {
		return
	}

	D, K := s.DPeriod, s.KPeriod
	rawK := make([]float64, length+D)
	rawKOK := make([]bool, length+D)
	for i := -D; i < length; i++ {
		idx := length - 1 - i
		var max, min, closeAtIdx float64
		available := true
		for j := 0; j < K; j++ {
			kline, ok := c.GetRev(idx + j)
			if !ok {
				available = false
				break
			}
			if j == 0 {
				max, min, closeAtIdx = kline.High, kline.Low, kline.Close
				continue
			}
			if kline.High > max {
				max = kline.High
			}
			if kline.Low < min {
				min = kline.Low
			}
		}
		if !available {
			continue
		}
		rawK[D+i] = (closeAtIdx - min) / (max - min)
		rawKOK[D+i] = true
	}

	kCol, dCol := soColumns(K, D)
	kColumn, dColumn := s.columns[kCol], s.columns[dCol]
	for i := 0; i < length; i++ {
		if !rawKOK[D+i] {
			continue
		}
		set(kColumn, i, rawK[D+i])

		dAvailable := true
		sum := 0.0
		for j := 0; j < D; j++ {
			if !rawKOK[D+i-j] {
				dAvailable = false
				break
			}
			sum += rawK[D+i-j]
		}
		if dAvailable {
			set(dColumn, i, sum/float64(D))
		}
	}
}

// CalculateCriteria derives "%K > %D" as the Compare criterion and its two
// Cross directions.
func (s *StochasticOscillator) CalculateCriteria(c *klines.Collection) {
	kCol, dCol := soColumns(s.KPeriod, s.DPeriod)
	cmp := criterion.Compare(s.columns[kCol], s.columns[dCol])
	s.criteria["k_gt_d"] = cmp
	s.criteria["cross_up"] = criterion.Cross(cmp, true)
	s.criteria["cross_down"] = criterion.Cross(cmp, false)
}

func (s *StochasticOscillator) CriteriaCount() int { return 3 }

func (s *StochasticOscillator) ParamVariableDefinitions() []variable.Definition {
	return []variable.Definition{variable.NewIntegerDef(2, 60), variable.NewIntegerDef(2, 20)}
}

func (s *StochasticOscillator) AllVariableDefinitions() []variable.Definition {
	defs := s.ParamVariableDefinitions()
	for i := 0; i < s.CriteriaCount(); i++ {
		defs = append(defs, variable.NewBooleanDef())
	}
	return defs
}

func (s *StochasticOscillator) CloneWithNewParameters(vars []variable.Variable) (Indicator, error) {
	const op = "StochasticOscillator.CloneWithNewParameters"
	k, err := expectInteger(vars, 0, op)
	if err != nil {
		return nil, err
	}
	d, err := expectInteger(vars, 1, op)
	if err != nil {
		return nil, err
	}
	if k < 1 || d < 1 {
		return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("indicator: periods must be positive"))
	}
	return NewStochasticOscillator(int(k), int(d)), nil
}
