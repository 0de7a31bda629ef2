package indicator

import (
	"encoding/json"
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/variable"
)

// paramKind pairs a JSON field name with the Variable.Kind New expects at
// that position for a given struct name.
type paramKind struct {
	name string
	kind variable.Kind
}

var paramShapes = map[string][]paramKind{
	"MovingAverage":            {{"period", variable.Integer}},
	"ExponentialMovingAverage": {{"period", variable.Integer}},
	"RelativeStrengthIndex":    {{"period", variable.Integer}},
	"MACD": {
		{"short", variable.Integer}, {"long", variable.Integer}, {"signal", variable.Integer},
	},
	"BollingerBands":       {{"period", variable.Integer}, {"deviation", variable.Float}},
	"FibonacciRetracement": {{"period", variable.Integer}},
	"StochasticOscillator": {{"k_period", variable.Integer}, {"d_period", variable.Integer}},
	"OnBalanceVolume":      {{"period", variable.Integer}},
	"IchimokuCloud": {
		{"conversion", variable.Integer}, {"base", variable.Integer}, {"lagging", variable.Integer},
	},
}

// DecodeParams parses the JSON object stored in indicator_in_combination's
// parameters column into the ordered []Variable New expects for
// structName.
func DecodeParams(structName string, raw []byte) ([]variable.Variable, error) {
	const op = "indicator.DecodeParams"
	shape, ok := paramShapes[structName]
	if !ok {
		return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("indicator: unknown struct name %q", structName))
	}

	var fields map[string]float64
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("indicator: malformed parameters for %s: %w", structName, err))
	}

	params := make([]variable.Variable, len(shape))
	for i, field := range shape {
		v, ok := fields[field.name]
		if !ok {
			return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("indicator: %s missing parameter %q", structName, field.name))
		}
		switch field.kind {
		case variable.Integer:
			params[i] = variable.NewInteger(int64(v))
		default:
			params[i] = variable.NewFloat(v)
		}
	}
	return params, nil
}

// NewFromJSON builds an Indicator from structName and its JSON-encoded
// parameters in one step.
func NewFromJSON(structName string, raw []byte) (Indicator, error) {
	params, err := DecodeParams(structName, raw)
	if err != nil {
		return nil, err
	}
	return New(structName, params)
}
