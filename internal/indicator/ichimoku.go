package indicator

import (
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/criterion"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/variable"
)

// IchimokuCloud is a trend indicator built from three midpoint averages:
// conversion (tenkan-sen) over Conversion bars, base (kijun-sen) over Base
// bars, and the two cloud spans: senkou span A, the average of conversion
// and base, and senkou span B, the midpoint over Lagging bars. No span is
// displaced and no lagging-span column is produced; all four columns are
// aligned with the rest of the collection.
type IchimokuCloud struct {
	base
	Conversion, Base, Lagging int
}

func ichimokuColumns(conv, baseP, lagging int) (string, string, string, string) {
	prefix := fmt.Sprintf("i_ichimoku_%d_%d_%d", conv, baseP, lagging)
	return prefix + "_conversion", prefix + "_base", prefix + "_span_a", prefix + "_span_b"
}

func NewIchimokuCloud(conversion, basePeriod, lagging int) *IchimokuCloud {
	a, b, c, d := ichimokuColumns(conversion, basePeriod, lagging)
	return &IchimokuCloud{base: newBase([]string{a, b, c, d}), Conversion: conversion, Base: basePeriod, Lagging: lagging}
}

func (i *IchimokuCloud) StructName() string { return "IchimokuCloud" }

func (i *IchimokuCloud) ColumnNames() []string {
	a, b, c, d := ichimokuColumns(i.Conversion, i.Base, i.Lagging)
	return []string{a, b, c, d}
}

func (i *IchimokuCloud) NBeforeNeeded() int {
	n := i.Base
	if i.Lagging > n {
		n = i.Lagging
	}
	return n
}

// midpoint averages the high/low extremes over period klines ending at idx.
// ok is false if that window reaches past data never retrieved.
func midpoint(c *klines.Collection, idx, period int) (mid float64, ok bool) {
	var max, min float64
	for j := 0; j < period; j++ {
		k, avail := c.GetRev(idx + j)
		if !avail {
			return 0, false
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
	return (max + min) / 2, true
}

func (ic *IchimokuCloud) Calculate(c *klines.Collection) {
	length := c.GetLength()
	ic.ensureLength(length)
	names := ic.ColumnNames()
	convCol, baseCol, spanACol, spanBCol := ic.columns[names[0]], ic.columns[names[1]], ic.columns[names[2]], ic.columns[names[3]]
	for _, i := range ic.MissingIndices() {
		idx := length - 1 - i
		conv, convOK := midpoint(c, idx, ic.Conversion)
		base, baseOK := midpoint(c, idx, ic.Base)
		spanB, spanBOK := midpoint(c, idx, ic.Lagging)
		if !convOK || !baseOK || !spanBOK {
			continue
		}
		set(convCol, i, conv)
		set(baseCol, i, base)
		set(spanACol, i, (conv+base)/2)
		set(spanBCol, i, spanB)
	}
}

func (ic *IchimokuCloud) CalculateCriteria(c *klines.Collection) {
	names := ic.ColumnNames()
	spanACol, spanBCol := ic.columns[names[2]], ic.columns[names[3]]
	closes := make([]*float64, ic.length)
	for i, v := range c.GetClosePrices() {
		if i >= len(closes) {
			break
		}
		val := v
		closes[i] = &val
	}
	aboveCloud := criterion.Compare(closes, spanACol)
	cmpSpans := criterion.Compare(spanACol, spanBCol)
	ic.criteria["close_above_span_a"] = aboveCloud
	ic.criteria["bullish_cloud"] = cmpSpans
	ic.criteria["cross_up"] = criterion.Cross(aboveCloud, true)
}

func (ic *IchimokuCloud) CriteriaCount() int { return 3 }

func (ic *IchimokuCloud) ParamVariableDefinitions() []variable.Definition {
	return []variable.Definition{
		variable.NewIntegerDef(2, 60),
		variable.NewIntegerDef(2, 120),
		variable.NewIntegerDef(2, 120),
	}
}

func (ic *IchimokuCloud) AllVariableDefinitions() []variable.Definition {
	defs := ic.ParamVariableDefinitions()
	for i := 0; i < ic.CriteriaCount(); i++ {
		defs = append(defs, variable.NewBooleanDef())
	}
	return defs
}

func (ic *IchimokuCloud) CloneWithNewParameters(vars []variable.Variable) (Indicator, error) {
	const op = "IchimokuCloud.CloneWithNewParameters"
	conv, err := expectInteger(vars, 0, op)
	if err != nil {
		return nil, err
	}
	basePeriod, err := expectInteger(vars, 1, op)
	if err != nil {
		return nil, err
	}
	lagging, err := expectInteger(vars, 2, op)
	if err != nil {
		return nil, err
	}
	if conv < 1 || basePeriod < 1 || lagging < 1 {
		return nil, apperrors.New(op, apperrors.VariableTypeMismatch, fmt.Errorf("indicator: periods must be positive"))
	}
	return NewIchimokuCloud(int(conv), int(basePeriod), int(lagging)), nil
}
