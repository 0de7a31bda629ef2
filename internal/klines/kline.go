// Package klines implements the in-memory KlineCollection window: the
// past/training/validation partitioning, forward and reverse indexing, and
// the integrity check every evaluator run depends on.
package klines

import (
	"time"

	"backtest-orchestrator/internal/interval"
)

// Kline is one OHLCV candlestick.
type Kline struct {
	OpenTime                time.Time
	Open                    float64
	High                    float64
	Low                     float64
	Close                   float64
	Volume                  float64
	CloseTime               time.Time
	QuoteAssetVolume        float64
	NumberOfTrades          int64
	TakerBuyBaseAssetVolume  float64
	TakerBuyQuoteAssetVolume float64
}

// OpenTimeMillis returns the open time as Binance-style epoch milliseconds.
func (k Kline) OpenTimeMillis() int64 { return k.OpenTime.UnixMilli() }

// CloseTimeMillis returns the close time as Binance-style epoch milliseconds.
func (k Kline) CloseTimeMillis() int64 { return k.CloseTime.UnixMilli() }

// Collection is a logical window owned by one evaluation: past (warmup),
// training, and validation slices, all in ascending open_time order.
type Collection struct {
	Symbol             string
	Interval           interval.Interval
	TrainingPercentage float64

	Past       []Kline
	Training   []Kline
	Validation []Kline
}

// New partitions rows (ascending open_time) into training/validation by
// TrainingPercentage, with no past warmup rows. Rounding is ordinary
// half-away-from-zero (see DESIGN.md Open Question (b)).
func New(symbol string, iv interval.Interval, trainingPercentage float64, rows []Kline) *Collection {
	n := len(rows)
	t := roundHalfAwayFromZero(float64(n) * trainingPercentage)
	if t > n {
		t = n
	}
	if t < 0 {
		t = 0
	}
	training := append([]Kline(nil), rows[:t]...)
	validation := append([]Kline(nil), rows[t:]...)
	return &Collection{
		Symbol:             symbol,
		Interval:           iv,
		TrainingPercentage: trainingPercentage,
		Training:           training,
		Validation:         validation,
	}
}

func roundHalfAwayFromZero(x float64) int {
	if x >= 0 {
		return int(x + 0.5)
	}
	return -int(-x + 0.5)
}

// Get is 0-based forward indexing across training ++ validation ++ past.
func (c *Collection) Get(i int) Kline {
	nt, nv := len(c.Training), len(c.Validation)
	switch {
	case i < nt:
		return c.Training[i]
	case i < nt+nv:
		return c.Validation[i-nt]
	default:
		return c.Past[i-nt-nv]
	}
}

// GetRev is 0-based reverse indexing: index 0 is the newest validation
// kline, increasing indices walk back through training then past. ok is
// false once i reaches past data that was never retrieved (including the
// case where Past is empty entirely) — the lookback genuinely has no
// value there, and callers must leave the position missing rather than
// substitute one.
func (c *Collection) GetRev(i int) (k Kline, ok bool) {
	nt, nv, np := len(c.Training), len(c.Validation), len(c.Past)
	switch {
	case i < nv:
		return c.Validation[nv-1-i], true
	case i < nv+nt:
		return c.Training[nt-1-(i-nv)], true
	default:
		j := i - nv - nt
		if j >= np {
			return Kline{}, false
		}
		return c.Past[np-1-j], true
	}
}

// GetLength returns |training| + |validation|; past is excluded.
func (c *Collection) GetLength() int {
	return len(c.Training) + len(c.Validation)
}

// GetLimitMinutes reports how many minutes of bars make up training plus
// validation.
func (c *Collection) GetLimitMinutes() int64 {
	return int64(c.GetLength()) * c.Interval.Minutes()
}

// GetClosePrices returns the close price of training ++ validation, in
// ascending open_time order (past excluded).
func (c *Collection) GetClosePrices() []float64 {
	out := make([]float64, 0, c.GetLength())
	for _, k := range c.Training {
		out = append(out, k.Close)
	}
	for _, k := range c.Validation {
		out = append(out, k.Close)
	}
	return out
}

// FirstOpenTime is the open_time of the earliest training/validation row.
func (c *Collection) FirstOpenTime() time.Time {
	if len(c.Training) > 0 {
		return c.Training[0].OpenTime
	}
	if len(c.Validation) > 0 {
		return c.Validation[0].OpenTime
	}
	return time.Time{}
}

// LastOpenTime is the open_time of the latest training/validation row.
func (c *Collection) LastOpenTime() time.Time {
	if len(c.Validation) > 0 {
		return c.Validation[len(c.Validation)-1].OpenTime
	}
	if len(c.Training) > 0 {
		return c.Training[len(c.Training)-1].OpenTime
	}
	return time.Time{}
}

// FirstPastOpenTime falls back to FirstOpenTime when there is no past
// warmup data yet.
func (c *Collection) FirstPastOpenTime() time.Time {
	if len(c.Past) > 0 {
		return c.Past[0].OpenTime
	}
	return c.FirstOpenTime()
}

// CheckIntegrity verifies that, across past ++ training ++ validation in
// chronological order, successive open_times are spaced by exactly one
// interval.
func (c *Collection) CheckIntegrity() error {
	step := time.Duration(c.Interval.Milliseconds()) * time.Millisecond
	all := make([]Kline, 0, len(c.Past)+len(c.Training)+len(c.Validation))
	all = append(all, c.Past...)
	all = append(all, c.Training...)
	all = append(all, c.Validation...)

	for i := 1; i < len(all); i++ {
		diff := all[i].OpenTime.Sub(all[i-1].OpenTime)
		if diff != step {
			return &IntegrityError{
				Symbol:   c.Symbol,
				Interval: c.Interval,
				Index:    i,
				Got:      diff,
				Want:     step,
			}
		}
	}
	return nil
}

// IntegrityError reports a gap that does not match the expected interval
// spacing.
type IntegrityError struct {
	Symbol   string
	Interval interval.Interval
	Index    int
	Got      time.Duration
	Want     time.Duration
}

func (e *IntegrityError) Error() string {
	return "klines: integrity violation for " + e.Symbol + " " + string(e.Interval)
}
