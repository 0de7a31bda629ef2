package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-orchestrator/internal/interval"
	"backtest-orchestrator/internal/klines"
)

func kline(high, low, close float64) klines.Kline {
	return klines.Kline{High: high, Low: low, Close: close}
}

func partition(closes []float64, past, training, validation int) *klines.Collection {
	c := &klines.Collection{Interval: interval.Int1m}
	for i := 0; i < past; i++ {
		c.Past = append(c.Past, kline(closes[i], closes[i], closes[i]))
	}
	for i := past; i < past+training; i++ {
		c.Training = append(c.Training, kline(closes[i], closes[i], closes[i]))
	}
	for i := past + training; i < past+training+validation; i++ {
		c.Validation = append(c.Validation, kline(closes[i], closes[i], closes[i]))
	}
	return c
}

func TestMovingAverageBitExact(t *testing.T) {
	closes := []float64{
		94215.8, 94164.3, 94094.8, 94224.0, 94129.1, 94134.4, 94098.6,
		94122.1, 94165.9, 94160.5, 94173.3, 94206.8, 94154.8,
		94134.5, 94036.9,
	}
	c := partition(closes, 7, 6, 2)

	ma := NewMovingAverage(7)
	ma.Reserve(c.GetLength())
	ma.Calculate(c)

	want := []float64{
		94138.18571428572, 94138.41428571429, 94147.8, 94140.55714285713,
		94151.65714285713, 94154.57142857143, 94159.69999999998, 94147.52857142859,
	}
	col := ma.Values()[maColumn(7)]
	require.Len(t, col, 8)
	for i, w := range want {
		require.NotNil(t, col[i])
		assert.InDelta(t, w, *col[i], 1e-9)
	}

	assert.Empty(t, ma.MissingIndices())

	// Calling Calculate again on a saturated indicator writes nothing new.
	before := append([]*float64(nil), col...)
	ma.Calculate(c)
	assert.Equal(t, before, ma.Values()[maColumn(7)])
}

func TestStochasticOscillatorBitExact(t *testing.T) {
	highs := []float64{
		94565.8, 94562.2, 94588.0, 94623.9, 94602.8, 94668.8, 94668.9, 94741.5, 94719.0, 94730.6,
		94706.9, 94669.0, 94678.1, 94667.5, 94620.1, 94612.7,
	}
	lows := []float64{
		94513.3, 94465.7, 94498.2, 94554.4, 94562.6, 94520.2, 94585.6, 94639.2, 94692.7, 94689.0,
		94579.9, 94565.0, 94626.8, 94620.0, 94544.4, 94567.0,
	}
	closes := []float64{
		94542.7, 94522.4, 94560.1, 94580.0, 94595.2, 94667.8, 94639.2, 94697.5, 94700.0, 94706.9,
		94579.9, 94657.3, 94626.9, 94620.1, 94576.7, 94588.5,
	}

	c := &klines.Collection{Interval: interval.Int1m}
	for i := 0; i < 8; i++ {
		c.Past = append(c.Past, kline(highs[i], lows[i], closes[i]))
	}
	for i := 8; i < 14; i++ {
		c.Training = append(c.Training, kline(highs[i], lows[i], closes[i]))
	}
	for i := 14; i < 16; i++ {
		c.Validation = append(c.Validation, kline(highs[i], lows[i], closes[i]))
	}

	so := NewStochasticOscillator(5, 3)
	so.Reserve(c.GetLength())
	so.Calculate(c)

	wantK := []float64{
		0.812471757794851, 0.843651152281946, 0.0, 0.5229461756374103,
		0.37379227053135267, 0.3327294685990573, 0.19876923076924868, 0.3298429319371876,
	}
	wantD := []float64{
		0.8132190594482104, 0.8190992619370322, 0.5520409700255989, 0.4555324426397854,
		0.29891281538958764, 0.40982263825594006, 0.3017636566332195, 0.28711387710183117,
	}

	kCol, dCol := soColumns(5, 3)
	values := so.Values()
	require.Len(t, values[kCol], 8)
	for i := range wantK {
		require.NotNil(t, values[kCol][i])
		require.NotNil(t, values[dCol][i])
		assert.InDelta(t, wantK[i], *values[kCol][i], 1e-9)
		assert.InDelta(t, wantD[i], *values[dCol][i], 1e-9)
	}
}

func TestMovingAverageLeavesPositionsMissingWhenPastIsInsufficient(t *testing.T) {
	closes := []float64{
		94215.8, 94164.3, 94094.8, 94224.0, 94129.1, 94134.4, 94098.6,
		94122.1, 94165.9, 94160.5,
	}
	// Period 7 needs 6 bars of lookback beyond each position; only 2 past
	// bars are on hand, so the first few positions can't see far enough back.
	c := partition(closes, 2, 6, 2)

	ma := NewMovingAverage(7)
	ma.Reserve(c.GetLength())
	ma.Calculate(c)

	col := ma.Values()[maColumn(7)]
	for i := 0; i < 4; i++ {
		assert.Nil(t, col[i], "position %d should be left missing", i)
	}
	for i := 4; i < 8; i++ {
		require.NotNil(t, col[i], "position %d should have been computed", i)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, ma.MissingIndices())
}

func TestMovingAverageWithNoPastLeavesEarlyPositionsMissingWithoutPanicking(t *testing.T) {
	closes := []float64{
		94215.8, 94164.3, 94094.8, 94224.0, 94129.1, 94134.4, 94098.6, 94122.1,
	}
	// A newly-listed symbol: RetrieveExtended's backfill returned zero rows.
	c := partition(closes, 0, 6, 2)

	ma := NewMovingAverage(7)
	ma.Reserve(c.GetLength())
	assert.NotPanics(t, func() { ma.Calculate(c) })

	col := ma.Values()[maColumn(7)]
	for i := 0; i < 6; i++ {
		assert.Nil(t, col[i])
	}
	for i := 6; i < 8; i++ {
		require.NotNil(t, col[i])
	}
}

func TestExponentialMovingAverageSkipsToFirstFullyAvailableSeed(t *testing.T) {
	closes := []float64{94215.8, 94164.3, 94094.8, 94224.0, 94129.1, 94134.4, 94098.6}
	// Period 3's seed window needs 3 bars of lookback; only 1 past bar is
	// available, so the very first position can't be seeded.
	c := partition(closes, 1, 4, 2)

	ema := NewExponentialMovingAverage(3)
	ema.Reserve(c.GetLength())
	ema.Calculate(c)

	col := ema.Values()[emaColumn(3)]
	assert.Nil(t, col[0])
	for i := 1; i < len(col); i++ {
		require.NotNil(t, col[i])
	}
}

func TestStochasticOscillatorLeavesDPositionsMissingWhenPastIsInsufficient(t *testing.T) {
	highs := []float64{
		94565.8, 94562.2, 94588.0, 94623.9, 94602.8, 94668.8, 94668.9, 94741.5, 94719.0, 94730.6,
		94706.9, 94669.0,
	}
	lows := []float64{
		94513.3, 94465.7, 94498.2, 94554.4, 94562.6, 94520.2, 94585.6, 94639.2, 94692.7, 94689.0,
		94579.9, 94565.0,
	}
	closes := []float64{
		94542.7, 94522.4, 94560.1, 94580.0, 94595.2, 94667.8, 94639.2, 94697.5, 94700.0, 94706.9,
		94579.9, 94657.3,
	}

	// K=5, D=3 needs 8 bars of lookback, but only 4 past bars are on hand.
	// %K's own 5-bar window still fits for every real position, but %D's
	// extra D-1 bars of smoothing reach past data that was never retrieved
	// for the earliest two positions.
	c := &klines.Collection{Interval: interval.Int1m}
	for i := 0; i < 4; i++ {
		c.Past = append(c.Past, kline(highs[i], lows[i], closes[i]))
	}
	for i := 4; i < 10; i++ {
		c.Training = append(c.Training, kline(highs[i], lows[i], closes[i]))
	}
	for i := 10; i < 12; i++ {
		c.Validation = append(c.Validation, kline(highs[i], lows[i], closes[i]))
	}

	so := NewStochasticOscillator(5, 3)
	so.Reserve(c.GetLength())
	so.Calculate(c)

	kCol, dCol := soColumns(5, 3)
	values := so.Values()
	for i := 0; i < 2; i++ {
		require.NotNil(t, values[kCol][i], "%%K at %d should still be computable", i)
		assert.Nil(t, values[dCol][i], "%%D at %d should be left missing", i)
	}
	for i := 2; i < 8; i++ {
		require.NotNil(t, values[kCol][i])
		require.NotNil(t, values[dCol][i])
	}
	assert.Equal(t, []int{0, 1}, so.MissingIndices())
}

func TestIndicatorCatalogCoversAllVariants(t *testing.T) {
	assert.Len(t, Catalog(), 9)
}

func TestNewUnknownVariant(t *testing.T) {
	_, err := New("NotARealIndicator", nil)
	assert.Error(t, err)
}
