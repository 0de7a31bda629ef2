package klines

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-orchestrator/internal/interval"
)

func sampleKline(t time.Time) Kline {
	return Kline{
		OpenTime:                t,
		Open:                    100.0,
		High:                    110.0,
		Low:                     90.0,
		Close:                   105.0,
		Volume:                  1000.0,
		CloseTime:               t.Add(time.Minute),
		QuoteAssetVolume:        105000.0,
		NumberOfTrades:          100,
		TakerBuyBaseAssetVolume:  600.0,
		TakerBuyQuoteAssetVolume: 63000.0,
	}
}

func testCollection() *Collection {
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Collection{
		Symbol:             "BTCUSDT",
		Interval:           interval.Int1m,
		TrainingPercentage: 0.7,
	}
	for i := 0; i < 3; i++ {
		c.Training = append(c.Training, sampleKline(base.Add(time.Duration(i)*time.Minute)))
	}
	for i := 3; i < 5; i++ {
		c.Validation = append(c.Validation, sampleKline(base.Add(time.Duration(i)*time.Minute)))
	}
	for i := -2; i < 0; i++ {
		c.Past = append(c.Past, sampleKline(base.Add(time.Duration(i)*time.Minute)))
	}
	return c
}

func TestGetForward(t *testing.T) {
	c := testCollection()
	assert.Equal(t, 100.0, c.Get(0).Open)
	assert.Equal(t, 100.0, c.Get(3).Open)
	assert.Equal(t, 100.0, c.Get(5).Open)
}

func TestGetReverse(t *testing.T) {
	c := testCollection()
	k, ok := c.GetRev(0)
	require.True(t, ok)
	assert.Equal(t, 100.0, k.Open)
	k, ok = c.GetRev(3)
	require.True(t, ok)
	assert.Equal(t, 100.0, k.Open)
	k, ok = c.GetRev(5)
	require.True(t, ok)
	assert.Equal(t, 100.0, k.Open)
}

func TestGetReverseNewestIsLatestValidationRow(t *testing.T) {
	c := testCollection()
	last := c.Validation[len(c.Validation)-1]
	k, ok := c.GetRev(0)
	require.True(t, ok)
	assert.True(t, k.OpenTime.Equal(last.OpenTime))
}

func TestGetReverseIntoPastSucceedsWhileDataAvailable(t *testing.T) {
	c := testCollection()
	k, ok := c.GetRev(6)
	require.True(t, ok)
	assert.True(t, k.OpenTime.Equal(c.Past[0].OpenTime))
}

func TestGetReverseBeyondAvailablePastIsNotOK(t *testing.T) {
	c := testCollection()
	_, ok := c.GetRev(7)
	assert.False(t, ok)
}

func TestGetReverseWithNoPastIsNeverOKBeyondTrainingAndValidation(t *testing.T) {
	c := testCollection()
	c.Past = nil
	_, ok := c.GetRev(5)
	assert.False(t, ok)
}

func TestGetLength(t *testing.T) {
	c := testCollection()
	assert.Equal(t, 5, c.GetLength())
}

func TestNewRoundsTrainingPercentage(t *testing.T) {
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]Kline, 15)
	for i := range rows {
		rows[i] = sampleKline(base.Add(time.Duration(i) * time.Minute))
	}
	c := New("BTCUSDT", interval.Int1m, 0.8, rows)
	require.Len(t, c.Training, 12)
	require.Len(t, c.Validation, 3)
}

func TestCheckIntegrityDetectsGap(t *testing.T) {
	c := testCollection()
	require.NoError(t, c.CheckIntegrity())

	c.Validation[1].OpenTime = c.Validation[1].OpenTime.Add(time.Minute)
	err := c.CheckIntegrity()
	require.Error(t, err)
}
