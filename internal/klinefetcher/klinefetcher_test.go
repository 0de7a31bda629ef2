package klinefetcher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestParseRowRejectsFutureCloseTime(t *testing.T) {
	future := time.Now().Add(time.Hour).UnixMilli()
	raw := []json.RawMessage{
		rawJSON(t, int64(1)), rawJSON(t, "1.0"), rawJSON(t, "2.0"), rawJSON(t, "0.5"),
		rawJSON(t, "1.5"), rawJSON(t, "100.0"), rawJSON(t, future), rawJSON(t, "150.0"),
		rawJSON(t, int64(10)), rawJSON(t, "50.0"), rawJSON(t, "75.0"),
	}
	row, err := parseRow(raw)
	require.NoError(t, err)

	_, ok := row.toKline()
	assert.False(t, ok, "rows with close_time in the future must be rejected")
}

func TestParseRowAccepted(t *testing.T) {
	past := time.Now().Add(-time.Hour).UnixMilli()
	raw := []json.RawMessage{
		rawJSON(t, int64(1000)), rawJSON(t, "1.0"), rawJSON(t, "2.0"), rawJSON(t, "0.5"),
		rawJSON(t, "1.5"), rawJSON(t, "100.0"), rawJSON(t, past), rawJSON(t, "150.0"),
		rawJSON(t, int64(10)), rawJSON(t, "50.0"), rawJSON(t, "75.0"),
	}
	row, err := parseRow(raw)
	require.NoError(t, err)

	k, ok := row.toKline()
	require.True(t, ok)
	assert.Equal(t, 1.0, k.Open)
	assert.Equal(t, 2.0, k.High)
	assert.Equal(t, int64(10), k.NumberOfTrades)
}
