package klinestore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"backtest-orchestrator/internal/interval"
)

func TestTableName(t *testing.T) {
	assert.Equal(t, "klines_btcusdt_1h", TableName("BTCUSDT", interval.Int1h))
	assert.Equal(t, "klines_ethusdt_1mo", TableName("ethusdt", interval.Int1M))
	assert.Equal(t, "klines_btcusdt_1m", TableName("BTCUSDT", interval.Int1m))
}
