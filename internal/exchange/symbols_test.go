package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAllMergesAvailabilityAndVolume(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING"},
			{"symbol":"ETHUSDT","status":"BREAK"}
		]}`))
	})
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","volume":"100","weightedAvgPrice":"50000"},
			{"symbol":"ETHUSDT","volume":"10","weightedAvgPrice":"3000"}
		]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewSymbolsClient(server.URL)
	symbols, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, symbols, 2)

	byName := make(map[string]SymbolInfo, len(symbols))
	for _, s := range symbols {
		byName[s.Symbol] = s
	}

	assert.Equal(t, float64(100*50000), byName["BTCUSDT"].Volume)
	assert.True(t, byName["BTCUSDT"].Available)
	assert.Equal(t, float64(10*3000), byName["ETHUSDT"].Volume)
	assert.False(t, byName["ETHUSDT"].Available)
}

func TestFetchAllPropagatesUpstreamFailureAsUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewSymbolsClient(server.URL)
	_, err := client.FetchAll(context.Background())
	require.Error(t, err)
}

func TestNewSymbolsClientDefaultsBaseURL(t *testing.T) {
	client := NewSymbolsClient("")
	assert.Equal(t, "https://fapi.binance.com", client.baseURL)
}
