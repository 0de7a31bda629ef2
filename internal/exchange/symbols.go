// Package exchange is a small Binance Futures REST client for the
// catalog-level concerns KlineFetcher (C2) does not cover: symbol
// universe and trading availability, used by the /crypto_symbol/reload
// endpoint.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"backtest-orchestrator/internal/apperrors"
)

// SymbolInfo is one exchange symbol's trading status and USD-denominated
// 24h volume, the merge of exchangeInfo and ticker/24hr.
type SymbolInfo struct {
	Symbol    string
	Volume    float64
	Available bool
}

// SymbolsClient fetches the current symbol universe from Binance Futures.
type SymbolsClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewSymbolsClient builds a client against baseURL (empty defaults to the
// production Binance Futures API).
func NewSymbolsClient(baseURL string) *SymbolsClient {
	if baseURL == "" {
		baseURL = "https://fapi.binance.com"
	}
	return &SymbolsClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

type tickerEntry struct {
	Symbol           string `json:"symbol"`
	Volume           string `json:"volume"`
	WeightedAvgPrice string `json:"weightedAvgPrice"`
}

// FetchAll merges exchangeInfo's trading status with ticker/24hr's volume,
// mirroring the source's get_symbols_actual_info.
func (c *SymbolsClient) FetchAll(ctx context.Context) ([]SymbolInfo, error) {
	const op = "exchange.FetchAll"

	availability, err := c.fetchAvailability(ctx)
	if err != nil {
		return nil, apperrors.New(op, apperrors.UpstreamUnavailable, err)
	}

	var tickers []tickerEntry
	if err := c.getJSON(ctx, "/fapi/v1/ticker/24hr", &tickers); err != nil {
		return nil, apperrors.New(op, apperrors.UpstreamUnavailable, err)
	}

	out := make([]SymbolInfo, 0, len(tickers))
	for _, t := range tickers {
		volume, err := strconv.ParseFloat(t.Volume, 64)
		if err != nil {
			continue
		}
		weighted, err := strconv.ParseFloat(t.WeightedAvgPrice, 64)
		if err != nil {
			continue
		}
		out = append(out, SymbolInfo{
			Symbol:    t.Symbol,
			Volume:    volume * weighted,
			Available: availability[t.Symbol],
		})
	}
	return out, nil
}

func (c *SymbolsClient) fetchAvailability(ctx context.Context) (map[string]bool, error) {
	var info exchangeInfoResponse
	if err := c.getJSON(ctx, "/fapi/v1/exchangeInfo", &info); err != nil {
		return nil, err
	}
	availability := make(map[string]bool, len(info.Symbols))
	for _, s := range info.Symbols {
		availability[s.Symbol] = s.Status == "TRADING"
	}
	return availability, nil
}

func (c *SymbolsClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("exchange: %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
