// Package klinefetcher paginates the exchange candlestick endpoint to fill
// gaps older-than and newer-than the locally stored window.
package klinefetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/interval"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/klinestore"
	"backtest-orchestrator/internal/logging"
)

// fetchType selects which direction loopFetch walks.
type fetchType int

const (
	typeRecent fetchType = iota
	typeOlder
)

const requestLimit = "5"

// Store is the subset of KlineStore (C1) the fetcher writes into.
type Store interface {
	EnsureTable(ctx context.Context, symbol string, iv interval.Interval) error
	MinOpenTime(ctx context.Context, symbol string, iv interval.Interval) (int64, error)
	MaxOpenTime(ctx context.Context, symbol string, iv interval.Interval) (int64, error)
	Insert(ctx context.Context, symbol string, iv interval.Interval, k klines.Kline) (klinestore.InsertResult, error)
	CheckIntegrity(ctx context.Context, symbol string, iv interval.Interval) error
}

// Fetcher implements KlineFetcher (C2) against the exchange's futures
// kline endpoint.
type Fetcher struct {
	httpClient     *http.Client
	baseURL        string
	requestsDelay  time.Duration
	coldStartSlack time.Duration
	store          Store
	log            *logging.Logger
}

// Config configures a Fetcher.
type Config struct {
	BaseURL        string
	RequestsDelay  time.Duration
	ColdStartSlack time.Duration
}

// New builds a Fetcher over store.
func New(store Store, cfg Config, log *logging.Logger) *Fetcher {
	if log == nil {
		log = logging.Default()
	}
	if cfg.RequestsDelay == 0 {
		cfg.RequestsDelay = time.Second
	}
	if cfg.ColdStartSlack == 0 {
		cfg.ColdStartSlack = 100 * 24 * time.Hour
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://fapi.binance.com"
	}
	return &Fetcher{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        cfg.BaseURL,
		requestsDelay:  cfg.RequestsDelay,
		coldStartSlack: cfg.ColdStartSlack,
		store:          store,
		log:            log.WithComponent("klinefetcher"),
	}
}

// AcquireKlines tops up the stored table for symbol/interval until it
// satisfies limit, or indefinitely when forceFetch is set. On a cold start
// (tableExists=false) it only walks Older; on a warm table it walks Recent
// then Older.
func (f *Fetcher) AcquireKlines(ctx context.Context, symbol string, iv interval.Interval, limit *int64, tableExists bool, forceFetch bool) error {
	if !tableExists {
		if err := f.store.EnsureTable(ctx, symbol, iv); err != nil {
			return err
		}
		if err := f.loopFetch(ctx, symbol, iv, limit, typeOlder, false); err != nil {
			return err
		}
	} else {
		if err := f.loopFetch(ctx, symbol, iv, limit, typeRecent, forceFetch); err != nil {
			return err
		}
		if err := f.loopFetch(ctx, symbol, iv, limit, typeOlder, false); err != nil {
			return err
		}
	}

	return f.store.CheckIntegrity(ctx, symbol, iv)
}

func (f *Fetcher) loopFetch(ctx context.Context, symbol string, iv interval.Interval, limit *int64, ft fetchType, forceFetch bool) error {
	var timeField string
	var timeParam int64
	var err error

	if ft == typeRecent {
		timeField = "startTime"
		timeParam, err = f.store.MaxOpenTime(ctx, symbol, iv)
	} else {
		timeField = "endTime"
		timeParam, err = f.store.MinOpenTime(ctx, symbol, iv)
		if timeParam == 0 {
			timeParam = time.Now().Add(f.coldStartSlack).UnixMilli()
		}
	}
	if err != nil {
		return err
	}

	var fetched int64
	for {
		select {
		case <-ctx.Done():
			return apperrors.New("klinefetcher.loopFetch", apperrors.Cancelled, ctx.Err())
		default:
		}

		if limit != nil && !forceFetch && fetched >= *limit {
			break
		}

		rows, err := f.fetchKlines(ctx, symbol, iv, timeField, timeParam)
		if err != nil {
			return err
		}
		if len(rows) <= 1 {
			break
		}

		if ft == typeRecent {
			timeParam = rows[len(rows)-1].openTimeMs
		} else {
			timeParam = rows[0].openTimeMs
		}

		for _, row := range rows {
			k, ok := row.toKline()
			if !ok {
				continue
			}
			result, err := f.store.Insert(ctx, symbol, iv, k)
			if err == nil && result == klinestore.Inserted {
				fetched++
			}
		}
	}

	return nil
}

type rawRow struct {
	openTimeMs int64
	open, high, low, close, volume                   float64
	closeTimeMs                                       int64
	quoteAssetVolume                                  float64
	numberOfTrades                                    int64
	takerBuyBaseAssetVolume, takerBuyQuoteAssetVolume float64
}

// toKline converts the raw row to a Kline, rejecting rows whose close_time
// is still in the future (an incomplete candle).
func (r rawRow) toKline() (klines.Kline, bool) {
	if r.closeTimeMs > time.Now().UnixMilli() {
		return klines.Kline{}, false
	}
	return klines.Kline{
		OpenTime:                 time.UnixMilli(r.openTimeMs).UTC(),
		Open:                     r.open,
		High:                     r.high,
		Low:                      r.low,
		Close:                    r.close,
		Volume:                   r.volume,
		CloseTime:                time.UnixMilli(r.closeTimeMs).UTC(),
		QuoteAssetVolume:         r.quoteAssetVolume,
		NumberOfTrades:           r.numberOfTrades,
		TakerBuyBaseAssetVolume:  r.takerBuyBaseAssetVolume,
		TakerBuyQuoteAssetVolume: r.takerBuyQuoteAssetVolume,
	}, true
}

func (f *Fetcher) fetchKlines(ctx context.Context, symbol string, iv interval.Interval, timeField string, timeParam int64) ([]rawRow, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", iv.Wire())
	q.Set("limit", requestLimit)
	q.Set(timeField, strconv.FormatInt(timeParam, 10))

	reqURL := fmt.Sprintf("%s/fapi/v1/klines?%s", f.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.New("klinefetcher.fetchKlines", apperrors.UpstreamUnavailable, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.New("klinefetcher.fetchKlines", apperrors.UpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperrors.New("klinefetcher.fetchKlines", apperrors.UpstreamUnavailable,
			fmt.Errorf("upstream returned %d", resp.StatusCode))
	}

	var payload [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.New("klinefetcher.fetchKlines", apperrors.UpstreamUnavailable, err)
	}

	rows := make([]rawRow, 0, len(payload))
	for _, raw := range payload {
		row, err := parseRow(raw)
		if err != nil {
			return nil, apperrors.New("klinefetcher.fetchKlines", apperrors.UpstreamUnavailable, err)
		}
		rows = append(rows, row)
	}

	time.Sleep(f.requestsDelay)
	return rows, nil
}

func parseRow(raw []json.RawMessage) (rawRow, error) {
	if len(raw) < 11 {
		return rawRow{}, fmt.Errorf("klinefetcher: malformed kline row")
	}
	var row rawRow
	var err error
	if row.openTimeMs, err = parseInt(raw[0]); err != nil {
		return rawRow{}, err
	}
	if row.open, err = parseFloatString(raw[1]); err != nil {
		return rawRow{}, err
	}
	if row.high, err = parseFloatString(raw[2]); err != nil {
		return rawRow{}, err
	}
	if row.low, err = parseFloatString(raw[3]); err != nil {
		return rawRow{}, err
	}
	if row.close, err = parseFloatString(raw[4]); err != nil {
		return rawRow{}, err
	}
	if row.volume, err = parseFloatString(raw[5]); err != nil {
		return rawRow{}, err
	}
	if row.closeTimeMs, err = parseInt(raw[6]); err != nil {
		return rawRow{}, err
	}
	if row.quoteAssetVolume, err = parseFloatString(raw[7]); err != nil {
		return rawRow{}, err
	}
	if row.numberOfTrades, err = parseInt(raw[8]); err != nil {
		return rawRow{}, err
	}
	if row.takerBuyBaseAssetVolume, err = parseFloatString(raw[9]); err != nil {
		return rawRow{}, err
	}
	if row.takerBuyQuoteAssetVolume, err = parseFloatString(raw[10]); err != nil {
		return rawRow{}, err
	}
	return row, nil
}

func parseInt(raw json.RawMessage) (int64, error) {
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func parseFloatString(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
