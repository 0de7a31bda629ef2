package klines

import (
	"context"
	"fmt"

	"backtest-orchestrator/internal/interval"
)

// Store is the subset of KlineStore (C1) that KlineCollection retrieval
// depends on.
type Store interface {
	Exists(ctx context.Context, symbol string, iv interval.Interval) (bool, error)
	Length(ctx context.Context, symbol string, iv interval.Interval) (int64, error)
	CountBefore(ctx context.Context, symbol string, iv interval.Interval, before int64) (int64, error)
	QueryWindow(ctx context.Context, symbol string, iv interval.Interval, beforeMillis *int64, limit int64, ascending bool) ([]Kline, error)
}

// Fetcher is the subset of KlineFetcher (C2) that KlineCollection
// retrieval depends on: top up the stored table until it satisfies limit
// (or force_fetch demands continuation regardless).
type Fetcher interface {
	AcquireKlines(ctx context.Context, symbol string, iv interval.Interval, limit *int64, tableExists bool, forceFetch bool) error
}

// Retrieve implements KlineCollection's constructor (spec §4.3): ensure the
// table is sufficiently populated, pull the most recent `limit` rows, and
// split them into training/validation.
func Retrieve(ctx context.Context, store Store, fetcher Fetcher, symbol string, iv interval.Interval, limitMinutes int64, trainingPercentage float64, forceFetch bool) (*Collection, error) {
	limit := limitMinutes / iv.Minutes()

	exists, err := store.Exists(ctx, symbol, iv)
	if err != nil {
		return nil, fmt.Errorf("klines: check table exists: %w", err)
	}
	var length int64
	if exists {
		length, err = store.Length(ctx, symbol, iv)
		if err != nil {
			return nil, fmt.Errorf("klines: table length: %w", err)
		}
	}

	if !exists || length == 0 || length < limit || forceFetch {
		if err := fetcher.AcquireKlines(ctx, symbol, iv, &limit, exists, forceFetch); err != nil {
			return nil, fmt.Errorf("klines: acquire: %w", err)
		}
	}

	rows, err := store.QueryWindow(ctx, symbol, iv, nil, limit, false)
	if err != nil {
		return nil, fmt.Errorf("klines: query window: %w", err)
	}
	// rows arrive descending (newest first); reverse to ascending.
	reverseInPlace(rows)

	return New(symbol, iv, trainingPercentage, rows), nil
}

// RetrieveExtended fills in Past so that an indicator's warmup requirement
// is satisfied. If enough rows already precede the current window it skips
// the upstream fetch entirely (spec §4.3's skip_fetch shortcut).
func (c *Collection) RetrieveExtended(ctx context.Context, store Store, fetcher Fetcher, additionalKlines int) error {
	before := c.FirstPastOpenTime().UnixMilli()
	klinesBeforeLastOpen, err := store.CountBefore(ctx, c.Symbol, c.Interval, c.LastOpenTime().UnixMilli())
	if err != nil {
		return fmt.Errorf("klines: count before: %w", err)
	}

	skipFetch := klinesBeforeLastOpen >= int64(c.GetLength()+additionalKlines)
	if !skipFetch {
		limit := int64(additionalKlines)
		if err := fetcher.AcquireKlines(ctx, c.Symbol, c.Interval, &limit, true, false); err != nil {
			return fmt.Errorf("klines: acquire extended: %w", err)
		}
	}

	need := additionalKlines - len(c.Past)
	if need <= 0 {
		return nil
	}

	rows, err := store.QueryWindow(ctx, c.Symbol, c.Interval, &before, int64(need), false)
	if err != nil {
		return fmt.Errorf("klines: query extended window: %w", err)
	}
	reverseInPlace(rows)
	c.Past = append(rows, c.Past...)
	return nil
}

func reverseInPlace(rows []Kline) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
