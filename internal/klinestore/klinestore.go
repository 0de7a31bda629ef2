// Package klinestore persists per-symbol x interval candlestick series in
// PostgreSQL, one table per (symbol, interval) pair.
package klinestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/interval"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/logging"
)

// Store implements KlineStore (C1) against a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// New builds a Store over pool.
func New(pool *pgxpool.Pool, log *logging.Logger) *Store {
	if log == nil {
		log = logging.Default()
	}
	return &Store{pool: pool, log: log}
}

// TableName returns the deterministic table name for a symbol/interval
// pair: lowercase klines_<symbol>_<interval_tag>.
func TableName(symbol string, iv interval.Interval) string {
	tag := strings.NewReplacer("1m", "1m", "1M", "1mo").Replace(string(iv))
	return fmt.Sprintf("klines_%s_%s", strings.ToLower(symbol), strings.ToLower(tag))
}

// EnsureTable creates the table (and its fixed OHLCV schema) if absent.
func (s *Store) EnsureTable(ctx context.Context, symbol string, iv interval.Interval) error {
	table := TableName(symbol, iv)
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		open_time BIGINT PRIMARY KEY,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		close_time BIGINT NOT NULL,
		quote_asset_volume DOUBLE PRECISION NOT NULL,
		number_of_trades BIGINT NOT NULL,
		taker_buy_base_asset_volume DOUBLE PRECISION NOT NULL,
		taker_buy_quote_asset_volume DOUBLE PRECISION NOT NULL
	)`, table)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return apperrors.New("klinestore.EnsureTable", apperrors.UpstreamUnavailable, err)
	}
	return nil
}

// Exists reports whether the table for symbol/interval has been created.
func (s *Store) Exists(ctx context.Context, symbol string, iv interval.Interval) (bool, error) {
	table := TableName(symbol, iv)
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT FROM information_schema.tables WHERE table_name = $1
	)`, table).Scan(&exists)
	if err != nil {
		return false, apperrors.New("klinestore.Exists", apperrors.UpstreamUnavailable, err)
	}
	return exists, nil
}

// Length returns the row count of the table.
func (s *Store) Length(ctx context.Context, symbol string, iv interval.Interval) (int64, error) {
	table := TableName(symbol, iv)
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, apperrors.New("klinestore.Length", apperrors.UpstreamUnavailable, err)
	}
	return n, nil
}

// CountBefore returns the number of rows strictly before beforeMillis.
func (s *Store) CountBefore(ctx context.Context, symbol string, iv interval.Interval, beforeMillis int64) (int64, error) {
	table := TableName(symbol, iv)
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE open_time < $1`, table), beforeMillis).Scan(&n)
	if err != nil {
		return 0, apperrors.New("klinestore.CountBefore", apperrors.UpstreamUnavailable, err)
	}
	return n, nil
}

// MinOpenTime returns the earliest open_time in the table, in milliseconds.
func (s *Store) MinOpenTime(ctx context.Context, symbol string, iv interval.Interval) (int64, error) {
	table := TableName(symbol, iv)
	var v int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COALESCE(MIN(open_time), 0) FROM %s`, table)).Scan(&v)
	if err != nil {
		return 0, apperrors.New("klinestore.MinOpenTime", apperrors.UpstreamUnavailable, err)
	}
	return v, nil
}

// MaxOpenTime returns the latest open_time in the table, in milliseconds.
func (s *Store) MaxOpenTime(ctx context.Context, symbol string, iv interval.Interval) (int64, error) {
	table := TableName(symbol, iv)
	var v int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(open_time), 0) FROM %s`, table)).Scan(&v)
	if err != nil {
		return 0, apperrors.New("klinestore.MaxOpenTime", apperrors.UpstreamUnavailable, err)
	}
	return v, nil
}

// InsertResult reports whether Insert stored a new row.
type InsertResult int

const (
	// Inserted means the row did not previously exist and was stored.
	Inserted InsertResult = iota
	// Duplicate means the row's open_time primary key already existed;
	// this is not an error (spec §7 IntegrityViolation: swallowed here).
	Duplicate
)

// Insert stores k idempotently on open_time.
func (s *Store) Insert(ctx context.Context, symbol string, iv interval.Interval, k klines.Kline) (InsertResult, error) {
	table := TableName(symbol, iv)
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (open_time, open, high, low, close, volume, close_time, quote_asset_volume, number_of_trades, taker_buy_base_asset_volume, taker_buy_quote_asset_volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (open_time) DO NOTHING
	`, table),
		k.OpenTimeMillis(), k.Open, k.High, k.Low, k.Close, k.Volume,
		k.CloseTimeMillis(), k.QuoteAssetVolume, k.NumberOfTrades,
		k.TakerBuyBaseAssetVolume, k.TakerBuyQuoteAssetVolume,
	)
	if err != nil {
		return Duplicate, apperrors.New("klinestore.Insert", apperrors.UpstreamUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return Duplicate, nil
	}
	return Inserted, nil
}

// QueryWindow returns up to limit rows, optionally strictly before
// beforeMillis, ordered ascending or descending by open_time.
func (s *Store) QueryWindow(ctx context.Context, symbol string, iv interval.Interval, beforeMillis *int64, limit int64, ascending bool) ([]klines.Kline, error) {
	table := TableName(symbol, iv)
	order := "DESC"
	if ascending {
		order = "ASC"
	}

	var rows pgx.Rows
	var err error
	if beforeMillis != nil {
		rows, err = s.pool.Query(ctx, fmt.Sprintf(
			`SELECT open_time, open, high, low, close, volume, close_time, quote_asset_volume, number_of_trades, taker_buy_base_asset_volume, taker_buy_quote_asset_volume
			 FROM %s WHERE open_time < $1 ORDER BY open_time %s LIMIT $2`, table, order),
			*beforeMillis, limit)
	} else {
		rows, err = s.pool.Query(ctx, fmt.Sprintf(
			`SELECT open_time, open, high, low, close, volume, close_time, quote_asset_volume, number_of_trades, taker_buy_base_asset_volume, taker_buy_quote_asset_volume
			 FROM %s ORDER BY open_time %s LIMIT $1`, table, order),
			limit)
	}
	if err != nil {
		return nil, apperrors.New("klinestore.QueryWindow", apperrors.UpstreamUnavailable, err)
	}
	defer rows.Close()

	return scanKlines(rows)
}

// HasColumns reports whether every named column already exists on the
// table.
func (s *Store) HasColumns(ctx context.Context, symbol string, iv interval.Interval, columns []string) (bool, error) {
	table := TableName(symbol, iv)
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_name = $1 AND column_name = ANY($2)
	`, table, columns).Scan(&n)
	if err != nil {
		return false, apperrors.New("klinestore.HasColumns", apperrors.UpstreamUnavailable, err)
	}
	return n == len(columns), nil
}

// AddColumns adds nullable real columns for any of the given names that
// are not already present.
func (s *Store) AddColumns(ctx context.Context, symbol string, iv interval.Interval, columns []string) error {
	table := TableName(symbol, iv)
	has, err := s.HasColumns(ctx, symbol, iv, columns)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	for _, col := range columns {
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s DOUBLE PRECISION`, table, pgx.Identifier{col}.Sanitize())
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return apperrors.New("klinestore.AddColumns", apperrors.UpstreamUnavailable, err)
		}
	}
	return nil
}

// UpdateCells writes indicator columns for a single row keyed by open_time.
func (s *Store) UpdateCells(ctx context.Context, symbol string, iv interval.Interval, openTimeMillis int64, columnValues map[string]float64) error {
	if len(columnValues) == 0 {
		return nil
	}
	table := TableName(symbol, iv)
	setClauses := make([]string, 0, len(columnValues))
	args := []any{openTimeMillis}
	i := 2
	for col, val := range columnValues {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), i))
		args = append(args, val)
		i++
	}
	stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE open_time = $1`, table, strings.Join(setClauses, ", "))
	if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
		return apperrors.New("klinestore.UpdateCells", apperrors.UpstreamUnavailable, err)
	}
	return nil
}

// CheckIntegrity verifies, via a LAG() window query, that consecutive
// open_time values in the stored table differ by exactly the interval.
func (s *Store) CheckIntegrity(ctx context.Context, symbol string, iv interval.Interval) error {
	table := TableName(symbol, iv)
	step := iv.Milliseconds()

	var mismatches int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM (
			SELECT open_time - LAG(open_time, 1) OVER (ORDER BY open_time) AS diff
			FROM %s
		) AS diffs
		WHERE diff IS NOT NULL AND diff != $1
	`, table), step).Scan(&mismatches)
	if err != nil {
		return apperrors.New("klinestore.CheckIntegrity", apperrors.UpstreamUnavailable, err)
	}
	if mismatches != 0 {
		return apperrors.New("klinestore.CheckIntegrity", apperrors.IntegrityViolation,
			fmt.Errorf("%d gap(s) in %s do not match interval spacing", mismatches, table))
	}
	return nil
}

func scanKlines(rows pgx.Rows) ([]klines.Kline, error) {
	var out []klines.Kline
	for rows.Next() {
		var (
			openMs, closeMs, trades int64
			open, high, low, close, volume, qav, tbbav, tbqav float64
		)
		if err := rows.Scan(&openMs, &open, &high, &low, &close, &volume, &closeMs, &qav, &trades, &tbbav, &tbqav); err != nil {
			return nil, apperrors.New("klinestore.scanKlines", apperrors.UpstreamUnavailable, err)
		}
		out = append(out, klines.Kline{
			OpenTime:                 msToTime(openMs),
			Open:                     open,
			High:                     high,
			Low:                      low,
			Close:                    close,
			Volume:                   volume,
			CloseTime:                msToTime(closeMs),
			QuoteAssetVolume:         qav,
			NumberOfTrades:           trades,
			TakerBuyBaseAssetVolume:  tbbav,
			TakerBuyQuoteAssetVolume: tbqav,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.New("klinestore.scanKlines", apperrors.UpstreamUnavailable, err)
	}
	return out, nil
}
