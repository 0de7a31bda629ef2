// Package database wires the process-wide PostgreSQL connection pool and
// owns the configuration-entity schema migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"backtest-orchestrator/internal/logging"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool *pgxpool.Pool
	log  *logging.Logger
}

// Config holds database connection pool tuning.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewDB opens the pool described by cfg and verifies connectivity.
func NewDB(cfg Config, log *logging.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("database: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	if log == nil {
		log = logging.Default()
	}
	log.Info("connected to PostgreSQL")

	return &DB{Pool: pool, log: log}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("database connection closed")
	}
}

// RunMigrations creates the configuration-entity schema. Per-symbol kline
// tables are created lazily by klinestore.EnsureTable, not here.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS crypto_symbol (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(32) NOT NULL UNIQUE,
			name VARCHAR(128) NOT NULL DEFAULT '',
			volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			available BOOLEAN NOT NULL DEFAULT TRUE
		)`,

		`CREATE TABLE IF NOT EXISTS crypto_list (
			id SERIAL PRIMARY KEY,
			hidden BOOLEAN NOT NULL DEFAULT FALSE,
			name VARCHAR(128) NOT NULL,
			interval VARCHAR(16) NOT NULL,
			list_type VARCHAR(32) NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS crypto_list_x_crypto_symbol (
			crypto_list_id INTEGER NOT NULL REFERENCES crypto_list(id) ON DELETE CASCADE,
			crypto_symbol_id INTEGER NOT NULL REFERENCES crypto_symbol(id) ON DELETE CASCADE,
			PRIMARY KEY (crypto_list_id, crypto_symbol_id)
		)`,

		`CREATE TABLE IF NOT EXISTS mh_object (
			id SERIAL PRIMARY KEY,
			hidden BOOLEAN NOT NULL DEFAULT FALSE,
			mh_algorithm_name VARCHAR(64) NOT NULL,
			mh_parameters JSONB NOT NULL DEFAULT '{}'::jsonb,
			other_parameters JSONB
		)`,

		`CREATE TABLE IF NOT EXISTS indicator_combination (
			id SERIAL PRIMARY KEY,
			hidden BOOLEAN NOT NULL DEFAULT FALSE,
			name VARCHAR(128) NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS indicator_in_combination (
			id SERIAL PRIMARY KEY,
			indicator_combination_id INTEGER NOT NULL REFERENCES indicator_combination(id) ON DELETE CASCADE,
			struct_name VARCHAR(64) NOT NULL,
			parameters JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,

		`CREATE TABLE IF NOT EXISTS result (
			id SERIAL PRIMARY KEY,
			results JSONB NOT NULL DEFAULT '{}'::jsonb,
			other_parameters JSONB
		)`,

		`DO $$ BEGIN
			CREATE TYPE task_state AS ENUM (
				'CREATED', 'PENDING', 'RUNNING', 'CANCELLING', 'CANCELLED', 'COMPLETED', 'FAILED'
			);
		EXCEPTION WHEN duplicate_object THEN NULL;
		END $$`,

		`CREATE TABLE IF NOT EXISTS task (
			id SERIAL PRIMARY KEY,
			state task_state NOT NULL DEFAULT 'CREATED',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			other_parameters JSONB,
			mh_object_id INTEGER REFERENCES mh_object(id),
			crypto_list_id INTEGER REFERENCES crypto_list(id),
			indicator_combination_id INTEGER REFERENCES indicator_combination(id),
			result_id INTEGER REFERENCES result(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_state ON task(state)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("database: migration %d failed: %w", i+1, err)
		}
	}

	db.log.Info("database migrations completed")
	return nil
}

// HealthCheck pings the pool.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
