// Package store persists contract bars and built series in PostgreSQL.
package store

// Schema is applied by database.DB.Migrate; every statement is idempotent
// ⭐ SSOT: futures 스키마 정의는 여기서만
var Schema = []string{
	`CREATE SCHEMA IF NOT EXISTS futures`,

	`CREATE TABLE IF NOT EXISTS futures.contract_bars (
		symbol        TEXT             NOT NULL,
		root          TEXT             NOT NULL,
		trade_date    DATE             NOT NULL,
		open          DOUBLE PRECISION,
		high          DOUBLE PRECISION,
		low           DOUBLE PRECISION,
		close         DOUBLE PRECISION,
		settlement    DOUBLE PRECISION,
		last          DOUBLE PRECISION,
		volume        BIGINT,
		open_interest BIGINT,
		source        TEXT             NOT NULL,
		updated_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		PRIMARY KEY (symbol, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS contract_bars_root_date_idx ON futures.contract_bars (root, trade_date)`,

	`CREATE TABLE IF NOT EXISTS futures.build_runs (
		run_id      UUID        PRIMARY KEY,
		root        TEXT        NOT NULL,
		line        INTEGER     NOT NULL,
		start_date  DATE,
		end_date    DATE,
		n_rows      INTEGER     NOT NULL,
		diagnostics TEXT[]      NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS build_runs_root_line_idx ON futures.build_runs (root, line, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS futures.continuous_bars (
		run_id        UUID             NOT NULL REFERENCES futures.build_runs (run_id) ON DELETE CASCADE,
		trade_date    DATE             NOT NULL,
		line          INTEGER          NOT NULL,
		source_symbol TEXT             NOT NULL,
		symbol        TEXT             NOT NULL,
		open          DOUBLE PRECISION,
		high          DOUBLE PRECISION,
		low           DOUBLE PRECISION,
		close         DOUBLE PRECISION,
		settlement    DOUBLE PRECISION,
		last          DOUBLE PRECISION,
		volume        BIGINT,
		open_interest BIGINT,
		PRIMARY KEY (run_id, trade_date)
	)`,

	`CREATE TABLE IF NOT EXISTS futures.segments (
		run_id        UUID    NOT NULL REFERENCES futures.build_runs (run_id) ON DELETE CASCADE,
		segment_start DATE    NOT NULL,
		segment_end   DATE    NOT NULL,
		line          INTEGER NOT NULL,
		source_symbol TEXT    NOT NULL,
		n_rows        INTEGER NOT NULL,
		PRIMARY KEY (run_id, segment_start)
	)`,
}
