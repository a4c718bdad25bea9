package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// tables are the tables schema creates, checked by Check
var tables = []string{"stop", "connection", "import_log"}

// schema is applied by EnsureSchema. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stop (
		stop_id TEXT PRIMARY KEY,
		name    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS connection (
		id             BIGSERIAL PRIMARY KEY,
		service_date   DATE        NOT NULL,
		departure_stop TEXT        NOT NULL REFERENCES stop (stop_id),
		departure_time TIMESTAMPTZ NOT NULL,
		arrival_stop   TEXT        NOT NULL REFERENCES stop (stop_id),
		arrival_time   TIMESTAMPTZ NOT NULL,
		service_id     TEXT        NOT NULL,
		service_name   TEXT        NOT NULL DEFAULT '',
		mode           TEXT        NOT NULL DEFAULT 'BUS',
		CHECK (arrival_time >= departure_time)
	)`,
	`CREATE INDEX IF NOT EXISTS connection_date_departure_idx
		ON connection (service_date, departure_time, id)`,
	`CREATE TABLE IF NOT EXISTS import_log (
		id                BIGSERIAL PRIMARY KEY,
		agency_id         TEXT        NOT NULL DEFAULT '',
		service_date      DATE        NOT NULL,
		started_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at      TIMESTAMPTZ,
		status            TEXT        NOT NULL,
		stops_count       INT         NOT NULL DEFAULT 0,
		connections_count INT         NOT NULL DEFAULT 0,
		error_msg         TEXT        NOT NULL DEFAULT ''
	)`,
}

// EnsureSchema creates the tables used by the importer and the planner
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
