package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passbi/connscan/internal/models"
)

// Import statuses
const (
	ImportRunning = "running"
	ImportSuccess = "success"
	ImportFailed  = "failed"
)

// CreateImportLog records the start of an import and returns its id
func CreateImportLog(ctx context.Context, pool *pgxpool.Pool, agencyID string, day time.Time) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO import_log (agency_id, service_date, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`, agencyID, day.Format("2006-01-02"), ImportRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create import log: %w", err)
	}
	return id, nil
}

// FinishImportLog records the outcome of import id. A nil importErr marks it
// successful.
func FinishImportLog(ctx context.Context, pool *pgxpool.Pool, id int64, stops, connections int, importErr error) error {
	status, msg := ImportSuccess, ""
	if importErr != nil {
		status, msg = ImportFailed, importErr.Error()
	}

	_, err := pool.Exec(ctx, `
		UPDATE import_log
		SET completed_at = NOW(),
		    status = $2,
		    stops_count = $3,
		    connections_count = $4,
		    error_msg = $5
		WHERE id = $1
	`, id, status, stops, connections, msg)
	if err != nil {
		return fmt.Errorf("failed to update import log: %w", err)
	}
	return nil
}

// LatestImport returns the most recent successful import, or nil if none
func LatestImport(ctx context.Context, pool *pgxpool.Pool) (*models.ImportLog, error) {
	var l models.ImportLog
	err := pool.QueryRow(ctx, `
		SELECT id, agency_id, service_date, started_at, completed_at, status,
		       stops_count, connections_count, error_msg
		FROM import_log
		WHERE status = $1
		ORDER BY completed_at DESC
		LIMIT 1
	`, ImportSuccess).Scan(&l.ID, &l.AgencyID, &l.ServiceDate, &l.StartedAt, &l.CompletedAt, &l.Status,
		&l.StopsCount, &l.ConnectionsCount, &l.ErrorMsg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read import log: %w", err)
	}
	return &l, nil
}
