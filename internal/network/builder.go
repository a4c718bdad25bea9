package network

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passbi/connscan/internal/models"
)

const batchSize = 1000 // batch insert size

// Builder writes the connections of a service date to PostgreSQL
type Builder struct {
	db *pgxpool.Pool
}

// NewBuilder creates a new builder
func NewBuilder(db *pgxpool.Pool) *Builder {
	return &Builder{db: db}
}

// WriteConnections replaces the connections stored for the service date of
// day. Stops are upserted, including any only named by a connection. It
// returns the number of stops and connections written.
func (b *Builder) WriteConnections(ctx context.Context, day time.Time, stops []models.Stop, connections []models.Connection) (int, int, error) {
	date := day.Format("2006-01-02")
	log.Printf("Writing %d connections for %s...", len(connections), date)

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM connection WHERE service_date = $1`, date)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clear service date: %w", err)
	}
	if tag.RowsAffected() > 0 {
		log.Printf("  Removed %d previous connections", tag.RowsAffected())
	}

	allStops := collectStops(stops, connections)
	batch := &pgx.Batch{}
	for _, s := range allStops {
		batch.Queue(`
			INSERT INTO stop (stop_id, name)
			VALUES ($1, $2)
			ON CONFLICT (stop_id) DO UPDATE SET name = EXCLUDED.name
			WHERE EXCLUDED.name <> ''
		`, s.ID, s.Name)

		if batch.Len() >= batchSize {
			if err := executeBatch(ctx, tx, batch); err != nil {
				return 0, 0, fmt.Errorf("failed to write stops: %w", err)
			}
			batch = &pgx.Batch{}
		}
	}
	if err := executeBatch(ctx, tx, batch); err != nil {
		return 0, 0, fmt.Errorf("failed to write stops: %w", err)
	}
	log.Printf("  Wrote %d stops", len(allStops))

	batch = &pgx.Batch{}
	for _, c := range connections {
		mode := c.Service.Mode
		if mode == "" {
			mode = models.ModeBus
		}
		batch.Queue(`
			INSERT INTO connection (service_date, departure_stop, departure_time,
			                        arrival_stop, arrival_time, service_id, service_name, mode)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, date, c.DepartureStop.ID, c.DepartureTime, c.ArrivalStop.ID, c.ArrivalTime,
			c.Service.ID, c.Service.Name, string(mode))

		if batch.Len() >= batchSize {
			if err := executeBatch(ctx, tx, batch); err != nil {
				return 0, 0, fmt.Errorf("failed to write connections: %w", err)
			}
			batch = &pgx.Batch{}
		}
	}
	if err := executeBatch(ctx, tx, batch); err != nil {
		return 0, 0, fmt.Errorf("failed to write connections: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit: %w", err)
	}
	log.Printf("  Wrote %d connections", len(connections))

	// Analyze tables for query optimization
	if err := b.analyze(ctx); err != nil {
		log.Printf("Warning: failed to analyze tables: %v", err)
	}

	return len(allStops), len(connections), nil
}

// collectStops returns stops followed by every stop only named by a
// connection, each id once. The first non-empty name wins.
func collectStops(stops []models.Stop, connections []models.Connection) []models.Stop {
	index := make(map[string]int)
	var out []models.Stop

	add := func(s models.Stop) {
		if i, ok := index[s.ID]; ok {
			if out[i].Name == "" {
				out[i].Name = s.Name
			}
			return
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}

	for _, s := range stops {
		add(s)
	}
	for _, c := range connections {
		add(c.DepartureStop)
		add(c.ArrivalStop)
	}
	return out
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// executeBatch executes a batch of queries
func executeBatch(ctx context.Context, db batchSender, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	results := db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch execution failed at query %d: %w", i, err)
		}
	}

	return nil
}

// analyze runs ANALYZE on the tables read by LoadFromDB
func (b *Builder) analyze(ctx context.Context) error {
	for _, table := range []string{"stop", "connection"} {
		if _, err := b.db.Exec(ctx, fmt.Sprintf("ANALYZE %s", table)); err != nil {
			return err
		}
		log.Printf("Analyzed table: %s", table)
	}
	return nil
}
