package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passbi/connscan/internal/gtfs"
	"github.com/passbi/connscan/internal/models"
)

// TimetableFile is the JSON timetable format read by LoadFromJSON.
// Connections name their stops and services by bare id or by object.
type TimetableFile struct {
	Stops       []models.Stop       `json:"stops,omitempty"`
	Connections []models.Connection `json:"connections"`
	Sorted      bool                `json:"sorted,omitempty"`
}

// LoadFromDB loads the connections stored for the service date of day
func (n *Network) LoadFromDB(ctx context.Context, db *pgxpool.Pool, day time.Time) error {
	startTime := time.Now()
	date := day.Format("2006-01-02")
	log.Printf("Loading network for %s from database...", date)

	stopRows, err := db.Query(ctx, `
		SELECT DISTINCT s.stop_id, s.name
		FROM stop s
		JOIN connection c ON c.departure_stop = s.stop_id OR c.arrival_stop = s.stop_id
		WHERE c.service_date = $1
	`, date)
	if err != nil {
		return fmt.Errorf("failed to load stops: %w", err)
	}

	var stops []models.Stop
	for stopRows.Next() {
		var s models.Stop
		if err := stopRows.Scan(&s.ID, &s.Name); err != nil {
			log.Printf("Warning: failed to scan stop: %v", err)
			continue
		}
		stops = append(stops, s)
	}
	stopRows.Close()
	if err := stopRows.Err(); err != nil {
		return fmt.Errorf("failed to load stops: %w", err)
	}
	log.Printf("  Loaded %d stops", len(stops))

	rows, err := db.Query(ctx, `
		SELECT departure_stop, departure_time, arrival_stop, arrival_time,
		       service_id, service_name, mode
		FROM connection
		WHERE service_date = $1
		ORDER BY departure_time, id
	`, date)
	if err != nil {
		return fmt.Errorf("failed to load connections: %w", err)
	}
	defer rows.Close()

	var connections []models.Connection
	for rows.Next() {
		var c models.Connection
		var mode string
		if err := rows.Scan(&c.DepartureStop.ID, &c.DepartureTime, &c.ArrivalStop.ID, &c.ArrivalTime,
			&c.Service.ID, &c.Service.Name, &mode); err != nil {
			log.Printf("Warning: failed to scan connection: %v", err)
			continue
		}
		c.Service.Mode = models.TransitMode(mode)
		c.DepartureTime = c.DepartureTime.UTC()
		c.ArrivalTime = c.ArrivalTime.UTC()
		connections = append(connections, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load connections: %w", err)
	}
	log.Printf("  Loaded %d connections in %v", len(connections), time.Since(startTime))

	// ORDER BY departure_time already sorts them
	return n.Load(connections, stops, true)
}

// LoadFromGTFS loads the trips of a GTFS zip active on the service date of
// day. Stop times are read relative to midnight in loc.
func (n *Network) LoadFromGTFS(path string, day time.Time, loc *time.Location, mergeMeters float64) error {
	log.Printf("Loading network for %s from %s...", day.Format("2006-01-02"), path)

	feed, err := gtfs.ParseGTFSZip(path)
	if err != nil {
		return fmt.Errorf("failed to parse GTFS: %w", err)
	}
	gtfs.Clean(feed, mergeMeters)

	connections, stops, err := gtfs.BuildConnections(feed, day, loc)
	if err != nil {
		return err
	}
	return n.Load(connections, stops, true)
}

// LoadFromJSON loads a TimetableFile from path
func (n *Network) LoadFromJSON(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open timetable: %w", err)
	}
	defer f.Close()

	tf, err := ReadTimetable(f)
	if err != nil {
		return err
	}
	return n.Load(tf.Connections, tf.Stops, tf.Sorted)
}

// ReadTimetable decodes a TimetableFile
func ReadTimetable(r io.Reader) (*TimetableFile, error) {
	var tf TimetableFile
	if err := json.NewDecoder(r).Decode(&tf); err != nil {
		return nil, fmt.Errorf("failed to decode timetable: %w", err)
	}
	return &tf, nil
}
