package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passbi/connscan/internal/config"
	"github.com/passbi/connscan/internal/db"
	"github.com/passbi/connscan/internal/gtfs"
	"github.com/passbi/connscan/internal/network"
)

func main() {
	// Command-line flags
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file (optional)")
	agencyID := flag.String("agency-id", "", "Agency ID for this GTFS feed (default: the feed's first agency)")
	gtfsPath := flag.String("gtfs", "", "Path to GTFS ZIP file (required)")
	date := flag.String("date", "", "Service date YYYY-MM-DD (default: today in -timezone)")
	timezone := flag.String("timezone", "UTC", "Timezone stop times are expressed in")
	days := flag.Int("days", 1, "Number of consecutive service dates to import")
	dedupeThreshold := flag.Float64("dedupe-threshold", 30.0, "Stop merge threshold in meters (0 disables)")

	flag.Parse()

	// Validate required flags
	if *gtfsPath == "" || *days < 1 {
		fmt.Println("Usage: connscan-import --gtfs=<path.zip> [--agency-id=<id>] [--date=YYYY-MM-DD] [--timezone=UTC] [--days=1] [--dedupe-threshold=30]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Validate file exists
	if _, err := os.Stat(*gtfsPath); os.IsNotExist(err) {
		log.Fatalf("GTFS file not found: %s", *gtfsPath)
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", *timezone, err)
	}

	first, err := serviceDate(*date, loc)
	if err != nil {
		log.Fatalf("Invalid date: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("Starting GTFS import...")
	log.Printf("GTFS file: %s", *gtfsPath)

	// Parse GTFS feed
	log.Println("Step 1/3: Parsing GTFS feed...")
	feed, err := gtfs.ParseGTFSZip(*gtfsPath)
	if err != nil {
		log.Fatalf("Failed to parse GTFS: %v", err)
	}

	if *agencyID == "" {
		*agencyID = feed.AgencyID()
	}
	if *agencyID == "" {
		log.Fatal("Feed has no agency.txt; pass --agency-id")
	}
	log.Printf("Agency ID: %s", *agencyID)

	ctx := context.Background()

	// Initialize database connection
	pool, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to prepare schema: %v", err)
	}

	// Validate, clean and merge stops
	log.Println("Step 2/3: Validating and merging stops...")
	gtfs.Clean(feed, *dedupeThreshold)

	log.Println("Step 3/3: Writing connections...")
	builder := network.NewBuilder(pool)
	failed := 0
	for i := 0; i < *days; i++ {
		day := first.AddDate(0, 0, i)
		if err := importDay(ctx, pool, builder, feed, *agencyID, day, loc); err != nil {
			log.Printf("Import of %s failed: %v", day.Format("2006-01-02"), err)
			failed++
		}
	}

	if failed > 0 {
		log.Fatalf("Import failed for %d of %d service dates", failed, *days)
	}
	log.Println("Import completed successfully!")
}

// importDay writes the connections of one service date and records the
// outcome in import_log
func importDay(ctx context.Context, pool *pgxpool.Pool, builder *network.Builder, feed *gtfs.GTFSFeed, agencyID string, day time.Time, loc *time.Location) error {
	startTime := time.Now()

	logID, err := db.CreateImportLog(ctx, pool, agencyID, day)
	if err != nil {
		return err
	}

	stopsCount, connectionsCount, err := writeDay(ctx, builder, feed, day, loc)
	if logErr := db.FinishImportLog(ctx, pool, logID, stopsCount, connectionsCount, err); logErr != nil {
		log.Printf("Warning: %v", logErr)
	}
	if err != nil {
		return err
	}

	log.Printf("Imported %s in %v: %d stops, %d connections",
		day.Format("2006-01-02"), time.Since(startTime), stopsCount, connectionsCount)
	return nil
}

func writeDay(ctx context.Context, builder *network.Builder, feed *gtfs.GTFSFeed, day time.Time, loc *time.Location) (int, int, error) {
	connections, stops, err := gtfs.BuildConnections(feed, day, loc)
	if err != nil {
		return 0, 0, err
	}
	return builder.WriteConnections(ctx, day, stops, connections)
}

// serviceDate parses value as YYYY-MM-DD in loc, defaulting to today there
func serviceDate(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		y, m, d := time.Now().In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	return time.ParseInLocation("2006-01-02", value, loc)
}
