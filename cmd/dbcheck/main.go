package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/passbi/connscan/internal/config"
	"github.com/passbi/connscan/internal/db"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	dbCfg := cfg.Database

	fmt.Println("🔗 Testing database connection...")
	fmt.Printf("   Host: %s:%d\n", dbCfg.Host, dbCfg.Port)
	fmt.Printf("   User: %s\n", dbCfg.User)
	fmt.Printf("   Database: %s\n\n", dbCfg.Name)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, dbCfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect: %v", err)
	}
	defer pool.Close()

	fmt.Println("✅ Connection successful!")
	fmt.Println()

	if err := db.Check(ctx, pool); errors.Is(err, db.ErrSchemaMissing) {
		fmt.Printf("⚠️  %v\n", err)
		fmt.Println("   → Run the importer to create the schema and load a feed")
		return
	} else if err != nil {
		log.Fatalf("❌ %v", err)
	}

	// Check PostgreSQL version
	var pgVersion string
	if err := pool.QueryRow(ctx, "SELECT version()").Scan(&pgVersion); err != nil {
		log.Printf("⚠️  Could not get PostgreSQL version: %v", err)
	} else {
		fmt.Printf("📊 PostgreSQL Version:\n   %s\n\n", pgVersion)
	}

	// Check the connection table and what it holds
	fmt.Println("📋 Checking service dates...")
	rows, err := pool.Query(ctx, `
		SELECT service_date, COUNT(*)
		FROM connection
		GROUP BY service_date
		ORDER BY service_date
	`)
	if err != nil {
		fmt.Printf("⚠️  Could not read connections: %v\n", err)
		fmt.Println("   → Run the importer to create the schema and load a feed")
		return
	}
	defer rows.Close()

	dates := 0
	for rows.Next() {
		var date time.Time
		var count int
		if err := rows.Scan(&date, &count); err != nil {
			continue
		}
		fmt.Printf("   - %s: %d connections\n", date.Format("2006-01-02"), count)
		dates++
	}
	if dates == 0 {
		fmt.Println("   (no connections found - run the importer)")
	}

	if last, err := db.LatestImport(ctx, pool); err != nil {
		log.Printf("⚠️  %v", err)
	} else if last != nil {
		fmt.Printf("\n   Last import: %s (%s, %d stops, %d connections)\n",
			last.StartedAt.Format(time.RFC3339), last.AgencyID, last.StopsCount, last.ConnectionsCount)
	}

	fmt.Println("\n✅ Connection test completed successfully!")
}
