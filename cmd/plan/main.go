package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/network"
	"github.com/passbi/connscan/internal/routing"
)

func main() {
	timetablePath := flag.String("timetable", "", "Path to a JSON timetable")
	gtfsPath := flag.String("gtfs", "", "Path to a GTFS ZIP file")
	date := flag.String("date", "", "GTFS service date YYYY-MM-DD (default: the departure date)")
	timezone := flag.String("timezone", "UTC", "Timezone GTFS stop times are expressed in")
	from := flag.String("from", "", "Source stop ID (required)")
	to := flag.String("to", "", "Target stop ID (required)")
	departure := flag.String("departure", "", "Departure time, RFC3339 (default: now)")
	priority := flag.String("priority", "", "earliest_arrival, least_transfers or least_average_transfer_time (default: all)")
	minTransfer := flag.Duration("min-transfer", routing.DefaultMinimumTransferTime, "Minimum transfer time")
	asJSON := flag.Bool("json", false, "Print journeys as JSON")

	flag.Parse()

	if *from == "" || *to == "" || (*timetablePath == "") == (*gtfsPath == "") {
		fmt.Println("Usage: connscan-plan (--timetable=<file.json> | --gtfs=<path.zip>) --from=<stop> --to=<stop> [--departure=RFC3339] [--priority=NAME]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *minTransfer < 0 {
		log.Fatalf("Invalid minimum transfer time: %v", *minTransfer)
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", *timezone, err)
	}

	at := time.Now()
	if *departure != "" {
		if at, err = time.Parse(time.RFC3339, *departure); err != nil {
			log.Fatalf("Invalid departure: %v", err)
		}
	}

	priorities := models.AllPriorities()
	if *priority != "" {
		p, err := models.ParsePriority(*priority)
		if err != nil {
			log.Fatalf("Invalid priority: %v", err)
		}
		priorities = []models.Priority{p}
	}

	net := network.New(*minTransfer)
	if *timetablePath != "" {
		err = net.LoadFromJSON(*timetablePath)
	} else {
		var day time.Time
		if day, err = serviceDay(*date, at, loc); err == nil {
			err = net.LoadFromGTFS(*gtfsPath, day, loc, 0)
		}
	}
	if err != nil {
		log.Fatalf("Failed to load timetable: %v", err)
	}

	results := make(map[string]*models.JourneyResult)
	for _, p := range priorities {
		journey, err := net.Plan(p, *from, *to, at)
		if err != nil {
			log.Fatalf("Planning failed: %v", err)
		}
		if len(journey) > 0 {
			results[p.String()] = routing.Result(p, journey)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			log.Fatalf("Failed to encode journeys: %v", err)
		}
	} else {
		for _, p := range priorities {
			printJourney(p, results[p.String()], loc)
		}
	}

	if len(results) == 0 {
		os.Exit(2)
	}
}

func serviceDay(value string, at time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		y, m, d := at.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	return time.ParseInLocation("2006-01-02", value, loc)
}

func printJourney(p models.Priority, j *models.JourneyResult, loc *time.Location) {
	fmt.Printf("== %s\n", p)
	if j == nil {
		fmt.Println("   no journey found")
		return
	}

	fmt.Printf("   %s → %s  (%s, %d transfers, avg wait %s)\n",
		j.DepartureTime.In(loc).Format("15:04"), j.ArrivalTime.In(loc).Format("15:04"),
		time.Duration(j.DurationSeconds)*time.Second, j.Transfers,
		time.Duration(j.AverageTransferWaitMs)*time.Millisecond)

	for _, leg := range j.Legs {
		name := leg.Service.Name
		if name == "" {
			name = leg.Service.ID
		}
		fmt.Printf("   %s %-12s %s → %s %s (%d stops)\n",
			leg.DepartureTime.In(loc).Format("15:04"), name,
			stopLabel(leg.From), stopLabel(leg.To),
			leg.ArrivalTime.In(loc).Format("15:04"), leg.NumStops)
	}
}

func stopLabel(s models.Stop) string {
	if s.Name == "" {
		return s.ID
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.ID)
}
