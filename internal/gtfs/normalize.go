package gtfs

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/passbi/connscan/internal/models"
)

// InferMode determines the transit mode from a GTFS route
// Priority: keyword matching, then route_type field, default to BUS
func InferMode(route models.GTFSRoute) models.TransitMode {
	routeName := strings.ToUpper(route.ShortName + " " + route.LongName)

	if strings.Contains(routeName, "BRT") || strings.Contains(routeName, "RAPID") {
		return models.ModeBRT
	}
	if strings.Contains(routeName, "TER") || strings.Contains(routeName, "TRAIN") || strings.Contains(routeName, "RAIL") {
		return models.ModeTER
	}
	if strings.Contains(routeName, "FERRY") || strings.Contains(routeName, "BOAT") {
		return models.ModeFerry
	}
	if strings.Contains(routeName, "TRAM") {
		return models.ModeTram
	}

	// https://developers.google.com/transit/gtfs/reference#routestxt
	switch route.RouteType {
	case 0, 5, 6, 7: // Tram, cable tram, aerial lift, funicular
		return models.ModeTram
	case 1: // Subway, Metro
		return models.ModeBRT
	case 2: // Rail
		return models.ModeTER
	case 4: // Ferry
		return models.ModeFerry
	}

	return models.ModeBus
}

// RouteName returns the display name of a route
func RouteName(route models.GTFSRoute) string {
	switch {
	case route.ShortName != "":
		return route.ShortName
	case route.LongName != "":
		return route.LongName
	default:
		return route.RouteID
	}
}

// MergeNearbyStops collapses stops closer than thresholdMeters into the first
// of them, so changing between them counts as a same-stop transfer.
// It returns the kept stops and a mapping from every stop ID to its kept ID.
func MergeNearbyStops(stops []models.GTFSStop, thresholdMeters float64) ([]models.GTFSStop, map[string]string) {
	mapping := make(map[string]string, len(stops))
	if thresholdMeters <= 0 {
		for _, s := range stops {
			mapping[s.StopID] = s.StopID
		}
		return stops, mapping
	}

	kept := []models.GTFSStop{}
	merged := make([]bool, len(stops))

	for i := range stops {
		if merged[i] {
			continue
		}
		current := stops[i]
		kept = append(kept, current)
		mapping[current.StopID] = current.StopID

		for j := i + 1; j < len(stops); j++ {
			if merged[j] {
				continue
			}
			distance := haversineDistance(current.Lat, current.Lon, stops[j].Lat, stops[j].Lon)
			if distance < thresholdMeters {
				merged[j] = true
				mapping[stops[j].StopID] = current.StopID
			}
		}
	}

	if len(kept) < len(stops) {
		log.Printf("Merged %d stops into %d (threshold %.0fm)", len(stops), len(kept), thresholdMeters)
	}
	return kept, mapping
}

// RemapStopTimes rewrites stop IDs of stop times through mapping.
// Unmapped IDs are kept as they are.
func RemapStopTimes(stopTimes []models.GTFSStopTime, mapping map[string]string) {
	for i := range stopTimes {
		if kept, ok := mapping[stopTimes[i].StopID]; ok {
			stopTimes[i].StopID = kept
		}
	}
}

// haversineDistance calculates the distance between two points in meters
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000 // meters

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// ParseTimeToSeconds converts GTFS time format (HH:MM:SS) to seconds
// Handles times >= 24:00:00 (next day service)
func ParseTimeToSeconds(timeStr string) (int, error) {
	if timeStr == "" {
		return 0, fmt.Errorf("empty time string")
	}

	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time format: %s", timeStr)
		}
		fields[i] = n
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}

// InterpolateStopTimes fills in missing arrival/departure times of each trip.
// Stops before the first timed stop take its times, stops after the last
// take the last, and stops in between take the previous timed departure.
// Trips come back grouped and ordered by stop sequence.
func InterpolateStopTimes(stopTimes []models.GTFSStopTime) []models.GTFSStopTime {
	if len(stopTimes) == 0 {
		return stopTimes
	}

	tripGroups := make(map[string][]models.GTFSStopTime)
	var tripOrder []string
	for _, st := range stopTimes {
		if _, seen := tripGroups[st.TripID]; !seen {
			tripOrder = append(tripOrder, st.TripID)
		}
		tripGroups[st.TripID] = append(tripGroups[st.TripID], st)
	}

	interpolated := make([]models.GTFSStopTime, 0, len(stopTimes))

	for _, tripID := range tripOrder {
		times := tripGroups[tripID]
		sort.SliceStable(times, func(i, j int) bool {
			return times[i].StopSequence < times[j].StopSequence
		})

		// a stop with only one of its times set gets the other
		for i := range times {
			if times[i].ArrivalTime == "" {
				times[i].ArrivalTime = times[i].DepartureTime
			}
			if times[i].DepartureTime == "" {
				times[i].DepartureTime = times[i].ArrivalTime
			}
		}

		firstValid, lastValid := -1, -1
		for i, st := range times {
			if st.ArrivalTime != "" {
				if firstValid == -1 {
					firstValid = i
				}
				lastValid = i
			}
		}

		if firstValid == -1 {
			log.Printf("Warning: trip %s has no valid times, skipping interpolation", tripID)
			interpolated = append(interpolated, times...)
			continue
		}

		prevValid := firstValid
		for i := range times {
			switch {
			case times[i].ArrivalTime != "":
				prevValid = i
			case i < firstValid:
				times[i].ArrivalTime = times[firstValid].ArrivalTime
				times[i].DepartureTime = times[firstValid].ArrivalTime
			case i > lastValid:
				times[i].ArrivalTime = times[lastValid].DepartureTime
				times[i].DepartureTime = times[lastValid].DepartureTime
			default:
				times[i].ArrivalTime = times[prevValid].DepartureTime
				times[i].DepartureTime = times[prevValid].DepartureTime
			}
			interpolated = append(interpolated, times[i])
		}
	}

	return interpolated
}

// ValidateAndCleanStops removes stops with invalid coordinates
func ValidateAndCleanStops(stops []models.GTFSStop) []models.GTFSStop {
	cleaned := []models.GTFSStop{}

	for _, stop := range stops {
		if stop.Lat < -90 || stop.Lat > 90 {
			log.Printf("Warning: invalid latitude for stop %s: %f", stop.StopID, stop.Lat)
			continue
		}
		if stop.Lon < -180 || stop.Lon > 180 {
			log.Printf("Warning: invalid longitude for stop %s: %f", stop.StopID, stop.Lon)
			continue
		}
		if stop.Lat == 0 && stop.Lon == 0 {
			log.Printf("Warning: stop %s has null island coordinates, skipping", stop.StopID)
			continue
		}

		cleaned = append(cleaned, stop)
	}

	if len(cleaned) < len(stops) {
		log.Printf("Cleaned stops: removed %d invalid stops", len(stops)-len(cleaned))
	}

	return cleaned
}

// Clean drops stops with invalid coordinates and, when mergeMeters is
// positive, merges stops closer than that, rewriting stop times to match.
func Clean(feed *GTFSFeed, mergeMeters float64) {
	stops := ValidateAndCleanStops(feed.Stops)
	stops, mapping := MergeNearbyStops(stops, mergeMeters)
	RemapStopTimes(feed.StopTimes, mapping)
	feed.Stops = stops
}
