package gtfs

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/passbi/connscan/internal/models"
)

// ActiveServices returns the service IDs running on date (its year, month
// and day; the time of day is ignored). calendar.txt rows apply on their
// weekdays within their date range, then calendar_dates.txt adds
// (exception_type 1) or removes (2) services. A nil map means the feed has
// no calendar at all and every service is considered active.
func ActiveServices(feed *GTFSFeed, date time.Time) map[string]bool {
	if len(feed.Calendars) == 0 && len(feed.CalendarDates) == 0 {
		return nil
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	active := make(map[string]bool)

	for _, c := range feed.Calendars {
		if day.Before(c.StartDate) || day.After(c.EndDate) {
			continue
		}
		if c.Weekdays[day.Weekday()] {
			active[c.ServiceID] = true
		}
	}

	for _, d := range feed.CalendarDates {
		if !d.Date.Equal(day) {
			continue
		}
		switch d.ExceptionType {
		case 1:
			active[d.ServiceID] = true
		case 2:
			delete(active, d.ServiceID)
		}
	}

	return active
}

// BuildConnections expands the trips active on date into connections, one
// per consecutive pair of stop times, sorted by departure. Stop times are
// offsets from local midnight of date in loc. Service identity is the trip:
// staying on one trip never needs a transfer.
func BuildConnections(feed *GTFSFeed, date time.Time, loc *time.Location) ([]models.Connection, []models.Stop, error) {
	if loc == nil {
		loc = time.UTC
	}
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	active := ActiveServices(feed, date)

	stops := make([]models.Stop, 0, len(feed.Stops))
	stopByID := make(map[string]models.Stop, len(feed.Stops))
	for _, s := range feed.Stops {
		stop := models.Stop{ID: s.StopID, Name: s.StopName}
		stops = append(stops, stop)
		stopByID[s.StopID] = stop
	}

	routes := make(map[string]models.GTFSRoute, len(feed.Routes))
	for _, r := range feed.Routes {
		routes[r.RouteID] = r
	}

	services := make(map[string]models.Service)
	for _, trip := range feed.Trips {
		if active != nil && !active[trip.ServiceID] {
			continue
		}
		route := routes[trip.RouteID]
		services[trip.TripID] = models.Service{
			ID:   trip.TripID,
			Name: RouteName(route),
			Mode: InferMode(route),
		}
	}

	tripStops := make(map[string][]models.GTFSStopTime)
	var tripOrder []string
	for _, st := range InterpolateStopTimes(feed.StopTimes) {
		if _, ok := services[st.TripID]; !ok {
			continue
		}
		if _, seen := tripStops[st.TripID]; !seen {
			tripOrder = append(tripOrder, st.TripID)
		}
		tripStops[st.TripID] = append(tripStops[st.TripID], st)
	}

	stopOf := func(id string) models.Stop {
		if s, ok := stopByID[id]; ok {
			return s
		}
		return models.Stop{ID: id}
	}

	var connections []models.Connection
	skipped := 0

	for _, tripID := range tripOrder {
		times := tripStops[tripID]
		for i := 0; i < len(times)-1; i++ {
			from, to := times[i], times[i+1]

			dep, err1 := ParseTimeToSeconds(from.DepartureTime)
			arr, err2 := ParseTimeToSeconds(to.ArrivalTime)
			if err1 != nil || err2 != nil || arr < dep {
				skipped++
				continue
			}

			connections = append(connections, models.Connection{
				DepartureStop: stopOf(from.StopID),
				DepartureTime: midnight.Add(time.Duration(dep) * time.Second),
				ArrivalStop:   stopOf(to.StopID),
				ArrivalTime:   midnight.Add(time.Duration(arr) * time.Second),
				Service:       services[tripID],
			})
		}
	}

	if skipped > 0 {
		log.Printf("Warning: skipped %d stop time pairs with missing or inverted times", skipped)
	}
	if len(connections) == 0 {
		return nil, nil, fmt.Errorf("no connections for service date %s", date.Format("2006-01-02"))
	}

	sort.SliceStable(connections, func(i, j int) bool {
		return connections[i].DepartureTime.Before(connections[j].DepartureTime)
	})

	log.Printf("Built %d connections from %d trips for %s", len(connections), len(tripOrder), date.Format("2006-01-02"))
	return connections, stops, nil
}
