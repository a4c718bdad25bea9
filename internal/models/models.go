package models

import "time"

// TransitMode represents the type of transit service
type TransitMode string

const (
	ModeBus   TransitMode = "BUS"
	ModeBRT   TransitMode = "BRT"
	ModeTER   TransitMode = "TER"
	ModeFerry TransitMode = "FERRY"
	ModeTram  TransitMode = "TRAM"
)

// Stop is a place where connections depart and arrive.
// Identity is by ID only; Name is informational.
type Stop struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Service is a single vehicle run. Two connections with the same service ID
// are the same physical ride and never require a transfer between them.
type Service struct {
	ID   string      `json:"id"`
	Name string      `json:"name,omitempty"`
	Mode TransitMode `json:"mode,omitempty"`
}

// Connection is one atomic hop: board at DepartureStop at DepartureTime,
// alight at ArrivalStop at ArrivalTime, riding Service.
type Connection struct {
	DepartureStop Stop      `json:"departureStop"`
	DepartureTime time.Time `json:"departureTime"`
	ArrivalStop   Stop      `json:"arrivalStop"`
	ArrivalTime   time.Time `json:"arrivalTime"`
	Service       Service   `json:"service"`
}

// Duration returns the in-vehicle time of the connection
func (c Connection) Duration() time.Duration {
	return c.ArrivalTime.Sub(c.DepartureTime)
}

// Leg is a run of consecutive connections on the same service
type Leg struct {
	Service       Service   `json:"service"`
	From          Stop      `json:"from"`
	To            Stop      `json:"to"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
	Duration      int       `json:"duration_seconds"`
	NumStops      int       `json:"num_stops"`
	Stops         []Stop    `json:"stops,omitempty"` // intermediate stops
}

// JourneyResult is the API representation of a computed journey
type JourneyResult struct {
	Priority              string       `json:"priority"`
	DepartureTime         time.Time    `json:"departure_time"`
	ArrivalTime           time.Time    `json:"arrival_time"`
	DurationSeconds       int          `json:"duration_seconds"`
	Transfers             int          `json:"transfers"`
	AverageTransferWaitMs int64        `json:"average_transfer_wait_ms"`
	Legs                  []Leg        `json:"legs"`
	Connections           []Connection `json:"connections"`
}

// GTFS data structures for import

// GTFSAgency represents an agency from agency.txt
type GTFSAgency struct {
	AgencyID   string
	AgencyName string
	AgencyURL  string
	Timezone   string
}

// GTFSStop represents a stop from stops.txt
type GTFSStop struct {
	StopID   string
	StopName string
	Lat      float64
	Lon      float64
}

// GTFSRoute represents a route from routes.txt
type GTFSRoute struct {
	RouteID    string
	AgencyID   string
	ShortName  string
	LongName   string
	RouteType  int
	RouteColor string
}

// GTFSTrip represents a trip from trips.txt
type GTFSTrip struct {
	RouteID   string
	ServiceID string
	TripID    string
	Headsign  string
	Direction int
}

// GTFSStopTime represents a stop time from stop_times.txt
type GTFSStopTime struct {
	TripID        string
	ArrivalTime   string
	DepartureTime string
	StopID        string
	StopSequence  int
}

// GTFSCalendar represents a row of calendar.txt.
// Weekdays is indexed by time.Weekday (Sunday = 0).
type GTFSCalendar struct {
	ServiceID string
	Weekdays  [7]bool
	StartDate time.Time
	EndDate   time.Time
}

// GTFSCalendarDate represents a row of calendar_dates.txt
type GTFSCalendarDate struct {
	ServiceID     string
	Date          time.Time
	ExceptionType int // 1 = added, 2 = removed
}

// ImportLog represents a GTFS import operation log
type ImportLog struct {
	ID               int64      `json:"id"`
	AgencyID         string     `json:"agency_id"`
	ServiceDate      time.Time  `json:"service_date"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Status           string     `json:"status"`
	StopsCount       int        `json:"stops_count"`
	ConnectionsCount int        `json:"connections_count"`
	ErrorMsg         string     `json:"error_msg,omitempty"`
}
