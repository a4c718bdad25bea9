// Package timetable holds an immutable, time-ordered connection set with
// integer-indexed stops and services, a lazily built departure index and a
// binary-search start locator.
package timetable

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/passbi/connscan/internal/models"
)

var (
	// ErrNoConnections is returned when a timetable would be empty
	ErrNoConnections = errors.New("no connections")
	// ErrInvalidConnection is returned for connections with missing ids or
	// an arrival before their departure
	ErrInvalidConnection = errors.New("invalid connection")
)

// NoIndex marks an absent stop, service or connection index
const NoIndex int32 = -1

// Conn is the flat form of a connection used by the scan loop.
// Times are Unix milliseconds.
type Conn struct {
	From      int32
	To        int32
	Departure int64
	Arrival   int64
	Service   int32
}

// Timetable is an immutable connection set. It is safe for concurrent
// readers; the departure index is built once on first use.
type Timetable struct {
	stops        []models.Stop
	stopIndex    map[string]int32
	services     []models.Service
	serviceIndex map[string]int32

	conns  []Conn
	source []models.Connection

	departuresOnce sync.Once
	departures     [][]int32
}

// New builds a timetable from connections already sorted ascending by
// departure time. The order is trusted, not verified.
//
// stops may be nil, in which case the stop universe is derived from the
// connections. Stops referenced by a connection but missing from stops are
// appended.
func New(connections []models.Connection, stops []models.Stop) (*Timetable, error) {
	if len(connections) == 0 {
		return nil, ErrNoConnections
	}

	t := &Timetable{
		stopIndex:    make(map[string]int32, len(stops)),
		serviceIndex: make(map[string]int32),
		conns:        make([]Conn, len(connections)),
		source:       connections,
	}

	for _, s := range stops {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: stop with empty id", ErrInvalidConnection)
		}
		t.addStop(s)
	}

	for i, c := range connections {
		if c.DepartureStop.ID == "" || c.ArrivalStop.ID == "" || c.Service.ID == "" {
			return nil, fmt.Errorf("%w: connection %d has an empty stop or service id", ErrInvalidConnection, i)
		}
		if c.ArrivalTime.Before(c.DepartureTime) {
			return nil, fmt.Errorf("%w: connection %d arrives before it departs", ErrInvalidConnection, i)
		}

		t.conns[i] = Conn{
			From:      t.addStop(c.DepartureStop),
			To:        t.addStop(c.ArrivalStop),
			Departure: c.DepartureTime.UnixMilli(),
			Arrival:   c.ArrivalTime.UnixMilli(),
			Service:   t.addService(c.Service),
		}
	}

	return t, nil
}

func (t *Timetable) addStop(s models.Stop) int32 {
	if idx, ok := t.stopIndex[s.ID]; ok {
		if t.stops[idx].Name == "" && s.Name != "" {
			t.stops[idx].Name = s.Name
		}
		return idx
	}
	idx := int32(len(t.stops))
	t.stops = append(t.stops, s)
	t.stopIndex[s.ID] = idx
	return idx
}

func (t *Timetable) addService(s models.Service) int32 {
	if idx, ok := t.serviceIndex[s.ID]; ok {
		return idx
	}
	idx := int32(len(t.services))
	t.services = append(t.services, s)
	t.serviceIndex[s.ID] = idx
	return idx
}

// NumStops returns the size of the stop universe
func (t *Timetable) NumStops() int { return len(t.stops) }

// NumConnections returns the number of connections
func (t *Timetable) NumConnections() int { return len(t.conns) }

// NumServices returns the number of distinct services
func (t *Timetable) NumServices() int { return len(t.services) }

// StopIndex resolves a stop id to its index
func (t *Timetable) StopIndex(id string) (int32, bool) {
	idx, ok := t.stopIndex[id]
	return idx, ok
}

// Stop returns the stop at idx
func (t *Timetable) Stop(idx int32) models.Stop { return t.stops[idx] }

// Stops returns a copy of the stop universe in index order
func (t *Timetable) Stops() []models.Stop {
	out := make([]models.Stop, len(t.stops))
	copy(out, t.stops)
	return out
}

// Conn returns the flat connection at idx
func (t *Timetable) Conn(idx int32) *Conn { return &t.conns[idx] }

// Connection returns the original connection record at idx
func (t *Timetable) Connection(idx int32) models.Connection { return t.source[idx] }

// StartIndex returns the leftmost connection index whose departure is at or
// after at (Unix milliseconds). It returns NumConnections when none is.
func (t *Timetable) StartIndex(at int64) int {
	return sort.Search(len(t.conns), func(i int) bool {
		return t.conns[i].Departure >= at
	})
}

// Departures returns the indexes of connections departing stop, in
// timetable order. The slice must not be modified.
func (t *Timetable) Departures(stop int32) []int32 {
	t.departuresOnce.Do(t.buildDepartures)
	return t.departures[stop]
}

func (t *Timetable) buildDepartures() {
	counts := make([]int, len(t.stops))
	for i := range t.conns {
		counts[t.conns[i].From]++
	}

	t.departures = make([][]int32, len(t.stops))
	for s, n := range counts {
		if n > 0 {
			t.departures[s] = make([]int32, 0, n)
		}
	}
	for i := range t.conns {
		from := t.conns[i].From
		t.departures[from] = append(t.departures[from], int32(i))
	}
}

// DeparturesAfter returns up to limit connections leaving stop at or after
// at (Unix milliseconds). A limit <= 0 means no limit.
func (t *Timetable) DeparturesAfter(stop int32, at int64, limit int) []models.Connection {
	deps := t.Departures(stop)
	start := sort.Search(len(deps), func(i int) bool {
		return t.conns[deps[i]].Departure >= at
	})

	var out []models.Connection
	for _, idx := range deps[start:] {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, t.source[idx])
	}
	return out
}
