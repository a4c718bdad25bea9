package routing

import (
	"sync"
	"time"

	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/timetable"
)

// EarliestArrivalEngine finds the journey that reaches the target first
type EarliestArrivalEngine struct {
	engineBase
	pool sync.Pool
}

func (e *EarliestArrivalEngine) Name() string {
	return models.EarliestArrival.String()
}

func (e *EarliestArrivalEngine) Priority() models.Priority {
	return models.EarliestArrival
}

func (e *EarliestArrivalEngine) Run(source models.Stop, sourceTime time.Time, target models.Stop) []models.Connection {
	src, dst, ok := e.endpoints(source, target)
	if !ok {
		return []models.Connection{}
	}

	labels := e.pool.Get().(*arrivalLabels)
	defer e.pool.Put(labels)

	at := sourceTime.UnixMilli()
	labels.reset(e.tt, src, at)

	journey := []models.Connection{}
	if e.scan(labels, at, dst) {
		journey = extractJourney(e.tt, labels, dst)
	}

	labels.clear()
	return journey
}

// scan sweeps connections from the first one departing at or after at and
// reports whether target was reached.
func (e *EarliestArrivalEngine) scan(l *arrivalLabels, at int64, target int32) bool {
	best := infinity
	reached := false

	n := e.tt.NumConnections()
	for i := e.tt.StartIndex(at); i < n; i++ {
		idx := int32(i)
		c := e.tt.Conn(idx)

		// connections are time ordered: nothing later can beat best
		if c.Departure > best {
			break
		}

		prev, ok := e.board(l, c)
		if !ok {
			continue
		}
		l.ride(c, idx, prev)

		if c.To == target {
			reached = true
			if c.Arrival < best {
				best = c.Arrival
			}
		}

		if c.Arrival < l.arrival[c.To] {
			l.improve(c, idx)
			if e.relaxOnward(l, c, idx, target, &best) {
				reached = true
			}
		}
	}

	return reached
}

// board decides whether c can be caught and returns the connection ridden
// just before it. Boarding at the stop is preferred; staying on the same
// vehicle covers the case where the stop's label came from another service
// arriving too late to transfer.
func (e *EarliestArrivalEngine) board(l *arrivalLabels, c *timetable.Conn) (int32, bool) {
	if l.arrival[c.From] <= c.Departure {
		prev := l.arrivedBy[c.From]
		if e.canBoard(prev, c) {
			return prev, true
		}
	}
	return l.riding(e.tt, c)
}

// canBoard applies the minimum transfer time when c continues on a
// different service than prev, the connection that reached c's departure stop.
func (e *EarliestArrivalEngine) canBoard(prev int32, c *timetable.Conn) bool {
	if prev == timetable.NoIndex {
		return true
	}
	p := e.tt.Conn(prev)
	if p.Service == c.Service {
		return true
	}
	return p.Arrival+e.minTransfer <= c.Departure
}

// relaxOnward pushes the improvement made by connection idx one hop further,
// through the connections leaving its arrival stop that can be caught
// from it. It tightens best when the target is reached and reports whether
// that happened.
func (e *EarliestArrivalEngine) relaxOnward(l *arrivalLabels, c *timetable.Conn, idx, target int32, best *int64) bool {
	reached := false
	for _, j := range e.tt.Departures(c.To) {
		next := e.tt.Conn(j)
		if next.Departure < c.Arrival {
			continue
		}
		if next.Service != c.Service && c.Arrival+e.minTransfer > next.Departure {
			continue
		}
		if next.Arrival < l.arrival[next.To] {
			l.parent[j] = idx
			l.improve(next, j)
			if next.To == target {
				reached = true
				if next.Arrival < *best {
					*best = next.Arrival
				}
			}
		}
	}
	return reached
}
