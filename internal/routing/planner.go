package routing

import (
	"fmt"
	"sort"
	"time"

	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/timetable"
)

// Options configures a planner built by New
type Options struct {
	Connections []models.Connection
	// Stops is the stop universe. When nil it is derived from Connections.
	Stops    []models.Stop
	Priority models.Priority
	// Sorted asserts Connections are already ascending by departure time.
	// The order is then trusted as given.
	Sorted bool
	// MinimumTransferTime defaults to DefaultMinimumTransferTime when nil.
	// Zero allows changing services the moment a vehicle arrives.
	MinimumTransferTime *time.Duration
}

// New validates opts, builds the timetable and returns the engine for
// opts.Priority. Configuration errors surface here, never from Run.
func New(opts Options) (Engine, error) {
	if !opts.Priority.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPriority, opts.Priority)
	}
	minTransfer := DefaultMinimumTransferTime
	if opts.MinimumTransferTime != nil {
		minTransfer = *opts.MinimumTransferTime
	}
	if minTransfer < 0 {
		return nil, ErrInvalidTransferTime
	}
	if len(opts.Connections) == 0 {
		return nil, timetable.ErrNoConnections
	}

	tt, err := timetable.New(SortConnections(opts.Connections, opts.Sorted), opts.Stops)
	if err != nil {
		return nil, err
	}

	return NewEngine(opts.Priority, tt, minTransfer)
}

// SortConnections returns connections in ascending departure order.
// The input is never modified: unless sorted is set a copy is stable sorted.
func SortConnections(connections []models.Connection, sorted bool) []models.Connection {
	if sorted {
		return connections
	}
	out := make([]models.Connection, len(connections))
	copy(out, connections)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DepartureTime.Before(out[j].DepartureTime)
	})
	return out
}
