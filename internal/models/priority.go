package models

import (
	"errors"
	"fmt"
	"strings"
)

// Priority selects what a journey search optimises
type Priority int

const (
	// EarliestArrival finds the journey arriving first
	EarliestArrival Priority = iota
	// LeastTransfers finds the journey with the fewest service changes,
	// breaking ties by arrival time
	LeastTransfers
	// LeastAverageTransferTime finds the journey with the fewest transfers and
	// then the lowest average wait per transfer
	LeastAverageTransferTime
)

// ErrUnknownPriority is returned when a priority name cannot be parsed
var ErrUnknownPriority = errors.New("unknown priority")

var priorityNames = map[Priority]string{
	EarliestArrival:          "earliest_arrival",
	LeastTransfers:           "least_transfers",
	LeastAverageTransferTime: "least_average_transfer_time",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is one of the supported priorities
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority converts an API name to a Priority.
// Accepts the snake_case names and a few short aliases.
func ParsePriority(name string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "earliest_arrival", "earliest", "fast":
		return EarliestArrival, nil
	case "least_transfers", "transfers", "direct":
		return LeastTransfers, nil
	case "least_average_transfer_time", "least_wait", "wait":
		return LeastAverageTransferTime, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPriority, name)
}

// AllPriorities returns every supported priority in declaration order
func AllPriorities() []Priority {
	return []Priority{EarliestArrival, LeastTransfers, LeastAverageTransferTime}
}
