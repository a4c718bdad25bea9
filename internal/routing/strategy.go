package routing

import (
	"errors"
	"fmt"
	"time"

	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/timetable"
)

// DefaultMinimumTransferTime is the minimum time to change services at a stop
const DefaultMinimumTransferTime = 5 * time.Minute

var (
	// ErrUnsupportedPriority is returned for priorities no engine implements
	ErrUnsupportedPriority = errors.New("unsupported priority")
	// ErrInvalidTransferTime is returned for a negative minimum transfer time
	ErrInvalidTransferTime = errors.New("minimum transfer time must not be negative")
)

// Engine is a connection scan variant.
// Run is synchronous and safe for concurrent use: every call takes its own
// label store from the engine's pool and resets it before and after the sweep.
type Engine interface {
	Name() string
	Priority() models.Priority
	// Run returns the connections of the best journey from source, leaving
	// no earlier than sourceTime, to target. The journey is empty when the
	// target cannot be reached or either stop is unknown.
	Run(source models.Stop, sourceTime time.Time, target models.Stop) []models.Connection
}

// engineBase holds what every variant shares
type engineBase struct {
	tt          *timetable.Timetable
	minTransfer int64 // milliseconds
}

// endpoints resolves the query stops. ok is false when either is unknown.
func (e *engineBase) endpoints(source, target models.Stop) (src, dst int32, ok bool) {
	src, okSrc := e.tt.StopIndex(source.ID)
	dst, okDst := e.tt.StopIndex(target.ID)
	return src, dst, okSrc && okDst
}

// NewEngine returns the engine for priority over tt
func NewEngine(priority models.Priority, tt *timetable.Timetable, minTransfer time.Duration) (Engine, error) {
	if tt == nil {
		return nil, timetable.ErrNoConnections
	}
	if minTransfer < 0 {
		return nil, ErrInvalidTransferTime
	}

	base := engineBase{tt: tt, minTransfer: minTransfer.Milliseconds()}

	switch priority {
	case models.EarliestArrival:
		e := &EarliestArrivalEngine{engineBase: base}
		e.pool.New = func() any { return newArrivalLabels() }
		return e, nil
	case models.LeastTransfers:
		e := &LeastTransfersEngine{engineBase: base}
		e.pool.New = func() any { return newTransferLabels() }
		return e, nil
	case models.LeastAverageTransferTime:
		e := &LeastAverageTransferTimeEngine{engineBase: base}
		e.pool.New = func() any { return newTransferLabels() }
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPriority, priority)
	}
}

// NewAllEngines returns one engine per supported priority, keyed by priority
func NewAllEngines(tt *timetable.Timetable, minTransfer time.Duration) (map[models.Priority]Engine, error) {
	engines := make(map[models.Priority]Engine)
	for _, p := range models.AllPriorities() {
		e, err := NewEngine(p, tt, minTransfer)
		if err != nil {
			return nil, err
		}
		engines[p] = e
	}
	return engines, nil
}
