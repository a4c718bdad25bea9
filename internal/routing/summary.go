package routing

import (
	"time"

	"github.com/passbi/connscan/internal/models"
)

// Summary describes a journey as a whole
type Summary struct {
	DepartureTime time.Time
	ArrivalTime   time.Time
	Transfers     int
	TotalWait     time.Duration // waiting at transfers only
}

// AverageWait returns the mean wait per transfer, zero without transfers
func (s Summary) AverageWait() time.Duration {
	if s.Transfers == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(s.Transfers)
}

// Duration returns door-to-door travel time
func (s Summary) Duration() time.Duration {
	return s.ArrivalTime.Sub(s.DepartureTime)
}

// Summarize computes the summary of journey. An empty journey gives the
// zero Summary.
func Summarize(journey []models.Connection) Summary {
	if len(journey) == 0 {
		return Summary{}
	}

	s := Summary{
		DepartureTime: journey[0].DepartureTime,
		ArrivalTime:   journey[len(journey)-1].ArrivalTime,
	}
	for i := 1; i < len(journey); i++ {
		prev, cur := journey[i-1], journey[i]
		if prev.Service.ID != cur.Service.ID {
			s.Transfers++
			s.TotalWait += cur.DepartureTime.Sub(prev.ArrivalTime)
		}
	}
	return s
}

// Result builds the API representation of journey found with priority
func Result(priority models.Priority, journey []models.Connection) *models.JourneyResult {
	s := Summarize(journey)
	return &models.JourneyResult{
		Priority:              priority.String(),
		DepartureTime:         s.DepartureTime,
		ArrivalTime:           s.ArrivalTime,
		DurationSeconds:       int(s.Duration().Seconds()),
		Transfers:             s.Transfers,
		AverageTransferWaitMs: s.AverageWait().Milliseconds(),
		Legs:                  BuildLegs(journey),
		Connections:           journey,
	}
}
