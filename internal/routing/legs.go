package routing

import "github.com/passbi/connscan/internal/models"

// BuildLegs constructs rider-facing legs from a journey.
// Consecutive connections on the same service are consolidated into one leg.
func BuildLegs(journey []models.Connection) []models.Leg {
	if len(journey) == 0 {
		return []models.Leg{}
	}

	legs := []models.Leg{}
	var current *models.Leg

	for _, c := range journey {
		if current != nil && current.Service.ID == c.Service.ID {
			// Same service, extend the current leg through c
			current.Stops = append(current.Stops, current.To)
			current.To = c.ArrivalStop
			current.ArrivalTime = c.ArrivalTime
			current.NumStops++
			current.Duration = int(current.ArrivalTime.Sub(current.DepartureTime).Seconds())
			continue
		}

		if current != nil {
			legs = append(legs, *current)
		}
		current = &models.Leg{
			Service:       c.Service,
			From:          c.DepartureStop,
			To:            c.ArrivalStop,
			DepartureTime: c.DepartureTime,
			ArrivalTime:   c.ArrivalTime,
			Duration:      int(c.Duration().Seconds()),
			NumStops:      1,
		}
	}

	// Add the last leg
	if current != nil {
		legs = append(legs, *current)
	}

	return legs
}
