package routing

import (
	"log"

	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/timetable"
)

// journeyTrace exposes the back-pointers left by a sweep
type journeyTrace interface {
	// ArrivedBy returns the connection that produced stop's label, or NoIndex
	ArrivedBy(stop int32) int32
	// Parent returns the connection that conn was boarded after, or NoIndex
	Parent(conn int32) int32
}

// extractJourney walks back-pointers from target to the source and returns
// the connections in travel order. An unreached target gives an empty
// journey. A stop seen twice means the back-pointers are corrupt; the walk
// stops there and returns what it has collected.
func extractJourney(tt *timetable.Timetable, trace journeyTrace, target int32) []models.Connection {
	var reversed []int32
	visited := make(map[int32]bool)

	stop := target
	conn := trace.ArrivedBy(target)
	for conn != timetable.NoIndex {
		if visited[stop] {
			log.Printf("Warning: cyclic back-pointers at stop %s, journey truncated", tt.Stop(stop).ID)
			break
		}
		visited[stop] = true

		reversed = append(reversed, conn)
		stop = tt.Conn(conn).From
		conn = trace.Parent(conn)
	}

	journey := make([]models.Connection, len(reversed))
	for i, idx := range reversed {
		journey[len(reversed)-1-i] = tt.Connection(idx)
	}
	return journey
}
