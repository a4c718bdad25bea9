package routing

import (
	"sync"
	"time"

	"github.com/passbi/connscan/internal/models"
)

// LeastAverageTransferTimeEngine finds the journey with the fewest service
// changes and, among those, the least average wait per change
type LeastAverageTransferTimeEngine struct {
	engineBase
	pool sync.Pool
}

func (e *LeastAverageTransferTimeEngine) Name() string {
	return models.LeastAverageTransferTime.String()
}

func (e *LeastAverageTransferTimeEngine) Priority() models.Priority {
	return models.LeastAverageTransferTime
}

func (e *LeastAverageTransferTimeEngine) Run(source models.Stop, sourceTime time.Time, target models.Stop) []models.Connection {
	return runTransferScan(&e.engineBase, &e.pool, source, sourceTime, target, lessWaiting)
}

// lessWaiting orders labels by transfer count, then average wait, then
// arrival. Averages are only compared at equal transfer counts, where they
// order the same as the totals.
func lessWaiting(cand, cur transferLabel) bool {
	if cand.transfers != cur.transfers {
		return cand.transfers < cur.transfers
	}
	if cand.totalWait != cur.totalWait {
		return cand.totalWait < cur.totalWait
	}
	return cand.arrival < cur.arrival
}
