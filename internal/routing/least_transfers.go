package routing

import (
	"sync"
	"time"

	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/timetable"
)

// LeastTransfersEngine finds the journey with the fewest service changes,
// preferring the earlier arrival among equals
type LeastTransfersEngine struct {
	engineBase
	pool sync.Pool
}

func (e *LeastTransfersEngine) Name() string {
	return models.LeastTransfers.String()
}

func (e *LeastTransfersEngine) Priority() models.Priority {
	return models.LeastTransfers
}

func (e *LeastTransfersEngine) Run(source models.Stop, sourceTime time.Time, target models.Stop) []models.Connection {
	return runTransferScan(&e.engineBase, &e.pool, source, sourceTime, target, fewerTransfers)
}

// fewerTransfers orders labels by transfer count, then arrival
func fewerTransfers(cand, cur transferLabel) bool {
	if cand.transfers != cur.transfers {
		return cand.transfers < cur.transfers
	}
	return cand.arrival < cur.arrival
}

// runTransferScan is the sweep shared by the transfer-counting engines.
// better decides whether a candidate label replaces the current one.
func runTransferScan(e *engineBase, pool *sync.Pool, source models.Stop, sourceTime time.Time, target models.Stop, better func(cand, cur transferLabel) bool) []models.Connection {
	src, dst, ok := e.endpoints(source, target)
	if !ok {
		return []models.Connection{}
	}

	labels := pool.Get().(*transferLabels)
	defer pool.Put(labels)

	at := sourceTime.UnixMilli()
	labels.reset(e.tt, src, at)

	// connections departing before at can never be boarded
	n := e.tt.NumConnections()
	for i := e.tt.StartIndex(at); i < n; i++ {
		idx := int32(i)
		c := e.tt.Conn(idx)

		cand, prev, ok := e.boardCounting(labels, c, better)
		if !ok {
			continue
		}
		labels.ride(c, idx, prev)
		labels.aboard[c.Service] = cand

		if better(cand, labels.labels[c.To]) {
			labels.labels[c.To] = cand
			labels.arrivedBy[c.To] = idx
		}
	}

	journey := extractJourney(e.tt, labels, dst)
	labels.clear()
	return journey
}

// boardCounting returns the best label for a rider on c and the connection
// ridden before it. A rider may still be on board c's service or may board
// at c's departure stop, paying a transfer when the stop's label arrived on
// another service.
func (e *engineBase) boardCounting(l *transferLabels, c *timetable.Conn, better func(cand, cur transferLabel) bool) (transferLabel, int32, bool) {
	var cand transferLabel
	prev, found := l.riding(e.tt, c)
	if found {
		cand = l.aboard[c.Service]
		cand.arrival = c.Arrival
	}

	from := l.labels[c.From]
	if from.transfers == unreachable {
		return cand, prev, found
	}

	alt := transferLabel{
		transfers: from.transfers,
		arrival:   c.Arrival,
		totalWait: from.totalWait,
		service:   c.Service,
	}
	ready := from.arrival
	if from.service != timetable.NoIndex && from.service != c.Service {
		ready += e.minTransfer
		alt.transfers++
		alt.totalWait += c.Departure - from.arrival
	}
	if c.Departure < ready {
		return cand, prev, found
	}

	// on ties board at the stop rather than ride a loop back to it
	if !found || !better(cand, alt) {
		return alt, l.arrivedBy[c.From], true
	}
	return cand, prev, true
}
