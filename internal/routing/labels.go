package routing

import (
	"math"

	"github.com/passbi/connscan/internal/timetable"
)

const (
	// infinity is the tentative arrival of a stop not yet reached
	infinity int64 = math.MaxInt64
	// farFuture is the arrival placeholder of transfer labels (2999-12-31)
	farFuture int64 = 32503593600000
	// unreachable is the transfer count of a stop not yet reached
	unreachable = math.MaxInt
)

// backPointers is shared by every label store.
//
// arrivedBy holds, per stop, the connection that produced the stop's label.
// parent holds, per connection, the connection ridden just before it; it is
// written whenever the connection is ridden, so the slots reachable from
// arrivedBy are always written in the current run and never need clearing.
// onboard holds, per service, the last connection ridden on that service.
type backPointers struct {
	arrivedBy []int32
	parent    []int32
	onboard   []int32
}

func (b *backPointers) resize(stops, conns, services int) {
	b.arrivedBy = fill(b.arrivedBy, stops)
	b.onboard = fill(b.onboard, services)
	if cap(b.parent) < conns {
		b.parent = make([]int32, conns)
	}
	b.parent = b.parent[:conns]
}

func (b *backPointers) clear() {
	fill(b.arrivedBy, len(b.arrivedBy))
	fill(b.onboard, len(b.onboard))
}

// fill returns s resized to n with every slot set to NoIndex
func fill(s []int32, n int) []int32 {
	if cap(s) < n {
		s = make([]int32, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = timetable.NoIndex
	}
	return s
}

// riding returns the last connection ridden on c's service when it ends
// where c starts, meaning c can be reached without leaving the vehicle.
func (b *backPointers) riding(tt *timetable.Timetable, c *timetable.Conn) (int32, bool) {
	p := b.onboard[c.Service]
	if p == timetable.NoIndex || tt.Conn(p).To != c.From {
		return timetable.NoIndex, false
	}
	return p, true
}

// ride records that connection idx was ridden after parent
func (b *backPointers) ride(c *timetable.Conn, idx, parent int32) {
	b.parent[idx] = parent
	b.onboard[c.Service] = idx
}

// ArrivedBy implements journeyTrace
func (b *backPointers) ArrivedBy(stop int32) int32 { return b.arrivedBy[stop] }

// Parent implements journeyTrace
func (b *backPointers) Parent(conn int32) int32 { return b.parent[conn] }

// arrivalLabels is the label store of the earliest-arrival engine
type arrivalLabels struct {
	backPointers
	arrival []int64
}

func newArrivalLabels() *arrivalLabels { return &arrivalLabels{} }

func (l *arrivalLabels) reset(tt *timetable.Timetable, source int32, at int64) {
	l.resize(tt.NumStops(), tt.NumConnections(), tt.NumServices())
	if cap(l.arrival) < tt.NumStops() {
		l.arrival = make([]int64, tt.NumStops())
	}
	l.arrival = l.arrival[:tt.NumStops()]
	for i := range l.arrival {
		l.arrival[i] = infinity
	}
	l.arrival[source] = at
}

func (l *arrivalLabels) clear() {
	l.backPointers.clear()
	for i := range l.arrival {
		l.arrival[i] = infinity
	}
}

// improve records that connection idx reaches its arrival stop at c.Arrival
func (l *arrivalLabels) improve(c *timetable.Conn, idx int32) {
	l.arrival[c.To] = c.Arrival
	l.arrivedBy[c.To] = idx
}

// transferLabel is the per-stop state of the transfer-counting engines.
// The same shape describes a rider still on board a service.
type transferLabel struct {
	transfers int
	arrival   int64
	totalWait int64 // milliseconds spent waiting at transfers
	service   int32
}

// transferLabels is the label store of the least-transfers and
// least-average-transfer-time engines
type transferLabels struct {
	backPointers
	labels []transferLabel
	// aboard is, per service, the state of a rider on onboard[service]
	aboard []transferLabel
}

func newTransferLabels() *transferLabels { return &transferLabels{} }

var emptyTransferLabel = transferLabel{
	transfers: unreachable,
	arrival:   farFuture,
	service:   timetable.NoIndex,
}

func (l *transferLabels) reset(tt *timetable.Timetable, source int32, at int64) {
	l.resize(tt.NumStops(), tt.NumConnections(), tt.NumServices())
	if cap(l.labels) < tt.NumStops() {
		l.labels = make([]transferLabel, tt.NumStops())
	}
	l.labels = l.labels[:tt.NumStops()]
	for i := range l.labels {
		l.labels[i] = emptyTransferLabel
	}
	if cap(l.aboard) < tt.NumServices() {
		l.aboard = make([]transferLabel, tt.NumServices())
	}
	l.aboard = l.aboard[:tt.NumServices()]

	l.labels[source] = transferLabel{
		transfers: 0,
		arrival:   at,
		service:   timetable.NoIndex,
	}
}

func (l *transferLabels) clear() {
	l.backPointers.clear()
	for i := range l.labels {
		l.labels[i] = emptyTransferLabel
	}
}
