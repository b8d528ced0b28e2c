package tracing

import (
	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/sim/timing"
)

// BusTimeTracer measures how long the bus spends on each kind of request.
// The bus carries one transaction at a time, so busy intervals never overlap.
type BusTimeTracer struct {
	busyTime timing.VTime
	total    map[coherence.MsgKind]timing.VTime
	count    map[coherence.MsgKind]uint64
}

// NewBusTimeTracer creates a BusTimeTracer.
func NewBusTimeTracer() *BusTimeTracer {
	return &BusTimeTracer{
		total: make(map[coherence.MsgKind]timing.VTime),
		count: make(map[coherence.MsgKind]uint64),
	}
}

// Transition is ignored.
func (t *BusTimeTracer) Transition(coherence.TransitionInfo) {}

// Transaction adds the duration of a finished transaction.
func (t *BusTimeTracer) Transaction(tx bus.Transaction) {
	d := tx.End - tx.Start

	t.busyTime += d
	t.total[tx.Req.Kind] += d
	t.count[tx.Req.Kind]++
}

// BusyTime returns the total time the bus carried a transaction.
func (t *BusTimeTracer) BusyTime() timing.VTime {
	return t.busyTime
}

// AverageTime returns the mean duration of transactions of one kind, or 0 if
// none happened.
func (t *BusTimeTracer) AverageTime(kind coherence.MsgKind) float64 {
	n := t.count[kind]
	if n == 0 {
		return 0
	}

	return float64(t.total[kind]) / float64(n)
}

// TotalCount returns how many transactions of one kind finished.
func (t *BusTimeTracer) TotalCount(kind coherence.MsgKind) uint64 {
	return t.count[kind]
}
