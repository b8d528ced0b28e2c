package tracing

import (
	"sort"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/coherence"
)

// TransitionKey identifies an edge of a protocol state graph.
type TransitionKey struct {
	From coherence.State
	Kind coherence.MsgKind
	To   coherence.State
}

// TransitionCount is how often an edge was taken.
type TransitionCount struct {
	TransitionKey
	Count uint64
}

// TransitionCountTracer counts how often every transition happens and who
// supplies the data of bus transactions.
type TransitionCountTracer struct {
	counts    map[TransitionKey]uint64
	suppliers map[string]uint64
}

// NewTransitionCountTracer creates a TransitionCountTracer.
func NewTransitionCountTracer() *TransitionCountTracer {
	return &TransitionCountTracer{
		counts:    make(map[TransitionKey]uint64),
		suppliers: make(map[string]uint64),
	}
}

// Transition counts one transition.
func (t *TransitionCountTracer) Transition(info coherence.TransitionInfo) {
	t.counts[TransitionKey{From: info.From, Kind: info.Msg.Kind, To: info.To}]++
}

// Transaction counts the supplier of one transaction.
func (t *TransitionCountTracer) Transaction(tx bus.Transaction) {
	supplier := "cache"
	switch tx.Supplier {
	case bus.MemoryID:
		supplier = "memory"
	case bus.NoSupplier:
		supplier = "none"
	}

	t.suppliers[supplier]++
}

// Count returns how often a transition happened.
func (t *TransitionCountTracer) Count(
	from coherence.State,
	kind coherence.MsgKind,
	to coherence.State,
) uint64 {
	return t.counts[TransitionKey{From: from, Kind: kind, To: to}]
}

// Counts returns every transition seen, most frequent first.
func (t *TransitionCountTracer) Counts() []TransitionCount {
	counts := make([]TransitionCount, 0, len(t.counts))
	for k, c := range t.counts {
		counts = append(counts, TransitionCount{TransitionKey: k, Count: c})
	}

	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}

		if a.From != b.From {
			return a.From < b.From
		}

		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}

		return a.To < b.To
	})

	return counts
}

// Suppliers returns how many transactions memory, caches, or nobody
// supplied.
func (t *TransitionCountTracer) Suppliers() map[string]uint64 {
	suppliers := make(map[string]uint64, len(t.suppliers))
	for k, v := range t.suppliers {
		suppliers[k] = v
	}

	return suppliers
}
