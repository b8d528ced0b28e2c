package bus

import (
	"fmt"

	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/sim/timing"
)

// MemoryID is the supplier of a transaction served by memory.
const MemoryID = -1

// NoSupplier marks a transaction whose requester already held the data.
const NoSupplier = -2

// Transaction is one request carried by the bus from arbitration to data
// delivery.
type Transaction struct {
	ID       string
	Req      coherence.Msg
	Supplier int
	Version  uint64
	Shared   bool
	Start    timing.VTime
	End      timing.VTime
}

// SupplierName describes who provided the data.
func (t Transaction) SupplierName() string {
	switch t.Supplier {
	case MemoryID:
		return "memory"
	case NoSupplier:
		return "none"
	default:
		return fmt.Sprintf("P%d", t.Supplier)
	}
}

func (t Transaction) String() string {
	return fmt.Sprintf("%s 0x%x by P%d, data v%d from %s, shared=%t",
		t.Req.Kind, t.Req.Addr, t.Req.Src, t.Version,
		t.SupplierName(), t.Shared)
}

// Stats counts the traffic of the bus.
type Stats struct {
	Transactions uint64 `json:"transactions"`
	GetS         uint64 `json:"gets"`
	GetM         uint64 `json:"getm"`
	CacheToCache uint64 `json:"cache_to_cache"`
	MemoryReads  uint64 `json:"memory_reads"`
	WriteBacks   uint64 `json:"write_backs"`
	Upgrades     uint64 `json:"upgrades"`
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"transactions=%d gets=%d getm=%d c2c=%d mem_reads=%d "+
			"write_backs=%d upgrades=%d",
		s.Transactions, s.GetS, s.GetM, s.CacheToCache, s.MemoryReads,
		s.WriteBacks, s.Upgrades)
}
