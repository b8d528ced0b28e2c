package cache

import (
	"log"

	"github.com/sarchlab/cohsim/coherence"
)

// Builder can build cache controllers.
type Builder struct {
	procID    int
	protocol  *coherence.Protocol
	blockSize uint64
	bus       Bus
	stats     *coherence.Stats
	requester Requester
	versions  VersionSource
	checker   LoadChecker
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		blockSize: 64,
	}
}

// WithProcID sets the processor the cache belongs to.
func (b Builder) WithProcID(id int) Builder {
	b.procID = id
	return b
}

// WithProtocol sets the coherence protocol.
func (b Builder) WithProtocol(p *coherence.Protocol) Builder {
	b.protocol = p
	return b
}

// WithBlockSize sets the block size in bytes. It must be a power of 2.
func (b Builder) WithBlockSize(size uint64) Builder {
	b.blockSize = size
	return b
}

// WithBus sets the bus the cache snoops.
func (b Builder) WithBus(bus Bus) Builder {
	b.bus = bus
	return b
}

// WithStats sets the counters the cache records into.
func (b Builder) WithStats(stats *coherence.Stats) Builder {
	b.stats = stats
	return b
}

// WithRequester sets who is told about completed accesses.
func (b Builder) WithRequester(r Requester) Builder {
	b.requester = r
	return b
}

// WithVersionSource sets where store versions come from.
func (b Builder) WithVersionSource(v VersionSource) Builder {
	b.versions = v
	return b
}

// WithLoadChecker sets the validator of load results.
func (b Builder) WithLoadChecker(c LoadChecker) Builder {
	b.checker = c
	return b
}

// Build creates a cache controller.
func (b Builder) Build(name string) *Controller {
	b.parametersMustBeValid()

	versions := b.versions
	if versions == nil {
		versions = &VersionCounter{}
	}

	return &Controller{
		name:      name,
		procID:    b.procID,
		protocol:  b.protocol,
		blockSize: b.blockSize,
		bus:       b.bus,
		stats:     b.stats,
		requester: b.requester,
		versions:  versions,
		checker:   b.checker,
		lines:     make(map[uint64]*line),
		pending:   make(map[uint64]coherence.MsgKind),
	}
}

func (b Builder) parametersMustBeValid() {
	if b.protocol == nil {
		log.Panic("protocol is not set")
	}

	if b.bus == nil {
		log.Panic("bus is not set")
	}

	if b.blockSize == 0 || b.blockSize&(b.blockSize-1) != 0 {
		log.Panicf("block size %d is not a power of 2", b.blockSize)
	}
}
