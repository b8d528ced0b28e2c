package bus

import (
	"log"

	"github.com/sarchlab/cohsim/sim/timing"
)

// Builder can build buses.
type Builder struct {
	protocol      string
	engine        timing.EventScheduler
	latency       timing.VTime
	memoryLatency timing.VTime
	memory        *Memory
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		latency:       1,
		memoryLatency: 10,
	}
}

// WithEngine sets the engine that drives the bus.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithProtocol sets the protocol name used when reporting violations.
func (b Builder) WithProtocol(name string) Builder {
	b.protocol = name
	return b
}

// WithLatency sets how long a cache-to-cache transaction occupies the bus.
func (b Builder) WithLatency(latency timing.VTime) Builder {
	b.latency = latency
	return b
}

// WithMemoryLatency sets the extra time of a transaction served by memory.
func (b Builder) WithMemoryLatency(latency timing.VTime) Builder {
	b.memoryLatency = latency
	return b
}

// WithMemory sets the memory behind the bus.
func (b Builder) WithMemory(memory *Memory) Builder {
	b.memory = memory
	return b
}

// Build creates a bus.
func (b Builder) Build(name string) *Bus {
	if b.engine == nil {
		log.Panic("engine is not set")
	}

	if b.latency < 0 || b.memoryLatency < 0 {
		log.Panic("latencies must not be negative")
	}

	memory := b.memory
	if memory == nil {
		memory = NewMemory()
	}

	return &Bus{
		name:          name,
		protocol:      b.protocol,
		engine:        b.engine,
		latency:       b.latency,
		memoryLatency: b.memoryLatency,
		memory:        memory,
		byID:          make(map[int]Snooper),
	}
}
