// Package processor provides a trace-driven processor that issues one memory
// access at a time.
package processor

import (
	"fmt"
	"log"

	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/sim/timing"
	"github.com/sarchlab/cohsim/trace"
)

// Cache is the cache a processor issues accesses to.
type Cache interface {
	Access(kind coherence.MsgKind, addr uint64) error
}

type issueEvent struct {
	*timing.EventBase
}

// Processor replays its references in order. It blocks while an access is
// outstanding.
type Processor struct {
	name       string
	id         int
	engine     timing.EventScheduler
	cache      Cache
	hitLatency timing.VTime

	refs        []trace.Reference
	next        int
	outstanding *trace.Reference
	issuedAt    timing.VTime

	loads, stores uint64
	stallTime     timing.VTime
	finishedAt    timing.VTime
}

// NewProcessor creates a processor. Its cache is set with SetCache.
func NewProcessor(
	name string,
	id int,
	engine timing.EventScheduler,
	hitLatency timing.VTime,
	refs []trace.Reference,
) *Processor {
	return &Processor{
		name:       name,
		id:         id,
		engine:     engine,
		hitLatency: hitLatency,
		refs:       refs,
	}
}

// Name returns the name of the processor.
func (p *Processor) Name() string {
	return p.name
}

// ID returns the index of the processor.
func (p *Processor) ID() int {
	return p.id
}

// SetCache sets the cache the processor accesses.
func (p *Processor) SetCache(c Cache) {
	p.cache = c
}

// Start schedules the first access.
func (p *Processor) Start() {
	if len(p.refs) == 0 {
		return
	}

	p.engine.Schedule(issueEvent{timing.NewEventBase(p.engine.Now(), p)})
}

// Handle issues the next reference.
func (p *Processor) Handle(e timing.Event) error {
	if _, ok := e.(issueEvent); !ok {
		log.Panicf("cannot handle event of type %T", e)
	}

	if p.outstanding != nil {
		log.Panicf("%s issues while %s is outstanding", p.name, p.outstanding)
	}

	ref := p.refs[p.next]
	p.outstanding = &ref
	p.issuedAt = e.Time()

	if ref.Kind == coherence.Store {
		p.stores++
	} else {
		p.loads++
	}

	if err := p.cache.Access(ref.Kind, ref.Addr); err != nil {
		return fmt.Errorf("%s issuing %s: %w", p.name, ref, err)
	}

	return nil
}

// AccessDone resumes the processor after its outstanding access.
func (p *Processor) AccessDone(kind coherence.MsgKind, _ uint64, _ uint64) {
	if p.outstanding == nil || p.outstanding.Kind != kind {
		log.Panicf("%s got an unexpected %s completion", p.name, kind)
	}

	now := p.engine.Now()
	p.stallTime += now - p.issuedAt
	p.outstanding = nil
	p.next++

	if p.next == len(p.refs) {
		p.finishedAt = now
		return
	}

	p.engine.Schedule(issueEvent{
		timing.NewEventBase(now+p.hitLatency, p),
	})
}

// Progress returns how many references completed and how many exist.
func (p *Processor) Progress() (done, total int) {
	return p.next, len(p.refs)
}

// Finished reports whether every reference completed.
func (p *Processor) Finished() bool {
	return p.next == len(p.refs)
}

// Outstanding returns the reference waiting for the memory system.
func (p *Processor) Outstanding() (trace.Reference, bool) {
	if p.outstanding == nil {
		return trace.Reference{}, false
	}

	return *p.outstanding, true
}

// Stats summarizes the activity of one processor.
type Stats struct {
	Loads      uint64       `json:"loads"`
	Stores     uint64       `json:"stores"`
	StallTime  timing.VTime `json:"stall_time"`
	FinishedAt timing.VTime `json:"finished_at"`
}

// Stats returns the activity counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Loads:      p.loads,
		Stores:     p.stores,
		StallTime:  p.stallTime,
		FinishedAt: p.finishedAt,
	}
}
