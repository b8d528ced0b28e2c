// Package bus provides the snooping bus that serializes coherence
// transactions among caches.
package bus

import (
	"fmt"
	"log"

	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/sim/hooking"
	"github.com/sarchlab/cohsim/sim/id"
	"github.com/sarchlab/cohsim/sim/timing"
)

// HookPosTransactionStart marks a transaction that won arbitration and has
// been snooped by every cache.
var HookPosTransactionStart = &hooking.HookPos{Name: "Bus Transaction Start"}

// HookPosTransactionEnd marks a transaction whose data has been delivered.
var HookPosTransactionEnd = &hooking.HookPos{Name: "Bus Transaction End"}

// A Snooper is a cache attached to the bus.
type Snooper interface {
	// ID returns the processor the cache belongs to.
	ID() int

	// Snoop lets the cache react to a request issued by another cache.
	Snoop(req coherence.Msg) error

	// ReceiveData delivers the data of a request the cache issued.
	ReceiveData(data coherence.Msg, version uint64) error

	// Owns reports whether the cache already holds the up-to-date data of
	// the block while waiting for its own GETM.
	Owns(addr uint64) bool
}

// A TransactionObserver is notified after every completed transaction. An
// error aborts the simulation.
type TransactionObserver interface {
	TransactionEnded(tx Transaction) error
}

// A TransactionStartObserver is an observer that is also notified once a
// transaction has been snooped by every cache and its supplier is known.
type TransactionStartObserver interface {
	TransactionObserver
	TransactionStarted(tx Transaction) error
}

// TransactionObserverFunc adapts a function into a TransactionObserver.
type TransactionObserverFunc func(tx Transaction) error

// TransactionEnded calls f(tx).
func (f TransactionObserverFunc) TransactionEnded(tx Transaction) error {
	return f(tx)
}

type startEvent struct {
	*timing.EventBase
}

type endEvent struct {
	*timing.EventBase
}

// Bus is a split-free snooping bus. It carries one transaction at a time and
// grants requests in arrival order.
type Bus struct {
	hooking.HookableBase

	name          string
	protocol      string
	engine        timing.EventScheduler
	latency       timing.VTime
	memoryLatency timing.VTime
	memory        *Memory
	observers     []TransactionObserver

	snoopers []Snooper
	byID     map[int]Snooper

	queue      []coherence.Msg
	busy       bool
	current    *Transaction
	sharedLine SharedLine
	violation  error
	stats      Stats
}

// Name returns the name of the bus.
func (b *Bus) Name() string {
	return b.name
}

// Plug attaches a cache to the bus.
func (b *Bus) Plug(s Snooper) {
	if _, found := b.byID[s.ID()]; found {
		log.Panicf("snooper %d is already plugged into %s", s.ID(), b.name)
	}

	b.snoopers = append(b.snoopers, s)
	b.byID[s.ID()] = s
}

// Snoopers returns the caches attached to the bus.
func (b *Bus) Snoopers() []Snooper {
	return b.snoopers
}

// Observe registers an observer that runs after every transaction.
func (b *Bus) Observe(o TransactionObserver) {
	b.observers = append(b.observers, o)
}

// Memory returns the memory behind the bus.
func (b *Bus) Memory() *Memory {
	return b.memory
}

// SharedLine returns the shared line of the current transaction.
func (b *Bus) SharedLine() *SharedLine {
	return &b.sharedLine
}

// Stats returns the traffic counters.
func (b *Bus) Stats() Stats {
	s := b.stats
	s.MemoryReads = b.memory.Reads()
	s.WriteBacks = b.memory.WriteBacks()

	return s
}

// Current returns the transaction in flight, if any.
func (b *Bus) Current() (Transaction, bool) {
	if b.current == nil {
		return Transaction{}, false
	}

	return *b.current, true
}

// QueueLength returns the number of requests waiting for the bus.
func (b *Bus) QueueLength() int {
	return len(b.queue)
}

// Request queues a GETS or GETM.
func (b *Bus) Request(req coherence.Msg) {
	if req.Kind != coherence.GetS && req.Kind != coherence.GetM {
		log.Panicf("bus cannot carry %s", req)
	}

	b.queue = append(b.queue, req)

	if !b.busy {
		b.busy = true
		b.engine.Schedule(startEvent{
			timing.NewEventBase(b.engine.Now(), b),
		})
	}
}

// Supply places data on the bus for the current transaction.
func (b *Bus) Supply(from int, addr uint64, dst int, version uint64) {
	tx := b.current
	if tx == nil || tx.Req.Addr != addr || tx.Req.Src != dst {
		b.recordViolation(from, addr, coherence.ViolationUnexpectedData, dst)
		return
	}

	if tx.Supplier != NoSupplier {
		b.recordViolation(from, addr, coherence.ViolationMultipleSuppliers, dst)
		return
	}

	tx.Supplier = from
	tx.Version = version
}

// WriteBack copies a dirty version into memory.
func (b *Bus) WriteBack(addr, version uint64) {
	b.memory.WriteBack(addr, version)
}

func (b *Bus) recordViolation(
	from int,
	addr uint64,
	kind coherence.ViolationKind,
	dst int,
) {
	if b.violation != nil {
		return
	}

	msg := coherence.MsgBuilder{}.
		WithKind(coherence.Data).
		WithAddr(addr).
		WithSrc(from).
		WithDst(dst).
		Build()

	b.violation = &coherence.ProtocolViolation{
		Kind:     kind,
		Protocol: b.protocol,
		ProcID:   from,
		Addr:     addr,
		Msg:      msg,
	}
}

// Handle processes the bus events.
func (b *Bus) Handle(e timing.Event) error {
	switch e := e.(type) {
	case startEvent:
		return b.start(e)
	case endEvent:
		return b.end(e)
	default:
		log.Panicf("cannot handle event of type %T", e)
	}

	return nil
}

func (b *Bus) start(e startEvent) error {
	req := b.queue[0]
	b.queue = b.queue[1:]

	b.sharedLine.Reset()
	b.violation = nil
	b.current = &Transaction{
		ID:       id.Generate(),
		Req:      req,
		Supplier: NoSupplier,
		Start:    e.Time(),
	}

	b.stats.Transactions++
	if req.Kind == coherence.GetS {
		b.stats.GetS++
	} else {
		b.stats.GetM++
	}

	requester, found := b.byID[req.Src]
	if !found {
		return fmt.Errorf("%s: request from unknown processor %d",
			b.name, req.Src)
	}

	for _, s := range b.snoopers {
		if s.ID() == req.Src {
			continue
		}

		if err := s.Snoop(req); err != nil {
			return fmt.Errorf("%s: P%d snooping %s: %w",
				b.name, s.ID(), req, err)
		}
	}

	if b.violation != nil {
		return fmt.Errorf("%s: %w", b.name, b.violation)
	}

	latency := b.latency
	tx := b.current
	switch {
	case tx.Supplier >= 0:
		b.stats.CacheToCache++
	case requester.Owns(req.Addr):
		b.stats.Upgrades++
	default:
		tx.Supplier = MemoryID
		tx.Version = b.memory.Read(req.Addr)
		latency += b.memoryLatency
	}

	tx.Shared = b.sharedLine.IsAsserted()

	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    HookPosTransactionStart,
		Item:   *tx,
	})

	for _, o := range b.observers {
		so, ok := o.(TransactionStartObserver)
		if !ok {
			continue
		}

		if err := so.TransactionStarted(*tx); err != nil {
			return fmt.Errorf("starting %s: %w", tx, err)
		}
	}

	b.engine.Schedule(endEvent{
		timing.NewEventBase(e.Time()+latency, b),
	})

	return nil
}

func (b *Bus) end(e endEvent) error {
	tx := b.current
	tx.End = e.Time()

	data := coherence.MsgBuilder{}.
		WithKind(coherence.Data).
		WithAddr(tx.Req.Addr).
		WithSrc(tx.Supplier).
		WithDst(tx.Req.Src).
		Build()

	requester := b.byID[tx.Req.Src]
	if err := requester.ReceiveData(data, tx.Version); err != nil {
		return fmt.Errorf("%s: P%d receiving data of %s: %w",
			b.name, tx.Req.Src, tx.Req, err)
	}

	if b.violation != nil {
		return fmt.Errorf("%s: %w", b.name, b.violation)
	}

	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    HookPosTransactionEnd,
		Item:   *tx,
	})

	for _, o := range b.observers {
		if err := o.TransactionEnded(*tx); err != nil {
			return fmt.Errorf("after %s: %w", tx, err)
		}
	}

	b.current = nil

	if len(b.queue) == 0 {
		b.busy = false
		return nil
	}

	b.engine.Schedule(startEvent{
		timing.NewEventBase(e.Time(), b),
	})

	return nil
}
