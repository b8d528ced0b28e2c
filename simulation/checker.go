package simulation

import (
	"fmt"
	"sort"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/cache"
	"github.com/sarchlab/cohsim/coherence"
)

// InvariantError reports a coherence property that does not hold.
type InvariantError struct {
	Addr   uint64
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("coherence invariant broken at 0x%x: %s",
		e.Addr, e.Detail)
}

// Checker validates a run while it progresses. It keeps the version of the
// latest store to every block and requires every load to observe it. After
// every bus transaction it also requires that
//
//   - at most one cache holds a block in M or E, and no other cache holds a
//     valid copy meanwhile, and
//   - at most one cache owns the block (O, F, OM or FM).
//
// A cache in IM or SM only becomes a writer when its GETM wins the bus, and
// GETMs queue in arrival order, so several caches may wait in IM or SM at
// once. When a GETM starts, after every other cache has snooped it, the
// requester must be the only cache left with write permission, a valid copy
// or ownership. When a GETS starts, no other cache may still hold the block
// in M or E.
type Checker struct {
	caches []*cache.Controller
	latest map[uint64]uint64

	loadsChecked uint64
	txsChecked   uint64
}

// NewChecker creates a Checker.
func NewChecker() *Checker {
	return &Checker{
		latest: make(map[uint64]uint64),
	}
}

// Watch adds a cache to the state checks.
func (c *Checker) Watch(cc *cache.Controller) {
	c.caches = append(c.caches, cc)
}

// StoreDone records the version a store wrote.
func (c *Checker) StoreDone(addr, version uint64) {
	c.latest[addr] = version
}

// CheckLoad requires the load to observe the latest stored version.
func (c *Checker) CheckLoad(proc int, addr uint64, version uint64) error {
	c.loadsChecked++

	if want := c.latest[addr]; version != want {
		return &InvariantError{
			Addr: addr,
			Detail: fmt.Sprintf("P%d loaded version %d, latest store is %d",
				proc, version, want),
		}
	}

	return nil
}

// TransactionStarted checks the other caches once they have snooped a
// request.
func (c *Checker) TransactionStarted(tx bus.Transaction) error {
	addr := tx.Req.Addr

	var holders []string
	for _, cc := range c.caches {
		if cc.ID() == tx.Req.Src {
			continue
		}

		st := cc.State(addr)

		conflict := st.IsExclusive()
		if tx.Req.Kind == coherence.GetM {
			conflict = st.IsValid() || st.IsOwner()
		}

		if conflict {
			holders = append(holders, fmt.Sprintf("P%d:%s", cc.ID(), st))
		}
	}

	if len(holders) == 0 {
		return nil
	}

	what := fmt.Sprintf("exclusive copy survives %s", tx.Req.Kind)
	if tx.Req.Kind == coherence.GetM {
		what = fmt.Sprintf("P%d gains write permission while others keep copies",
			tx.Req.Src)
	}

	return c.broken(addr, what, holders)
}

// TransactionEnded checks the block the transaction moved.
func (c *Checker) TransactionEnded(tx bus.Transaction) error {
	c.txsChecked++
	return c.CheckBlock(tx.Req.Addr)
}

// CheckBlock checks the states all caches hold for one block.
func (c *Checker) CheckBlock(addr uint64) error {
	var exclusive, valid, owners []string

	for _, cc := range c.caches {
		st := cc.State(addr)
		holder := fmt.Sprintf("P%d:%s", cc.ID(), st)

		if st.IsExclusive() {
			exclusive = append(exclusive, holder)
		}

		if st.IsValid() {
			valid = append(valid, holder)
		}

		if st.IsOwner() {
			owners = append(owners, holder)
		}
	}

	switch {
	case len(exclusive) > 1:
		return c.broken(addr, "several exclusive copies", exclusive)
	case len(exclusive) == 1 && len(valid) > 1:
		return c.broken(addr, "exclusive copy is not alone", valid)
	case len(owners) > 1:
		return c.broken(addr, "several owners", owners)
	}

	return nil
}

// CheckAll checks every block any cache tracks.
func (c *Checker) CheckAll() error {
	seen := make(map[uint64]bool)
	for _, cc := range c.caches {
		for _, l := range cc.Lines() {
			seen[l.Addr] = true
		}
	}

	addrs := make([]uint64, 0, len(seen))
	for addr := range seen {
		addrs = append(addrs, addr)
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	for _, addr := range addrs {
		if err := c.CheckBlock(addr); err != nil {
			return err
		}
	}

	return nil
}

func (c *Checker) broken(addr uint64, what string, holders []string) error {
	return &InvariantError{
		Addr:   addr,
		Detail: fmt.Sprintf("%s %v", what, holders),
	}
}

// LoadsChecked returns how many loads were validated.
func (c *Checker) LoadsChecked() uint64 {
	return c.loadsChecked
}

// requesterTap sits between a cache and its processor. It feeds stores to
// the checker and completions to the progress bar.
type requesterTap struct {
	next     cache.Requester
	checker  *Checker
	progress func()
}

func (t *requesterTap) AccessDone(
	kind coherence.MsgKind,
	addr uint64,
	version uint64,
) {
	if kind == coherence.Store && t.checker != nil {
		t.checker.StoreDone(addr, version)
	}

	t.next.AccessDone(kind, addr, version)

	if t.progress != nil {
		t.progress()
	}
}
