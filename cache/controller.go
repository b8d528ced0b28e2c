// Package cache provides the per-processor cache controller that owns one
// coherence state machine per block.
package cache

import (
	"fmt"
	"io"
	"sort"

	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/sim/hooking"
)

type line struct {
	machine *coherence.BlockStateMachine
	version uint64
	dirty   bool
}

// LineInfo is a snapshot of one block of the cache.
type LineInfo struct {
	Addr    uint64          `json:"addr"`
	State   coherence.State `json:"-"`
	Version uint64          `json:"version"`
	Dirty   bool            `json:"dirty"`
}

// Controller is the cache of one processor. It implements
// coherence.Controller for all its blocks and bus.Snooper for the bus.
//
// Hooks accepted by the controller observe the transitions of every block.
type Controller struct {
	hooking.HookableBase

	name      string
	procID    int
	protocol  *coherence.Protocol
	blockSize uint64
	bus       Bus
	stats     *coherence.Stats
	requester Requester
	versions  VersionSource
	checker   LoadChecker

	lines   map[uint64]*line
	pending map[uint64]coherence.MsgKind
	err     error
}

// Name returns the name of the cache.
func (c *Controller) Name() string {
	return c.name
}

// ID returns the processor the cache belongs to.
func (c *Controller) ID() int {
	return c.procID
}

// Protocol returns the coherence protocol of the cache.
func (c *Controller) Protocol() *coherence.Protocol {
	return c.protocol
}

// Stats returns the counters the cache records into.
func (c *Controller) Stats() *coherence.Stats {
	return c.stats
}

// SetRequester sets who is told about completed accesses.
func (c *Controller) SetRequester(r Requester) {
	c.requester = r
}

// BlockAddr aligns an address down to its block.
func (c *Controller) BlockAddr(addr uint64) uint64 {
	return addr &^ (c.blockSize - 1)
}

func (c *Controller) lookup(addr uint64) *line {
	l, found := c.lines[addr]
	if found {
		return l
	}

	m := coherence.NewBlockStateMachine(
		c.protocol, c.procID, addr, c, c.stats)
	m.AcceptHook(hooking.HookFunc(c.forwardHook))

	l = &line{machine: m}
	c.lines[addr] = l

	return l
}

func (c *Controller) forwardHook(ctx hooking.HookCtx) {
	c.InvokeHook(ctx)
}

// Access starts a LOAD or STORE of the local processor. Hits complete before
// Access returns.
func (c *Controller) Access(kind coherence.MsgKind, addr uint64) error {
	block := c.BlockAddr(addr)
	l := c.lookup(block)

	msg := coherence.MsgBuilder{}.
		WithKind(kind).
		WithAddr(block).
		WithSrc(c.procID).
		Build()

	if _, busy := c.pending[block]; busy {
		return c.wrap(l.machine.ProcessCacheRequest(msg))
	}

	c.pending[block] = kind
	if err := l.machine.ProcessCacheRequest(msg); err != nil {
		delete(c.pending, block)
		return c.wrap(err)
	}

	return c.takeErr()
}

// Snoop lets the cache react to a request of another processor.
func (c *Controller) Snoop(req coherence.Msg) error {
	l, found := c.lines[req.Addr]
	if !found {
		return nil
	}

	if err := l.machine.ProcessSnoopRequest(req); err != nil {
		return c.wrap(err)
	}

	st := l.machine.State()
	if !st.IsValid() && !st.IsOwner() {
		l.dirty = false
	}

	return c.takeErr()
}

// ReceiveData completes the transaction the cache issued.
func (c *Controller) ReceiveData(data coherence.Msg, version uint64) error {
	l, found := c.lines[data.Addr]
	if !found {
		return fmt.Errorf("%s: data for untracked block 0x%x", c.name, data.Addr)
	}

	if !l.machine.State().IsOwner() {
		l.version = version
		l.dirty = false
	}

	if err := l.machine.ProcessSnoopRequest(data); err != nil {
		return c.wrap(err)
	}

	return c.takeErr()
}

// Owns reports whether the cache is upgrading a block it already owns.
func (c *Controller) Owns(addr uint64) bool {
	l, found := c.lines[addr]
	if !found {
		return false
	}

	st := l.machine.State()

	return st.IsOwner() && st.IsTransient()
}

// SendGETS issues a GETS on the bus.
func (c *Controller) SendGETS(addr uint64) {
	c.bus.Request(c.busRequest(coherence.GetS, addr))
}

// SendGETM issues a GETM on the bus.
func (c *Controller) SendGETM(addr uint64) {
	c.bus.Request(c.busRequest(coherence.GetM, addr))
}

func (c *Controller) busRequest(kind coherence.MsgKind, addr uint64) coherence.Msg {
	return coherence.MsgBuilder{}.
		WithKind(kind).
		WithAddr(addr).
		WithSrc(c.procID).
		Build()
}

// SendDataToProc completes the pending access of the block.
func (c *Controller) SendDataToProc(addr uint64) {
	kind, found := c.pending[addr]
	if !found {
		c.setErr(fmt.Errorf("%s: data for block 0x%x with no pending access",
			c.name, addr))
		return
	}

	delete(c.pending, addr)

	l := c.lines[addr]
	switch kind {
	case coherence.Store:
		l.version = c.versions.NextVersion()
		l.dirty = true
	case coherence.Load:
		if c.checker != nil {
			c.setErr(c.checker.CheckLoad(c.procID, addr, l.version))
		}
	}

	if c.requester != nil {
		c.requester.AccessDone(kind, addr, l.version)
	}
}

// SendDataOnBus supplies the block to another processor. The machine has
// already moved to its next state.
func (c *Controller) SendDataOnBus(addr uint64, dst int) {
	l := c.lines[addr]
	c.bus.Supply(c.procID, addr, dst, l.version)

	if l.dirty && l.machine.State() == coherence.StateS {
		c.bus.WriteBack(addr, l.version)
		l.dirty = false
	}
}

// SetSharedLine asserts the shared line of the current transaction.
func (c *Controller) SetSharedLine() {
	c.bus.SharedLine().Assert()
}

// GetSharedLine reads the shared line of the current transaction.
func (c *Controller) GetSharedLine() bool {
	return c.bus.SharedLine().IsAsserted()
}

func (c *Controller) setErr(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

func (c *Controller) takeErr() error {
	err := c.err
	c.err = nil

	return err
}

func (c *Controller) wrap(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", c.name, err)
}

// State returns the coherence state of the block holding addr.
func (c *Controller) State(addr uint64) coherence.State {
	l, found := c.lines[c.BlockAddr(addr)]
	if !found {
		return coherence.StateI
	}

	return l.machine.State()
}

// Line returns a snapshot of the block holding addr.
func (c *Controller) Line(addr uint64) (LineInfo, bool) {
	block := c.BlockAddr(addr)

	l, found := c.lines[block]
	if !found {
		return LineInfo{}, false
	}

	return c.info(block, l), true
}

// Lines returns a snapshot of every tracked block, ordered by address.
func (c *Controller) Lines() []LineInfo {
	infos := make([]LineInfo, 0, len(c.lines))
	for addr, l := range c.lines {
		infos = append(infos, c.info(addr, l))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Addr < infos[j].Addr
	})

	return infos
}

func (c *Controller) info(addr uint64, l *line) LineInfo {
	return LineInfo{
		Addr:    addr,
		State:   l.machine.State(),
		Version: l.version,
		Dirty:   l.dirty,
	}
}

// Dump writes the state of every block.
func (c *Controller) Dump(w io.Writer) {
	fmt.Fprintf(w, "%s (%s):\n", c.name, c.protocol.Name())

	for _, info := range c.Lines() {
		dirty := ""
		if info.Dirty {
			dirty = " dirty"
		}

		fmt.Fprintf(w, "  0x%x %-2s v%d%s\n",
			info.Addr, info.State, info.Version, dirty)
	}
}
