package cache

import (
	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/coherence"
)

// Bus is the part of the snooping bus a cache talks to.
type Bus interface {
	Request(req coherence.Msg)
	Supply(from int, addr uint64, dst int, version uint64)
	WriteBack(addr, version uint64)
	SharedLine() *bus.SharedLine
}

// A Requester is told when an access it issued completes.
type Requester interface {
	AccessDone(kind coherence.MsgKind, addr uint64, version uint64)
}

// A VersionSource hands out the data version written by every store. All the
// caches of a run share one source.
type VersionSource interface {
	NextVersion() uint64
}

// A LoadChecker validates the version a load observes.
type LoadChecker interface {
	CheckLoad(proc int, addr uint64, version uint64) error
}

// VersionCounter is a VersionSource that counts up from 1.
type VersionCounter struct {
	last uint64
}

// NextVersion returns a version never returned before.
func (c *VersionCounter) NextVersion() uint64 {
	c.last++
	return c.last
}

// Last returns the most recent version handed out.
func (c *VersionCounter) Last() uint64 {
	return c.last
}
