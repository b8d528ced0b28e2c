package coherence

import (
	"fmt"

	"github.com/sarchlab/cohsim/sim/id"
)

// MsgKind is the type of a coherence message.
type MsgKind uint8

// LOAD and STORE come from the local processor. GETS, GETM and DATA travel on
// the bus.
const (
	KindInvalid MsgKind = iota
	Load
	Store
	GetS
	GetM
	Data
)

var kindNames = [...]string{
	KindInvalid: "INVALID",
	Load:        "LOAD",
	Store:       "STORE",
	GetS:        "GETS",
	GetM:        "GETM",
	Data:        "DATA",
}

// AllKinds lists every valid message kind.
var AllKinds = []MsgKind{Load, Store, GetS, GetM, Data}

func (k MsgKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("MsgKind(%d)", uint8(k))
}

// IsCacheRequest reports whether the message is issued by the local
// processor.
func (k MsgKind) IsCacheRequest() bool {
	return k == Load || k == Store
}

// IsSnoopRequest reports whether the message is observed on the bus.
func (k MsgKind) IsSnoopRequest() bool {
	return k == GetS || k == GetM || k == Data
}

// Msg is a coherence message. It is passed by value and never modified after
// it is built.
type Msg struct {
	ID   string
	Kind MsgKind
	Addr uint64
	Src  int

	// Dst is the processor a DATA message is delivered to.
	Dst int
}

func (m Msg) String() string {
	if m.Kind == Data {
		return fmt.Sprintf("%s 0x%x %d->%d", m.Kind, m.Addr, m.Src, m.Dst)
	}

	return fmt.Sprintf("%s 0x%x from %d", m.Kind, m.Addr, m.Src)
}

// MsgBuilder can build coherence messages.
type MsgBuilder struct {
	kind     MsgKind
	addr     uint64
	src, dst int
}

// WithKind sets the kind of the message.
func (b MsgBuilder) WithKind(kind MsgKind) MsgBuilder {
	b.kind = kind
	return b
}

// WithAddr sets the block address of the message.
func (b MsgBuilder) WithAddr(addr uint64) MsgBuilder {
	b.addr = addr
	return b
}

// WithSrc sets the processor that issued the message.
func (b MsgBuilder) WithSrc(src int) MsgBuilder {
	b.src = src
	return b
}

// WithDst sets the processor a DATA message is delivered to.
func (b MsgBuilder) WithDst(dst int) MsgBuilder {
	b.dst = dst
	return b
}

// Build creates the message with a fresh ID.
func (b MsgBuilder) Build() Msg {
	return Msg{
		ID:   id.Generate(),
		Kind: b.kind,
		Addr: b.addr,
		Src:  b.src,
		Dst:  b.dst,
	}
}
