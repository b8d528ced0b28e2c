package coherence

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Action is a bit set of the side effects a transition emits.
type Action uint16

// Actions are emitted in the order they are declared.
const (
	ActionAssertShared Action = 1 << iota
	ActionDataOnBus
	ActionSendGETS
	ActionSendGETM
	ActionDataToProc
	ActionRecordHit
	ActionRecordMiss
	ActionRecordSilentUpgrade
)

var actionNames = []struct {
	a    Action
	name string
}{
	{ActionAssertShared, "AssertShared"},
	{ActionDataOnBus, "DataOnBus"},
	{ActionSendGETS, "SendGETS"},
	{ActionSendGETM, "SendGETM"},
	{ActionDataToProc, "DataToProc"},
	{ActionRecordHit, "Hit"},
	{ActionRecordMiss, "Miss"},
	{ActionRecordSilentUpgrade, "SilentUpgrade"},
}

// Has reports whether all bits of b are set in a.
func (a Action) Has(b Action) bool {
	return a&b == b
}

func (a Action) String() string {
	if a == 0 {
		return "-"
	}

	names := make([]string, 0, len(actionNames))
	for _, n := range actionNames {
		if a.Has(n.a) {
			names = append(names, n.name)
		}
	}

	return strings.Join(names, "|")
}

// Transition is one entry of a protocol table.
type Transition struct {
	Next State

	// NextIfShared replaces Next when the shared line is asserted. StateX
	// means the shared line is not consulted.
	NextIfShared State

	Actions Action
}

type tableKey struct {
	state State
	kind  MsgKind
}

// Protocol is an immutable transition table of one coherence variant. It is
// safe to share among all the machines of a run.
type Protocol struct {
	name   string
	states []State
	table  map[tableKey]Transition
}

// Name returns the variant name, such as "MESI".
func (p *Protocol) Name() string {
	return p.name
}

// States returns the states a block can hold under the protocol, stable
// states first.
func (p *Protocol) States() []State {
	states := make([]State, len(p.states))
	copy(states, p.states)

	return states
}

// HasState reports whether s belongs to the protocol.
func (p *Protocol) HasState(s State) bool {
	for _, state := range p.states {
		if state == s {
			return true
		}
	}

	return false
}

// Lookup returns the transition for the state and message kind.
func (p *Protocol) Lookup(s State, kind MsgKind) (Transition, bool) {
	t, ok := p.table[tableKey{s, kind}]
	return t, ok
}

// WriteTable prints the transition table in a human-readable form.
func (p *Protocol) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "%s\t", p.name)
	for _, k := range AllKinds {
		fmt.Fprintf(tw, "%s\t", k)
	}
	fmt.Fprintln(tw)

	for _, s := range p.states {
		fmt.Fprintf(tw, "%s\t", s)
		for _, k := range AllKinds {
			fmt.Fprintf(tw, "%s\t", p.cell(s, k))
		}
		fmt.Fprintln(tw)
	}

	return tw.Flush()
}

func (p *Protocol) cell(s State, k MsgKind) string {
	t, ok := p.Lookup(s, k)
	if !ok {
		return "error"
	}

	next := t.Next.String()
	if t.NextIfShared != StateX {
		next += "/" + t.NextIfShared.String()
	}

	if t.Actions == 0 {
		return next
	}

	return next + " " + t.Actions.String()
}

var registry = []*Protocol{
	newMSI(),
	newMESI(),
	newMOSI(),
	newMOESI(),
	newMOESIF(),
}

// Protocols returns all supported variants.
func Protocols() []*Protocol {
	protocols := make([]*Protocol, len(registry))
	copy(protocols, registry)

	return protocols
}

// ProtocolByName finds a variant by its name, ignoring case.
func ProtocolByName(name string) (*Protocol, error) {
	for _, p := range registry {
		if strings.EqualFold(p.name, strings.TrimSpace(name)) {
			return p, nil
		}
	}

	names := make([]string, 0, len(registry))
	for _, p := range registry {
		names = append(names, p.name)
	}

	return nil, fmt.Errorf("unknown protocol %q, supported: %s",
		name, strings.Join(names, ", "))
}

// MustProtocol is like ProtocolByName but panics on unknown names.
func MustProtocol(name string) *Protocol {
	p, err := ProtocolByName(name)
	if err != nil {
		panic(err)
	}

	return p
}
