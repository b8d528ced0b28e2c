package coherence

import (
	"fmt"
	"io"

	"github.com/sarchlab/cohsim/sim/hooking"
)

// HookPosTransition marks a committed state transition.
var HookPosTransition = &hooking.HookPos{Name: "Coherence Transition"}

// TransitionInfo is the hook item of HookPosTransition.
type TransitionInfo struct {
	Protocol string
	ProcID   int
	Addr     uint64
	From     State
	To       State
	Msg      Msg
	Actions  Action
}

// BlockStateMachine holds the coherence state of one block in one
// processor's cache.
type BlockStateMachine struct {
	hooking.HookableBase

	protocol *Protocol
	procID   int
	addr     uint64
	state    State
	ctrl     Controller
	stats    *Stats
}

// NewBlockStateMachine creates a machine in state I. The stats handle may be
// nil.
func NewBlockStateMachine(
	protocol *Protocol,
	procID int,
	addr uint64,
	ctrl Controller,
	stats *Stats,
) *BlockStateMachine {
	return &BlockStateMachine{
		protocol: protocol,
		procID:   procID,
		addr:     addr,
		state:    StateI,
		ctrl:     ctrl,
		stats:    stats,
	}
}

// State returns the current state of the block.
func (m *BlockStateMachine) State() State {
	return m.state
}

// Protocol returns the variant the machine follows.
func (m *BlockStateMachine) Protocol() *Protocol {
	return m.protocol
}

// ProcID returns the processor that owns the machine.
func (m *BlockStateMachine) ProcID() int {
	return m.procID
}

// Addr returns the block address.
func (m *BlockStateMachine) Addr() uint64 {
	return m.addr
}

// ProcessCacheRequest handles a LOAD or STORE from the local processor.
func (m *BlockStateMachine) ProcessCacheRequest(msg Msg) error {
	if !msg.Kind.IsCacheRequest() || msg.Addr != m.addr {
		return m.violation(ViolationUnsupportedMessage, msg)
	}

	if m.state.IsTransient() {
		return m.violation(ViolationOutstandingRequest, msg)
	}

	return m.apply(msg)
}

// ProcessSnoopRequest handles GETS, GETM or DATA observed on the bus.
func (m *BlockStateMachine) ProcessSnoopRequest(msg Msg) error {
	if !msg.Kind.IsSnoopRequest() || msg.Addr != m.addr {
		return m.violation(ViolationUnsupportedMessage, msg)
	}

	return m.apply(msg)
}

func (m *BlockStateMachine) apply(msg Msg) error {
	t, ok := m.protocol.Lookup(m.state, msg.Kind)
	if !ok {
		if msg.Kind == Data {
			return m.violation(ViolationUnexpectedData, msg)
		}

		return m.violation(ViolationUnsupportedMessage, msg)
	}

	from := m.state
	next := t.Next
	if t.NextIfShared != StateX && m.ctrl.GetSharedLine() {
		next = t.NextIfShared
	}

	m.state = next

	m.emit(t.Actions, msg)

	if m.NumHooks() > 0 {
		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    HookPosTransition,
			Item: TransitionInfo{
				Protocol: m.protocol.name,
				ProcID:   m.procID,
				Addr:     m.addr,
				From:     from,
				To:       next,
				Msg:      msg,
				Actions:  t.Actions,
			},
		})
	}

	return nil
}

func (m *BlockStateMachine) emit(actions Action, msg Msg) {
	if actions.Has(ActionAssertShared) {
		m.ctrl.SetSharedLine()
	}

	if actions.Has(ActionDataOnBus) {
		m.ctrl.SendDataOnBus(m.addr, msg.Src)
	}

	if actions.Has(ActionSendGETS) {
		m.ctrl.SendGETS(m.addr)
	}

	if actions.Has(ActionSendGETM) {
		m.ctrl.SendGETM(m.addr)
	}

	if actions.Has(ActionDataToProc) {
		m.ctrl.SendDataToProc(m.addr)
	}

	if actions.Has(ActionRecordHit) {
		m.stats.RecordHit()
	}

	if actions.Has(ActionRecordMiss) {
		m.stats.RecordMiss()
	}

	if actions.Has(ActionRecordSilentUpgrade) {
		m.stats.RecordSilentUpgrade()
	}
}

func (m *BlockStateMachine) violation(kind ViolationKind, msg Msg) error {
	return &ProtocolViolation{
		Kind:     kind,
		Protocol: m.protocol.name,
		ProcID:   m.procID,
		Addr:     m.addr,
		State:    m.state,
		Msg:      msg,
	}
}

// Dump writes the machine state for debugging.
func (m *BlockStateMachine) Dump(w io.Writer) {
	fmt.Fprintf(w, "%s proc %d block 0x%x: %s\n",
		m.protocol.name, m.procID, m.addr, m.state)
}

func (m *BlockStateMachine) String() string {
	return fmt.Sprintf("%s[%d:0x%x]=%s",
		m.protocol.name, m.procID, m.addr, m.state)
}
