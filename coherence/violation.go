package coherence

import (
	"errors"
	"fmt"
)

// ViolationKind classifies a ProtocolViolation.
type ViolationKind int

// Violation kinds.
const (
	// ViolationUnsupportedMessage is a message the current state has no
	// transition for.
	ViolationUnsupportedMessage ViolationKind = iota

	// ViolationOutstandingRequest is a second local request issued while the
	// block still waits for DATA.
	ViolationOutstandingRequest

	// ViolationUnexpectedData is DATA observed while no transaction is
	// pending.
	ViolationUnexpectedData

	// ViolationMultipleSuppliers is more than one cache placing data on the
	// bus for the same request.
	ViolationMultipleSuppliers
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationUnsupportedMessage:
		return "unsupported message"
	case ViolationOutstandingRequest:
		return "second outstanding request"
	case ViolationUnexpectedData:
		return "unexpected data"
	case ViolationMultipleSuppliers:
		return "multiple suppliers"
	default:
		return fmt.Sprintf("ViolationKind(%d)", int(k))
	}
}

// ProtocolViolation reports a (state, message) pair the protocol has no
// transition for. It always indicates a modelling bug and is never retried.
type ProtocolViolation struct {
	Kind     ViolationKind
	Protocol string
	ProcID   int
	Addr     uint64
	State    State
	Msg      Msg
}

func (v *ProtocolViolation) Error() string {
	return fmt.Sprintf(
		"%s protocol violation (%s): proc %d, addr 0x%x, state %s, msg %s",
		v.Protocol, v.Kind, v.ProcID, v.Addr, v.State, v.Msg)
}

// AsProtocolViolation extracts a ProtocolViolation from an error chain.
func AsProtocolViolation(err error) (*ProtocolViolation, bool) {
	var v *ProtocolViolation
	if errors.As(err, &v) {
		return v, true
	}

	return nil, false
}
