package coherence

import (
	"fmt"
	"strings"
)

// State is the coherence state of one cache block.
type State uint8

// StateX is the zero value and is never held by a machine. The transient
// states are named after the stable state they left and the one they wait
// to reach.
const (
	StateX State = iota
	StateI
	StateS
	StateE
	StateO
	StateM
	StateF
	StateIS
	StateIM
	StateSM
	StateOM
	StateFM
)

var stateNames = [...]string{
	StateX:  "X",
	StateI:  "I",
	StateS:  "S",
	StateE:  "E",
	StateO:  "O",
	StateM:  "M",
	StateF:  "F",
	StateIS: "IS",
	StateIM: "IM",
	StateSM: "SM",
	StateOM: "OM",
	StateFM: "FM",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("State(%d)", uint8(s))
}

// IsTransient reports whether the block is waiting for DATA.
func (s State) IsTransient() bool {
	return s >= StateIS && s <= StateFM
}

// IsValid reports whether the block holds a readable copy.
func (s State) IsValid() bool {
	switch s {
	case StateS, StateE, StateO, StateM, StateF:
		return true
	default:
		return false
	}
}

// IsExclusive reports whether no other cache may hold a valid copy.
func (s State) IsExclusive() bool {
	return s == StateE || s == StateM
}

// IsOwner reports whether the block is the designated supplier among
// sharers, including while it waits to upgrade.
func (s State) IsOwner() bool {
	switch s {
	case StateO, StateF, StateOM, StateFM:
		return true
	default:
		return false
	}
}

// ParseState converts a state name such as "SM" into a State.
func ParseState(name string) (State, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for s, n := range stateNames {
		if State(s) != StateX && n == upper {
			return State(s), nil
		}
	}

	return StateX, fmt.Errorf("unknown coherence state %q", name)
}
