package coherence

type tableBuilder struct {
	p *Protocol
}

func newTableBuilder(name string) *tableBuilder {
	return &tableBuilder{
		p: &Protocol{
			name:  name,
			table: make(map[tableKey]Transition),
		},
	}
}

func (b *tableBuilder) addStates(states ...State) *tableBuilder {
	for _, s := range states {
		if !b.p.HasState(s) {
			b.p.states = append(b.p.states, s)
		}
	}

	return b
}

// on sets or replaces one table entry.
func (b *tableBuilder) on(
	s State,
	kind MsgKind,
	next State,
	actions Action,
) *tableBuilder {
	b.p.table[tableKey{s, kind}] = Transition{Next: next, Actions: actions}
	return b
}

func (b *tableBuilder) onShared(
	s State,
	kind MsgKind,
	next, nextIfShared State,
	actions Action,
) *tableBuilder {
	b.p.table[tableKey{s, kind}] = Transition{
		Next:         next,
		NextIfShared: nextIfShared,
		Actions:      actions,
	}

	return b
}

func (b *tableBuilder) build() *Protocol {
	stable := make([]State, 0, len(b.p.states))
	transient := make([]State, 0, len(b.p.states))

	for s := StateI; s <= StateFM; s++ {
		if !b.p.HasState(s) {
			continue
		}

		if s.IsTransient() {
			transient = append(transient, s)
		} else {
			stable = append(stable, s)
		}
	}

	b.p.states = append(stable, transient...)

	return b.p
}

const (
	hit          = ActionDataToProc | ActionRecordHit
	supply       = ActionAssertShared | ActionDataOnBus
	fill         = ActionDataToProc
	getS         = ActionSendGETS | ActionRecordMiss
	getM         = ActionSendGETM | ActionRecordMiss
	noAction     = Action(0)
	assertShared = ActionAssertShared
)

// newSkeleton builds the MSI rows every variant shares.
func newSkeleton(name string) *tableBuilder {
	b := newTableBuilder(name).
		addStates(StateI, StateS, StateM, StateIS, StateIM, StateSM)

	b.on(StateI, Load, StateIS, getS).
		on(StateI, Store, StateIM, getM).
		on(StateI, GetS, StateI, noAction).
		on(StateI, GetM, StateI, noAction).
		on(StateI, Data, StateI, noAction)

	b.on(StateS, Load, StateS, hit).
		on(StateS, Store, StateSM, getM).
		on(StateS, GetS, StateS, assertShared).
		on(StateS, GetM, StateI, noAction)

	b.on(StateM, Load, StateM, hit).
		on(StateM, Store, StateM, hit).
		on(StateM, GetS, StateS, supply).
		on(StateM, GetM, StateI, ActionDataOnBus)

	b.on(StateIS, GetS, StateIS, noAction).
		on(StateIS, GetM, StateIS, noAction).
		on(StateIS, Data, StateS, fill)

	b.on(StateIM, GetS, StateIM, noAction).
		on(StateIM, GetM, StateIM, noAction).
		on(StateIM, Data, StateM, fill)

	b.on(StateSM, GetS, StateSM, assertShared).
		on(StateSM, GetM, StateSM, noAction).
		on(StateSM, Data, StateM, fill)

	return b
}

// withExclusive adds the E state. A read miss that finds the shared line
// unset fills in E.
func (b *tableBuilder) withExclusive() *tableBuilder {
	b.addStates(StateE)

	b.on(StateE, Load, StateE, hit).
		on(StateE, Store, StateM, hit|ActionRecordSilentUpgrade).
		on(StateE, GetS, StateS, supply).
		on(StateE, GetM, StateI, ActionDataOnBus)

	b.onShared(StateIS, Data, StateE, StateS, fill)

	return b
}

// withOwner adds O and OM. M downgrades to O on GETS.
func (b *tableBuilder) withOwner() *tableBuilder {
	b.addStates(StateO, StateOM)
	b.addOwnerRows(StateO, StateOM)
	b.on(StateM, GetS, StateO, supply)

	return b
}

// withForwarder adds F and FM. M and E downgrade to F on GETS.
func (b *tableBuilder) withForwarder() *tableBuilder {
	b.addStates(StateF, StateFM)
	b.addOwnerRows(StateF, StateFM)
	b.on(StateM, GetS, StateF, supply).
		on(StateE, GetS, StateF, supply)

	return b
}

func (b *tableBuilder) addOwnerRows(owner, upgrading State) {
	b.on(owner, Load, owner, hit).
		on(owner, Store, upgrading, getM).
		on(owner, GetS, owner, supply).
		on(owner, GetM, StateI, supply)

	b.on(upgrading, GetS, upgrading, supply).
		on(upgrading, GetM, StateIM, ActionDataOnBus).
		on(upgrading, Data, StateM, fill)
}
