package coherence

// Controller is what a BlockStateMachine needs from the rest of the cache
// hierarchy. The cache controller of a processor implements it for all of the
// processor's blocks.
type Controller interface {
	// SendGETS puts a read request for the block on the bus.
	SendGETS(addr uint64)

	// SendGETM puts a read-for-ownership request for the block on the bus.
	SendGETM(addr uint64)

	// SendDataToProc completes the local processor's pending request.
	SendDataToProc(addr uint64)

	// SendDataOnBus supplies the block to the processor dst.
	SendDataOnBus(addr uint64, dst int)

	// SetSharedLine asserts the shared line of the current bus transaction.
	SetSharedLine()

	// GetSharedLine reads the shared line of the current bus transaction.
	GetSharedLine() bool
}
