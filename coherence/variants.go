package coherence

func newMSI() *Protocol {
	return newSkeleton("MSI").build()
}

func newMESI() *Protocol {
	return newSkeleton("MESI").
		withExclusive().
		build()
}

func newMOSI() *Protocol {
	return newSkeleton("MOSI").
		withOwner().
		build()
}

func newMOESI() *Protocol {
	return newSkeleton("MOESI").
		withExclusive().
		withOwner().
		build()
}

// newMOESIF never reaches O because M downgrades to F, but the O rows are
// kept so that every state of the variant has handlers.
func newMOESIF() *Protocol {
	return newSkeleton("MOESIF").
		withExclusive().
		withOwner().
		withForwarder().
		build()
}
