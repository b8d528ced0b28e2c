package bus

// SharedLine is the wired-OR signal snoopers assert when they keep a copy of
// the block requested by the current transaction.
type SharedLine struct {
	asserted bool
}

// Reset clears the line. The bus resets it when a transaction starts.
func (l *SharedLine) Reset() {
	l.asserted = false
}

// Assert sets the line until the next reset.
func (l *SharedLine) Assert() {
	l.asserted = true
}

// IsAsserted reads the line.
func (l *SharedLine) IsAsserted() bool {
	return l.asserted
}
