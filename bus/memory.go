package bus

// Memory is the backing store of the bus. It only tracks which data version
// of every block it holds.
type Memory struct {
	versions map[uint64]uint64

	reads      uint64
	writeBacks uint64
}

// NewMemory creates a memory where every block holds version 0.
func NewMemory() *Memory {
	return &Memory{versions: make(map[uint64]uint64)}
}

// Read returns the version of the block and counts the access.
func (m *Memory) Read(addr uint64) uint64 {
	m.reads++
	return m.versions[addr]
}

// WriteBack stores a dirty version evicted from ownership.
func (m *Memory) WriteBack(addr, version uint64) {
	m.writeBacks++
	m.versions[addr] = version
}

// Version returns the version of the block without counting an access.
func (m *Memory) Version(addr uint64) uint64 {
	return m.versions[addr]
}

// Reads returns how many times the memory supplied data.
func (m *Memory) Reads() uint64 {
	return m.reads
}

// WriteBacks returns how many write-backs the memory received.
func (m *Memory) WriteBacks() uint64 {
	return m.writeBacks
}
