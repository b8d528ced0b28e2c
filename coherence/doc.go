// Package coherence implements snooping cache-coherence protocols as
// per-block state machines.
//
// A BlockStateMachine exists for every (processor, block address) pair. It
// reacts to the local processor's LOAD and STORE requests through
// ProcessCacheRequest and to bus traffic issued by other processors through
// ProcessSnoopRequest. Everything outside the block, such as the bus, memory,
// the block table and the statistics sink, is reached through the Controller
// interface and the Stats handle, so a machine can be driven in isolation.
//
// The five supported variants, MSI, MESI, MOSI, MOESI and MOESIF, are
// transition tables built from one shared skeleton. A (state, message) pair
// that has no entry in the table is reported as a *ProtocolViolation.
package coherence
