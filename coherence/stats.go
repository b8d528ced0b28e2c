package coherence

import "fmt"

// Stats collects the counters of one simulation run. A nil *Stats discards
// everything.
type Stats struct {
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	SilentUpgrades uint64 `json:"silent_upgrades"`
}

// RecordHit counts a request served without bus traffic.
func (s *Stats) RecordHit() {
	if s == nil {
		return
	}

	s.Hits++
}

// RecordMiss counts a request that needed a bus transaction.
func (s *Stats) RecordMiss() {
	if s == nil {
		return
	}

	s.Misses++
}

// RecordSilentUpgrade counts an E to M transition.
func (s *Stats) RecordSilentUpgrade() {
	if s == nil {
		return
	}

	s.SilentUpgrades++
}

// Accesses returns the number of processor requests seen.
func (s Stats) Accesses() uint64 {
	return s.Hits + s.Misses
}

// MissRate returns misses over accesses, or 0 without accesses.
func (s Stats) MissRate() float64 {
	if s.Accesses() == 0 {
		return 0
	}

	return float64(s.Misses) / float64(s.Accesses())
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Hits += other.Hits
	s.Misses += other.Misses
	s.SilentUpgrades += other.SilentUpgrades
}

func (s Stats) String() string {
	return fmt.Sprintf("hits=%d misses=%d silent_upgrades=%d",
		s.Hits, s.Misses, s.SilentUpgrades)
}
