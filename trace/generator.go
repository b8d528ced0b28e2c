package trace

import (
	"errors"
	"math/rand"

	"github.com/sarchlab/cohsim/coherence"
)

const privateRegion = 0x100000

// GeneratorConfig describes a synthetic workload.
type GeneratorConfig struct {
	Procs     int
	Refs      int
	Lines     int
	BlockSize uint64

	// SharedFraction is the probability that a reference targets the region
	// all processors share instead of the processor's private region.
	SharedFraction float64

	// StoreFraction is the probability that a reference is a store.
	StoreFraction float64

	Seed int64
}

// DefaultGeneratorConfig returns a small mixed workload.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Procs:          4,
		Refs:           1000,
		Lines:          16,
		BlockSize:      64,
		SharedFraction: 0.5,
		StoreFraction:  0.3,
		Seed:           1,
	}
}

// Validate checks the configuration.
func (c GeneratorConfig) Validate() error {
	if c.Procs <= 0 {
		return errors.New("procs must be positive")
	}

	if c.Refs < 0 {
		return errors.New("refs must not be negative")
	}

	if c.Lines <= 0 {
		return errors.New("lines must be positive")
	}

	if c.BlockSize == 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return errors.New("block size must be a power of 2")
	}

	if c.SharedFraction < 0 || c.SharedFraction > 1 {
		return errors.New("shared fraction must be within [0, 1]")
	}

	if c.StoreFraction < 0 || c.StoreFraction > 1 {
		return errors.New("store fraction must be within [0, 1]")
	}

	return nil
}

// Generate creates a random trace. The same configuration always produces
// the same trace.
func Generate(cfg GeneratorConfig) ([]Reference, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	refs := make([]Reference, 0, cfg.Refs)

	for i := 0; i < cfg.Refs; i++ {
		proc := rng.Intn(cfg.Procs)

		base := uint64(0)
		if rng.Float64() >= cfg.SharedFraction {
			base = uint64(proc+1) * privateRegion
		}

		block := uint64(rng.Intn(cfg.Lines)) * cfg.BlockSize
		offset := uint64(rng.Int63n(int64(cfg.BlockSize)))

		kind := coherence.Load
		if rng.Float64() < cfg.StoreFraction {
			kind = coherence.Store
		}

		refs = append(refs, Reference{
			Proc: proc,
			Kind: kind,
			Addr: base + block + offset,
		})
	}

	return refs, nil
}
