package simulation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/cohsim/coherence"
)

// MaxProcs is the largest number of processors a simulation can have.
const MaxProcs = 1024

// Config holds the parameters of a simulation.
type Config struct {
	Protocol        string  `yaml:"protocol"`
	Procs           int     `yaml:"procs"`
	BlockSize       uint64  `yaml:"block_size"`
	BusLatency      float64 `yaml:"bus_latency"`
	MemoryLatency   float64 `yaml:"memory_latency"`
	HitLatency      float64 `yaml:"hit_latency"`
	CheckInvariants bool    `yaml:"check_invariants"`
}

// DefaultConfig returns a 4-processor MESI system.
func DefaultConfig() Config {
	return Config{
		Protocol:        "MESI",
		Procs:           4,
		BlockSize:       64,
		BusLatency:      1,
		MemoryLatency:   10,
		HitLatency:      1,
		CheckInvariants: true,
	}
}

// LoadConfig reads a YAML file. Fields missing from the file keep their
// default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes a YAML document into a validated Config.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that the configuration can build a simulation.
func (c Config) Validate() error {
	if _, err := coherence.ProtocolByName(c.Protocol); err != nil {
		return err
	}

	if c.Procs <= 0 {
		return fmt.Errorf("procs must be positive, got %d", c.Procs)
	}

	if c.Procs > MaxProcs {
		return fmt.Errorf("procs must be at most %d, got %d", MaxProcs, c.Procs)
	}

	if c.BlockSize == 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block size %d is not a power of 2", c.BlockSize)
	}

	if c.BusLatency < 0 || c.MemoryLatency < 0 || c.HitLatency < 0 {
		return errors.New("latencies must not be negative")
	}

	return nil
}

// Write encodes the configuration as YAML.
func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(c); err != nil {
		return err
	}

	return enc.Close()
}
