// Package id generates identifiers for messages and bus transactions.
package id

import (
	"log"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs.
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

var (
	generatorMutex        sync.Mutex
	generatorInstantiated bool
	generator             IDGenerator
)

// NewIDGenerator returns a sequential ID generator that is not shared with
// the rest of the program.
func NewIDGenerator() IDGenerator {
	return &sequentialIDGenerator{}
}

// UseSequentialIDGenerator configures the global generator to generate IDs
// in sequence. IDs are deterministic across runs.
func UseSequentialIDGenerator() {
	install(&sequentialIDGenerator{})
}

// UseParallelIDGenerator configures the global generator to generate globally
// unique IDs. The IDs generated will not be deterministic anymore.
//
// Selecting the generator that is already installed is a no-op.
func UseParallelIDGenerator() {
	install(parallelIDGenerator{})
}

func install(g IDGenerator) {
	generatorMutex.Lock()
	defer generatorMutex.Unlock()

	if generatorInstantiated {
		if reflect.TypeOf(generator) == reflect.TypeOf(g) {
			return
		}

		log.Panic("cannot change id generator type after using it")
	}

	generator = g
	generatorInstantiated = true
}

// Generate returns a new ID from the global generator. A sequential
// generator is installed on first use if none was configured.
func Generate() string {
	generatorMutex.Lock()
	if !generatorInstantiated {
		generator = &sequentialIDGenerator{}
		generatorInstantiated = true
	}
	g := generator
	generatorMutex.Unlock()

	return g.Generate()
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	id := strconv.FormatUint(idNumber, 10)

	return id
}

type parallelIDGenerator struct{}

func (g parallelIDGenerator) Generate() string {
	return xid.New().String()
}
