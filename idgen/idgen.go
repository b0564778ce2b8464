// Package idgen provides ID generators for tasks and peripherals.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// ID is a unique identifier represented as a uint64.
type ID uint64

// Generator produces unique numeric identifiers.
type Generator interface {
	Generate() ID
}

// New returns a sequential generator whose first emitted ID is 1.
func New() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() ID {
	return ID(atomic.AddUint64(&g.next, 1))
}

// StringGenerator produces unique string identifiers.
type StringGenerator interface {
	Generate() string
}

// NewSequential returns a string generator that emits "1", "2", ... and is
// therefore deterministic across runs.
func NewSequential() StringGenerator {
	return &sequentialStringGenerator{}
}

type sequentialStringGenerator struct {
	next uint64
}

func (g *sequentialStringGenerator) Generate() string {
	return strconv.FormatUint(atomic.AddUint64(&g.next, 1), 10)
}

// NewParallel returns a string generator backed by xid. IDs are globally
// unique but not deterministic.
func NewParallel() StringGenerator {
	return parallelGenerator{}
}

type parallelGenerator struct{}

func (parallelGenerator) Generate() string {
	return xid.New().String()
}
