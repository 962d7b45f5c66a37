// Package ensemble runs affine-invariant ensemble samplers.
//
// An Engine advances a set of walkers one step at a time and hands each step
// back through a range-over-func iterator, so the caller sees exactly one
// suspension per iteration and decides what to do between steps.
package ensemble

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrConfig is returned for an unusable engine configuration.
	ErrConfig = errors.New("invalid ensemble configuration")
	// ErrStart is returned when a start state does not match the configuration.
	ErrStart = errors.New("invalid ensemble start state")
)

// Objective is the log-probability the walkers sample from. It must be pure
// and safe for concurrent calls; the engine evaluates walkers in parallel.
type Objective func(params []float64) float64

// Config fixes an engine for a session.
type Config struct {
	NWalkers  int
	NDim      int
	Objective Objective
	// NWorkers bounds concurrent objective evaluations within one step.
	NWorkers int
	// Seed initializes the random stream when a Start carries no EngineState.
	Seed uint64
}

// Start is where a stream begins: a fresh ensemble or a resumed one.
type Start struct {
	Positions [][]float64
	// LogProb may be nil, in which case the engine evaluates the positions.
	LogProb []float64
	// EngineState may be nil, in which case the stream is seeded from Config.Seed.
	EngineState []byte
}

// Step is one completed iteration.
type Step struct {
	Positions   [][]float64
	LogProb     []float64
	EngineState []byte
	Accepted    int
}

// Engine produces a finite stream of steps. A stream is not restartable, but a
// new one can begin from any Step by passing it back as a Start.
type Engine interface {
	Sample(ctx context.Context, start Start, iterations int) iter.Seq2[Step, error]
}

// Factory builds an Engine for a session.
type Factory func(cfg Config) (Engine, error)
