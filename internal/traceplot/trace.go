// Package traceplot renders walker traces from a checkpoint: static PNGs via
// gonum/plot and a single interactive HTML page via go-echarts.
package traceplot

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/reedessick/gpr-isotropy/internal/checkpoint"
)

// ErrEmpty is returned when there are no records to plot.
var ErrEmpty = errors.New("no iteration records to plot")

// Trace is a checkpoint transposed for plotting.
type Trace struct {
	Iterations []float64
	// Params[d][w][k] is dimension d of walker w at Iterations[k].
	Params [][][]float64
	// LogProb[w][k] is walker w's log-probability at Iterations[k].
	LogProb [][]float64
	// NDim is the full dimension; Params may hold fewer when capped.
	NDim int
}

// Collect reads records in order, keeping at most maxDims parameter
// dimensions (all when maxDims <= 0).
func Collect(records iter.Seq2[checkpoint.Record, error], maxDims int) (*Trace, error) {
	tr := &Trace{}
	var nwalkers int
	for r, err := range records {
		if err != nil {
			return nil, err
		}
		if len(tr.Iterations) == 0 {
			nwalkers = len(r.Positions)
			if nwalkers == 0 {
				return nil, fmt.Errorf("iteration %d has no walkers", r.Iteration)
			}
			tr.NDim = len(r.Positions[0])
			keep := tr.NDim
			if maxDims > 0 && maxDims < keep {
				keep = maxDims
			}
			tr.Params = make([][][]float64, keep)
			for d := range tr.Params {
				tr.Params[d] = make([][]float64, nwalkers)
			}
			tr.LogProb = make([][]float64, nwalkers)
		}
		if len(r.Positions) != nwalkers || len(r.LogProb) != nwalkers {
			return nil, fmt.Errorf("iteration %d has %d walkers, want %d", r.Iteration, len(r.Positions), nwalkers)
		}

		tr.Iterations = append(tr.Iterations, float64(r.Iteration))
		for w, row := range r.Positions {
			if len(row) != tr.NDim {
				return nil, fmt.Errorf("iteration %d walker %d has %d dims, want %d", r.Iteration, w, len(row), tr.NDim)
			}
			for d := range tr.Params {
				tr.Params[d][w] = append(tr.Params[d][w], row[d])
			}
			tr.LogProb[w] = append(tr.LogProb[w], r.LogProb[w])
		}
	}
	if len(tr.Iterations) == 0 {
		return nil, ErrEmpty
	}
	return tr, nil
}

// NWalkers returns the number of walkers traced.
func (t *Trace) NWalkers() int { return len(t.LogProb) }

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
