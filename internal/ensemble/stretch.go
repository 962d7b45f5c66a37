package ensemble

import (
	"context"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// DefaultScale is the stretch-move scale parameter a from Goodman & Weare (2010).
const DefaultScale = 2.0

// pcgStream is the second PCG word; the first comes from Config.Seed.
const pcgStream = 0x9e3779b97f4a7c15

// Stretch is the Goodman & Weare affine-invariant stretch move with the
// split-ensemble update: each half of the walkers moves using the other
// half as its complement, so proposals within a half are independent and can
// be evaluated in parallel.
type Stretch struct {
	cfg   Config
	scale float64
}

var _ Factory = NewStretch

// NewStretch validates cfg and returns a stretch-move engine.
func NewStretch(cfg Config) (Engine, error) {
	if cfg.NDim < 1 {
		return nil, fmt.Errorf("%w: ndim must be positive, got %d", ErrConfig, cfg.NDim)
	}
	if cfg.NWalkers < 2*cfg.NDim || cfg.NWalkers < 2 {
		return nil, fmt.Errorf("%w: need at least 2*ndim=%d walkers, got %d", ErrConfig, 2*cfg.NDim, cfg.NWalkers)
	}
	if cfg.Objective == nil {
		return nil, fmt.Errorf("%w: objective is required", ErrConfig)
	}
	if cfg.NWorkers < 1 {
		cfg.NWorkers = 1
	}
	return &Stretch{cfg: cfg, scale: DefaultScale}, nil
}

// Sample yields iterations steps starting from start. If the context is
// cancelled or the start is invalid, a single error is yielded and the
// stream ends.
func (s *Stretch) Sample(ctx context.Context, start Start, iterations int) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		pos, lp, src, err := s.prepare(ctx, start)
		if err != nil {
			yield(Step{}, err)
			return
		}
		rng := rand.New(src)

		for it := 0; it < iterations; it++ {
			if err := ctx.Err(); err != nil {
				yield(Step{}, err)
				return
			}
			accepted, err := s.step(ctx, rng, pos, lp)
			if err != nil {
				yield(Step{}, err)
				return
			}
			state, err := src.MarshalBinary()
			if err != nil {
				yield(Step{}, fmt.Errorf("saving rng state: %w", err))
				return
			}
			step := Step{
				Positions:   clone2D(pos),
				LogProb:     append([]float64(nil), lp...),
				EngineState: state,
				Accepted:    accepted,
			}
			if !yield(step, nil) {
				return
			}
		}
	}
}

func (s *Stretch) prepare(ctx context.Context, start Start) ([][]float64, []float64, *rand.PCG, error) {
	if len(start.Positions) != s.cfg.NWalkers {
		return nil, nil, nil, fmt.Errorf("%w: %d walkers, want %d", ErrStart, len(start.Positions), s.cfg.NWalkers)
	}
	for i, row := range start.Positions {
		if len(row) != s.cfg.NDim {
			return nil, nil, nil, fmt.Errorf("%w: walker %d has %d dims, want %d", ErrStart, i, len(row), s.cfg.NDim)
		}
	}
	pos := clone2D(start.Positions)

	src := rand.NewPCG(s.cfg.Seed, pcgStream)
	if len(start.EngineState) > 0 {
		if err := src.UnmarshalBinary(start.EngineState); err != nil {
			return nil, nil, nil, fmt.Errorf("%w: engine state: %v", ErrStart, err)
		}
	}

	var lp []float64
	switch {
	case start.LogProb == nil:
		lp = make([]float64, len(pos))
		if err := s.evaluate(ctx, pos, lp); err != nil {
			return nil, nil, nil, err
		}
	case len(start.LogProb) != len(pos):
		return nil, nil, nil, fmt.Errorf("%w: %d log-probabilities for %d walkers", ErrStart, len(start.LogProb), len(pos))
	default:
		lp = append([]float64(nil), start.LogProb...)
	}
	return pos, lp, src, nil
}

// step updates pos and lp in place and returns the number of accepted moves.
func (s *Stretch) step(ctx context.Context, rng *rand.Rand, pos [][]float64, lp []float64) (int, error) {
	n := len(pos)
	half := n / 2
	halves := [2][2]int{{0, half}, {half, n}}
	accepted := 0

	for h, active := range halves {
		other := halves[1-h]
		size := active[1] - active[0]

		zs := make([]float64, size)
		proposals := make([][]float64, size)
		for i := range proposals {
			k := active[0] + i
			j := other[0] + rng.IntN(other[1]-other[0])
			u := rng.Float64()
			z := math.Pow((s.scale-1)*u+1, 2) / s.scale
			zs[i] = z

			y := make([]float64, s.cfg.NDim)
			for d := range y {
				y[d] = pos[j][d] + z*(pos[k][d]-pos[j][d])
			}
			proposals[i] = y
		}

		newLP := make([]float64, size)
		if err := s.evaluate(ctx, proposals, newLP); err != nil {
			return accepted, err
		}

		for i := range proposals {
			k := active[0] + i
			q := float64(s.cfg.NDim-1)*math.Log(zs[i]) + newLP[i] - lp[k]
			if math.Log(rng.Float64()) < q {
				pos[k] = proposals[i]
				lp[k] = newLP[i]
				accepted++
			}
		}
	}
	return accepted, nil
}

// evaluate fills out with the objective at each point, at most NWorkers at a time.
func (s *Stretch) evaluate(ctx context.Context, points [][]float64, out []float64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.NWorkers)
	for i, p := range points {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v := s.cfg.Objective(p)
			if math.IsNaN(v) {
				v = math.Inf(-1)
			}
			out[i] = v
			return nil
		})
	}
	return g.Wait()
}

func clone2D(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	for i, row := range in {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
