package posterior

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/reedessick/gpr-isotropy/internal/healpix"
)

// Poisson treats every observation map as an independent Poisson draw with
// mean exposure*Ro per pixel. It implements both Evaluator and EpsEvaluator.
type Poisson struct {
	npix     int
	nmaps    float64
	counts   healpix.Map // summed over maps
	exposure healpix.Map
	lgamma   float64 // sum of log(n!) over every map and pixel
	prior    Prior

	// precision is the inverse kernel covariance, shared read-only.
	precision *mat.SymDense
}

var (
	_ Evaluator    = (*Poisson)(nil)
	_ EpsEvaluator = (*Poisson)(nil)
	_ Factory      = NewPoissonPair
)

// NewPoisson validates the inputs and precomputes everything that does not
// depend on Ro.
func NewPoisson(maps []healpix.Map, exposure healpix.Map, kernel Kernel, prior Prior) (*Poisson, error) {
	npix := len(exposure)
	if kernel == nil || prior == nil {
		return nil, fmt.Errorf("%w: kernel and prior are required", ErrShape)
	}
	if healpix.NPix(kernel.Nside()) != npix || healpix.NPix(prior.Nside()) != npix {
		return nil, fmt.Errorf("%w: exposure has %d pixels, kernel nside %d, prior nside %d",
			ErrShape, npix, kernel.Nside(), prior.Nside())
	}

	p := &Poisson{
		npix:     npix,
		nmaps:    float64(len(maps)),
		counts:   make(healpix.Map, npix),
		exposure: exposure.Clone(),
		prior:    prior,
	}
	for i, m := range maps {
		if len(m) != npix {
			return nil, fmt.Errorf("%w: map %d has %d pixels, want %d", ErrShape, i, len(m), npix)
		}
		floats.Add(p.counts, m)
		for _, n := range m {
			lg, _ := math.Lgamma(n + 1)
			p.lgamma += lg
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(kernel.Covariance()); !ok {
		return nil, ErrNotPositiveDefinite
	}
	p.precision = mat.NewSymDense(npix, nil)
	if err := chol.InverseTo(p.precision); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPositiveDefinite, err)
	}
	return p, nil
}

// NewPoissonPair adapts NewPoisson to Factory: one value serves as both evaluators.
func NewPoissonPair(maps []healpix.Map, exposure healpix.Map, kernel Kernel, prior Prior) (Evaluator, EpsEvaluator, error) {
	p, err := NewPoisson(maps, exposure, kernel, prior)
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}

// LogProb returns log prior + Poisson log likelihood. Fields outside the
// support (wrong size, negative or NaN rates) get -Inf.
func (p *Poisson) LogProb(ro healpix.Map) float64 {
	if len(ro) != p.npix {
		return math.Inf(-1)
	}
	lp := p.prior.LogProb(ro)
	if math.IsInf(lp, -1) || math.IsNaN(lp) {
		return math.Inf(-1)
	}

	ll := -p.lgamma
	for i, r := range ro {
		lambda := p.exposure[i] * r
		switch {
		case math.IsNaN(lambda) || lambda < 0:
			return math.Inf(-1)
		case lambda == 0:
			if p.counts[i] > 0 {
				return math.Inf(-1)
			}
		default:
			ll += p.counts[i]*math.Log(lambda) - p.nmaps*lambda
		}
	}
	return lp + ll
}

// EpsPosterior combines the kernel prior on Eps with a Gaussian
// approximation of the Poisson likelihood at each pixel:
//
//	y_p = N_p/(M λ_p) - 1,   σ²_p = (N_p+1)/(M λ_p)²
//
// where M is the number of maps. Pixels with no expected counts carry no
// information and fall back to the prior.
func (p *Poisson) EpsPosterior(ro healpix.Map) (EpsPosterior, error) {
	if len(ro) != p.npix {
		return EpsPosterior{}, fmt.Errorf("%w: field has %d pixels, want %d", ErrShape, len(ro), p.npix)
	}

	prec := mat.NewSymDense(p.npix, nil)
	prec.CopySym(p.precision)
	weighted := make([]float64, p.npix)
	for i, r := range ro {
		mu := p.nmaps * p.exposure[i] * r
		if !(mu > 0) || math.IsInf(mu, 1) {
			continue
		}
		n := p.counts[i]
		invVar := mu * mu / (n + 1)
		prec.SetSym(i, i, prec.At(i, i)+invVar)
		weighted[i] = invVar * (n/mu - 1)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(prec); !ok {
		return EpsPosterior{}, ErrNotPositiveDefinite
	}
	cov := mat.NewSymDense(p.npix, nil)
	if err := chol.InverseTo(cov); err != nil {
		return EpsPosterior{}, fmt.Errorf("%w: %v", ErrNotPositiveDefinite, err)
	}
	var mean mat.VecDense
	if err := chol.SolveVecTo(&mean, mat.NewVecDense(p.npix, weighted)); err != nil {
		return EpsPosterior{}, fmt.Errorf("%w: %v", ErrNotPositiveDefinite, err)
	}
	return EpsPosterior{Mean: mat.Col(nil, 0, &mean), Cov: cov}, nil
}
