// Package posterior defines the probability model the sampler explores and
// ships the default Poisson implementation.
//
// Ro is the sky rate field; Eps is a fractional perturbation on top of it
// with a Gaussian-process prior (the Kernel). Given a sampled Ro the posterior
// for Eps is Gaussian and computed in closed form.
package posterior

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/reedessick/gpr-isotropy/internal/healpix"
)

var (
	// ErrShape is returned when maps, exposure, kernel and prior disagree in size.
	ErrShape = errors.New("posterior inputs disagree in shape")
	// ErrNotPositiveDefinite is returned for a kernel whose covariance cannot be factorized.
	ErrNotPositiveDefinite = errors.New("kernel covariance is not positive definite")
	// ErrInvalidHyperparameter is returned for out-of-range prior or kernel settings.
	ErrInvalidHyperparameter = errors.New("invalid hyperparameter")
)

// Descriptor identifies a kernel or prior in persisted output.
type Descriptor struct {
	Kind   string             `json:"kind"`
	Nside  int                `json:"nside"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Kernel is the Gaussian-process covariance of Eps over pixels.
type Kernel interface {
	Nside() int
	Descriptor() Descriptor
	// Covariance returns the npix x npix covariance. Callers must not modify it.
	Covariance() *mat.SymDense
}

// Prior is the prior on the Ro field.
type Prior interface {
	Nside() int
	Descriptor() Descriptor
	LogProb(ro healpix.Map) float64
}

// Evaluator returns the log posterior of a candidate Ro field.
// Implementations must be safe for concurrent use.
type Evaluator interface {
	LogProb(ro healpix.Map) float64
}

// EpsEvaluator additionally derives the conditional posterior of Eps.
type EpsEvaluator interface {
	Evaluator
	EpsPosterior(ro healpix.Map) (EpsPosterior, error)
}

// Factory builds the Ro and Ro+Eps evaluators for a data set.
type Factory func(maps []healpix.Map, exposure healpix.Map, kernel Kernel, prior Prior) (Evaluator, EpsEvaluator, error)

// EpsPosterior is the Gaussian posterior of Eps given one Ro field.
type EpsPosterior struct {
	Mean []float64
	Cov  *mat.SymDense
}

// EpsSummary is the persisted form of an EpsPosterior: mean and marginal
// variance per pixel.
type EpsSummary struct {
	Mean []float64
	Var  []float64
}

// Summary reduces the posterior to its mean and per-pixel variance.
func (p EpsPosterior) Summary() EpsSummary {
	s := EpsSummary{Mean: append([]float64(nil), p.Mean...)}
	if p.Cov != nil {
		n := p.Cov.SymmetricDim()
		s.Var = make([]float64, n)
		for i := 0; i < n; i++ {
			s.Var[i] = p.Cov.At(i, i)
		}
	}
	return s
}
