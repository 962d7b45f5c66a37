package posterior

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/reedessick/gpr-isotropy/internal/healpix"
)

// GammaPrior places an independent Gamma(shape, rate) prior on every pixel
// of the Ro field. Shape 1 and a small rate give a nearly flat positive prior.
type GammaPrior struct {
	nside int
	dist  distuv.Gamma
}

// NewGammaPrior returns a Gamma prior at resolution nside.
func NewGammaPrior(nside int, shape, rate float64) (*GammaPrior, error) {
	if err := healpix.ValidateNside(nside); err != nil {
		return nil, err
	}
	if !(shape > 0) || !(rate > 0) {
		return nil, fmt.Errorf("%w: gamma prior needs shape>0 and rate>0, got shape=%g rate=%g",
			ErrInvalidHyperparameter, shape, rate)
	}
	return &GammaPrior{nside: nside, dist: distuv.Gamma{Alpha: shape, Beta: rate}}, nil
}

func (p *GammaPrior) Nside() int { return p.nside }

func (p *GammaPrior) Descriptor() Descriptor {
	return Descriptor{
		Kind:   "gamma",
		Nside:  p.nside,
		Params: map[string]float64{"shape": p.dist.Alpha, "rate": p.dist.Beta},
	}
}

// LogProb sums the per-pixel log densities. Any non-positive rate has zero
// prior support.
func (p *GammaPrior) LogProb(ro healpix.Map) float64 {
	var lp float64
	for _, r := range ro {
		if !(r > 0) || math.IsInf(r, 1) {
			return math.Inf(-1)
		}
		lp += p.dist.LogProb(r)
	}
	return lp
}
