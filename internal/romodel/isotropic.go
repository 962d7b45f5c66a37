package romodel

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/reedessick/gpr-isotropy/internal/healpix"
)

// Isotropic is a single rate shared by every pixel.
type Isotropic struct {
	nside int
	npix  int
}

// NewIsotropic returns an isotropic model at resolution nside.
func NewIsotropic(nside int) (*Isotropic, error) {
	if err := healpix.ValidateNside(nside); err != nil {
		return nil, err
	}
	return &Isotropic{nside: nside, npix: healpix.NPix(nside)}, nil
}

func (m *Isotropic) Kind() Kind         { return KindIsotropic }
func (m *Isotropic) Nside() int         { return m.nside }
func (m *Isotropic) NDim() (int, error) { return 1, nil }

func (m *Isotropic) Descriptor() Descriptor {
	return Descriptor{Kind: KindIsotropic, Nside: m.nside}
}

// Transform broadcasts params[0] to every pixel.
func (m *Isotropic) Transform(params []float64) (healpix.Map, error) {
	if err := checkDim(params, 1); err != nil {
		return nil, err
	}
	return healpix.Fill(m.npix, params[0]), nil
}

// Initialize draws the walkers' rates from Gamma(N+1), where N is the total
// observed count across all maps, and converts counts to a rate by dividing
// by the total exposure.
func (m *Isotropic) Initialize(maps []healpix.Map, exposure healpix.Map, nwalkers int, src rand.Source) (Ensemble, error) {
	if nwalkers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWalkers, nwalkers)
	}
	total := exposure.Sum()
	if total <= 0 {
		return nil, fmt.Errorf("%w: total exposure %g", ErrNonPositiveExposure, total)
	}

	var counts float64
	for _, mp := range maps {
		counts += mp.Sum()
	}
	if counts < 0 {
		return nil, fmt.Errorf("%w: total %g", ErrNegativeCounts, counts)
	}

	g := distuv.Gamma{Alpha: counts + 1, Beta: 1, Src: src}
	state := make(Ensemble, nwalkers)
	for i := range state {
		state[i] = []float64{g.Rand() / total}
	}
	return state, nil
}
