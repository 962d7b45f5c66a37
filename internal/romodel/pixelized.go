package romodel

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/reedessick/gpr-isotropy/internal/healpix"
)

// extensive is the UDGrade power that conserves totals across resolutions.
const extensive = -2

// Pixelized gives every pixel of a coarse grid (RoNside) its own rate and
// spreads it over the finer session grid.
type Pixelized struct {
	nside   int
	roNside int
	ndim    int
}

// NewPixelized returns a pixelized model with parameters at roNside that
// transforms to nside. roNside must not exceed nside.
func NewPixelized(nside, roNside int) (*Pixelized, error) {
	if err := healpix.ValidateNside(nside); err != nil {
		return nil, err
	}
	if err := healpix.ValidateNside(roNside); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, ParamRoNside, err)
	}
	if roNside > nside {
		return nil, fmt.Errorf("%w: %s=%d exceeds nside=%d", ErrInvalidParams, ParamRoNside, roNside, nside)
	}
	return &Pixelized{nside: nside, roNside: roNside, ndim: healpix.NPix(roNside)}, nil
}

func (m *Pixelized) Kind() Kind         { return KindPixelized }
func (m *Pixelized) Nside() int         { return m.nside }
func (m *Pixelized) RoNside() int       { return m.roNside }
func (m *Pixelized) NDim() (int, error) { return m.ndim, nil }

func (m *Pixelized) Descriptor() Descriptor {
	return Descriptor{Kind: KindPixelized, Nside: m.nside, Params: map[string]int{ParamRoNside: m.roNside}}
}

// Transform upgrades the coarse field to nside, conserving its total.
func (m *Pixelized) Transform(params []float64) (healpix.Map, error) {
	if err := checkDim(params, m.ndim); err != nil {
		return nil, err
	}
	return healpix.UDGrade(healpix.Map(params), m.nside, extensive)
}

// Initialize degrades maps and exposure to RoNside and draws each coarse
// pixel's rate from Gamma(counts+1)/exposure independently.
func (m *Pixelized) Initialize(maps []healpix.Map, exposure healpix.Map, nwalkers int, src rand.Source) (Ensemble, error) {
	if nwalkers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWalkers, nwalkers)
	}

	counts := make(healpix.Map, m.ndim)
	for i, mp := range maps {
		coarse, err := healpix.UDGrade(mp, m.roNside, extensive)
		if err != nil {
			return nil, fmt.Errorf("map %d: %w", i, err)
		}
		for p, v := range coarse {
			counts[p] += v
		}
	}
	exp, err := healpix.UDGrade(exposure, m.roNside, extensive)
	if err != nil {
		return nil, fmt.Errorf("exposure: %w", err)
	}

	state := make(Ensemble, nwalkers)
	for i := range state {
		state[i] = make([]float64, m.ndim)
	}
	for pix := 0; pix < m.ndim; pix++ {
		if exp[pix] <= 0 {
			return nil, fmt.Errorf("%w: pixel %d at %s=%d has exposure %g",
				ErrNonPositiveExposure, pix, ParamRoNside, m.roNside, exp[pix])
		}
		if counts[pix] < 0 {
			return nil, fmt.Errorf("%w: pixel %d has %g", ErrNegativeCounts, pix, counts[pix])
		}
		g := distuv.Gamma{Alpha: counts[pix] + 1, Beta: 1, Src: src}
		for i := range state {
			state[i][pix] = g.Rand() / exp[pix]
		}
	}
	return state, nil
}
