// Package healpix implements the subset of the HEALPix sphere tessellation
// needed to sample sky rate fields: pixel counts and resolution changes.
//
// All maps use NESTED ordering. In that scheme the children of pixel p at a
// resolution r times finer are the contiguous block [p*r, p*r+r), which makes
// up- and downgrading a pure index computation.
package healpix

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidNside is returned for resolutions that are not a positive power of two.
var ErrInvalidNside = errors.New("nside must be a positive power of two")

// MaxNside bounds the resolutions accepted here. 2^13 is already ~800M pixels.
const MaxNside = 1 << 13

// Map is a sky map: one value per pixel, NESTED ordering.
type Map []float64

// Sum returns the total over all pixels.
func (m Map) Sum() float64 {
	return floats.Sum(m)
}

// Clone returns a copy of the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	copy(out, m)
	return out
}

// Fill returns a map of npix pixels all set to v.
func Fill(npix int, v float64) Map {
	m := make(Map, npix)
	for i := range m {
		m[i] = v
	}
	return m
}

// ValidateNside reports whether nside is usable as a resolution.
func ValidateNside(nside int) error {
	if nside < 1 || nside > MaxNside || bits.OnesCount(uint(nside)) != 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidNside, nside)
	}
	return nil
}

// NPix returns the number of pixels at resolution nside (12*nside^2).
// The caller is expected to have validated nside.
func NPix(nside int) int {
	return 12 * nside * nside
}

// NsideOf recovers the resolution of a map from its pixel count.
func NsideOf(npix int) (int, error) {
	if npix < 12 || npix%12 != 0 {
		return 0, fmt.Errorf("%w: %d pixels is not 12*nside^2", ErrInvalidNside, npix)
	}
	nside := int(math.Round(math.Sqrt(float64(npix / 12))))
	if NPix(nside) != npix {
		return 0, fmt.Errorf("%w: %d pixels is not 12*nside^2", ErrInvalidNside, npix)
	}
	if err := ValidateNside(nside); err != nil {
		return 0, err
	}
	return nside, nil
}

// UDGrade resamples m to nsideOut. Output values are scaled by
// (nsideOut/nsideIn)^power; power=-2 treats the map as an extensive quantity
// (counts, integrated rate) so the total over the sphere is conserved, while
// power=0 treats it as intensive and averages on downgrade.
func UDGrade(m Map, nsideOut int, power float64) (Map, error) {
	nsideIn, err := NsideOf(len(m))
	if err != nil {
		return nil, err
	}
	if err := ValidateNside(nsideOut); err != nil {
		return nil, err
	}

	ratio := math.Pow(float64(nsideOut)/float64(nsideIn), power)
	switch {
	case nsideOut == nsideIn:
		return m.Clone(), nil

	case nsideOut > nsideIn:
		r := (nsideOut / nsideIn) * (nsideOut / nsideIn)
		out := make(Map, NPix(nsideOut))
		for p, v := range m {
			child := v * ratio
			for c := p * r; c < (p+1)*r; c++ {
				out[c] = child
			}
		}
		return out, nil

	default:
		r := (nsideIn / nsideOut) * (nsideIn / nsideOut)
		out := make(Map, NPix(nsideOut))
		for q := range out {
			out[q] = floats.Sum(m[q*r:(q+1)*r]) / float64(r) * ratio
		}
		return out, nil
	}
}
