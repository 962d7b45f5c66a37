package posterior

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/reedessick/gpr-isotropy/internal/healpix"
)

// ConstantKernel is white noise plus a fully correlated offset:
//
//	K_ij = variance*δ_ij + offset
//
// The offset term models a common fractional shift of the whole sky.
type ConstantKernel struct {
	nside    int
	variance float64
	offset   float64
	cov      *mat.SymDense
}

// NewConstantKernel builds the kernel at resolution nside.
func NewConstantKernel(nside int, variance, offset float64) (*ConstantKernel, error) {
	if err := healpix.ValidateNside(nside); err != nil {
		return nil, err
	}
	if !(variance > 0) || offset < 0 {
		return nil, fmt.Errorf("%w: kernel needs variance>0 and offset>=0, got variance=%g offset=%g",
			ErrInvalidHyperparameter, variance, offset)
	}

	npix := healpix.NPix(nside)
	cov := mat.NewSymDense(npix, nil)
	for i := 0; i < npix; i++ {
		for j := i; j < npix; j++ {
			v := offset
			if i == j {
				v += variance
			}
			cov.SetSym(i, j, v)
		}
	}
	return &ConstantKernel{nside: nside, variance: variance, offset: offset, cov: cov}, nil
}

func (k *ConstantKernel) Nside() int                { return k.nside }
func (k *ConstantKernel) Covariance() *mat.SymDense { return k.cov }

func (k *ConstantKernel) Descriptor() Descriptor {
	return Descriptor{
		Kind:   "constant",
		Nside:  k.nside,
		Params: map[string]float64{"variance": k.variance, "offset": k.offset},
	}
}
