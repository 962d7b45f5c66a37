package romodel

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"github.com/reedessick/gpr-isotropy/internal/healpix"
)

// Harmonic expands Ro (KindHarmonicReal) or log Ro (KindHarmonicExp) in
// spherical harmonics. Neither has numerics yet: every operation returns
// ErrUnsupportedVariant. The type exists so configs and checkpoints can name
// the variant and so coefficient validation has a home.
type Harmonic struct {
	kind    Kind
	nside   int
	roNside int
}

func newHarmonic(kind Kind, nside, roNside int) (*Harmonic, error) {
	if err := healpix.ValidateNside(nside); err != nil {
		return nil, err
	}
	if err := healpix.ValidateNside(roNside); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, ParamRoNside, err)
	}
	if roNside > nside {
		return nil, fmt.Errorf("%w: %s=%d exceeds nside=%d", ErrInvalidParams, ParamRoNside, roNside, nside)
	}
	return &Harmonic{kind: kind, nside: nside, roNside: roNside}, nil
}

func (m *Harmonic) Kind() Kind { return m.kind }
func (m *Harmonic) Nside() int { return m.nside }

func (m *Harmonic) Descriptor() Descriptor {
	return Descriptor{Kind: m.kind, Nside: m.nside, Params: map[string]int{ParamRoNside: m.roNside}}
}

func (m *Harmonic) NDim() (int, error) {
	return 0, m.unsupported("ndim")
}

func (m *Harmonic) Transform([]float64) (healpix.Map, error) {
	return nil, m.unsupported("transform")
}

func (m *Harmonic) Initialize([]healpix.Map, healpix.Map, int, rand.Source) (Ensemble, error) {
	return nil, m.unsupported("initialize")
}

func (m *Harmonic) unsupported(op string) error {
	return fmt.Errorf("%w: %s %s", ErrUnsupportedVariant, m.kind, op)
}

// LM indexes a spherical harmonic coefficient.
type LM struct {
	L, M int
}

// Alm is a set of harmonic coefficients.
type Alm map[LM]complex128

// conjTol is the absolute tolerance used when comparing coefficients.
const conjTol = 1e-12

// CheckConjugateSymmetry verifies a_{l,m} = conj(a_{l,-m}) for every stored
// coefficient, which is what makes the reconstructed field real. |m| must not
// exceed l and a_{l,0} must be real.
func CheckConjugateSymmetry(alm Alm) error {
	for lm, a := range alm {
		if lm.L < 0 || lm.M < -lm.L || lm.M > lm.L {
			return fmt.Errorf("%w: invalid index (l=%d, m=%d)", ErrInvalidParams, lm.L, lm.M)
		}
		if lm.M == 0 {
			if math.Abs(imag(a)) > conjTol {
				return fmt.Errorf("%w: a(%d,0)=%v is not real", ErrInvalidParams, lm.L, a)
			}
			continue
		}
		b, ok := alm[LM{L: lm.L, M: -lm.M}]
		if !ok {
			return fmt.Errorf("%w: a(%d,%d) has no partner a(%d,%d)", ErrInvalidParams, lm.L, lm.M, lm.L, -lm.M)
		}
		if cmplx.Abs(a-cmplx.Conj(b)) > conjTol {
			return fmt.Errorf("%w: a(%d,%d)=%v is not conj(a(%d,%d)=%v)", ErrInvalidParams, lm.L, lm.M, a, lm.L, -lm.M, b)
		}
	}
	return nil
}
