// Package romodel holds the parameterizations of the sky rate field Ro.
//
// A Model turns a compact parameter vector into a full-resolution sky map and
// proposes data-informed starting ensembles for the sampler. Models are
// immutable once built and safe for concurrent use.
package romodel

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/reedessick/gpr-isotropy/internal/healpix"
)

var (
	// ErrDimension is returned when a parameter vector does not have NDim entries.
	ErrDimension = errors.New("parameter vector has wrong dimension")
	// ErrUnsupportedVariant marks operations on a model variant that has no numerics yet.
	ErrUnsupportedVariant = errors.New("ro model variant is not implemented")
	// ErrInvalidParams is returned when named parameters do not match the variant.
	ErrInvalidParams = errors.New("invalid ro model parameters")
	// ErrNonPositiveExposure is returned when a starting rate would divide by zero exposure.
	ErrNonPositiveExposure = errors.New("exposure must be positive")
	// ErrInvalidWalkers is returned for a non-positive walker count.
	ErrInvalidWalkers = errors.New("walker count must be positive")
	// ErrNegativeCounts is returned when observed maps hold negative counts.
	ErrNegativeCounts = errors.New("observed counts must be non-negative")
)

// Kind tags a model variant.
type Kind string

const (
	KindIsotropic    Kind = "isotropic"
	KindPixelized    Kind = "pixelized"
	KindHarmonicReal Kind = "harmonic_real"
	KindHarmonicExp  Kind = "harmonic_exp"
)

// ParamRoNside is the coarse resolution of a pixelized (or harmonic) model.
const ParamRoNside = "ro_nside"

// Ensemble is a set of walker positions, one row per walker.
type Ensemble [][]float64

// Shape returns (walkers, ndim). ndim is taken from the first row.
func (e Ensemble) Shape() (int, int) {
	if len(e) == 0 {
		return 0, 0
	}
	return len(e), len(e[0])
}

// Clone deep-copies the ensemble.
func (e Ensemble) Clone() Ensemble {
	out := make(Ensemble, len(e))
	for i, row := range e {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Descriptor identifies a model in persisted output.
type Descriptor struct {
	Kind   Kind           `json:"kind"`
	Nside  int            `json:"nside"`
	Params map[string]int `json:"params,omitempty"`
}

// Equal reports whether two descriptors name the same model.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.Kind != o.Kind || d.Nside != o.Nside || len(d.Params) != len(o.Params) {
		return false
	}
	for k, v := range d.Params {
		if ov, ok := o.Params[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Model is one Ro parameterization.
type Model interface {
	Kind() Kind
	// Nside is the full resolution the model transforms to.
	Nside() int
	NDim() (int, error)
	// Transform maps a parameter vector to a full-resolution rate map.
	Transform(params []float64) (healpix.Map, error)
	// Initialize draws nwalkers strictly positive starting vectors from the data.
	Initialize(maps []healpix.Map, exposure healpix.Map, nwalkers int, src rand.Source) (Ensemble, error)
	Descriptor() Descriptor
}

var allowedParams = map[Kind][]string{
	KindIsotropic:    nil,
	KindPixelized:    {ParamRoNside},
	KindHarmonicReal: {ParamRoNside},
	KindHarmonicExp:  {ParamRoNside},
}

// New builds the model named by kind at full resolution nside.
func New(kind Kind, nside int, params map[string]int) (Model, error) {
	if err := healpix.ValidateNside(nside); err != nil {
		return nil, err
	}
	if err := checkParams(kind, params); err != nil {
		return nil, err
	}

	var (
		m   Model
		err error
	)
	switch kind {
	case KindIsotropic:
		m, err = NewIsotropic(nside)
	case KindPixelized:
		m, err = NewPixelized(nside, params[ParamRoNside])
	case KindHarmonicReal, KindHarmonicExp:
		m, err = newHarmonic(kind, nside, params[ParamRoNside])
	default:
		err = fmt.Errorf("%w: unknown kind %q", ErrInvalidParams, kind)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FromDescriptor rebuilds a model from its persisted descriptor.
func FromDescriptor(d Descriptor) (Model, error) {
	return New(d.Kind, d.Nside, d.Params)
}

func checkParams(kind Kind, params map[string]int) error {
	allowed, ok := allowedParams[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidParams, kind)
	}
	got := make([]string, 0, len(params))
	for k := range params {
		got = append(got, k)
	}
	sort.Strings(got)
	want := append([]string(nil), allowed...)
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("%w: %s takes [%s], got [%s]", ErrInvalidParams, kind,
			strings.Join(want, " "), strings.Join(got, " "))
	}
	return nil
}

func checkDim(params []float64, ndim int) error {
	if len(params) != ndim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(params), ndim)
	}
	return nil
}
