package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/reedessick/gpr-isotropy/internal/healpix"
	"github.com/reedessick/gpr-isotropy/internal/posterior"
	"github.com/reedessick/gpr-isotropy/internal/romodel"
	"github.com/reedessick/gpr-isotropy/internal/sampling"
)

// SessionConfig is the JSON description of a sampling session.
// Fields omitted from the file fall back to the Get* defaults.
type SessionConfig struct {
	Nside *int `json:"nside,omitempty"`
	// Maps and Exposure name sky map files; relative paths are resolved
	// against the directory holding the config file.
	Maps     []string `json:"maps,omitempty"`
	Exposure string   `json:"exposure,omitempty"`

	RoModel *RoModelConfig `json:"ro_model,omitempty"`

	NWalkers *int    `json:"nwalkers,omitempty"`
	NThreads *int    `json:"nthreads,omitempty"`
	Seed     *uint64 `json:"seed,omitempty"`

	Prior  *PriorConfig  `json:"prior,omitempty"`
	Kernel *KernelConfig `json:"kernel,omitempty"`
}

// RoModelConfig selects the Ro parameterization.
type RoModelConfig struct {
	Kind    string `json:"kind"`
	RoNside *int   `json:"ro_nside,omitempty"`
}

// PriorConfig holds the per-pixel Gamma prior on Ro.
type PriorConfig struct {
	Shape *float64 `json:"shape,omitempty"`
	Rate  *float64 `json:"rate,omitempty"`
}

// KernelConfig holds the constant covariance kernel on Eps.
type KernelConfig struct {
	Variance *float64 `json:"variance,omitempty"`
	Offset   *float64 `json:"offset,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// LoadSessionConfig loads a SessionConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadSessionConfig(path string) (*SessionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &SessionConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	cfg.resolvePaths(filepath.Dir(cleanPath))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *SessionConfig) resolvePaths(dir string) {
	for i, p := range c.Maps {
		if p != "" && !filepath.IsAbs(p) {
			c.Maps[i] = filepath.Join(dir, p)
		}
	}
	if c.Exposure != "" && !filepath.IsAbs(c.Exposure) {
		c.Exposure = filepath.Join(dir, c.Exposure)
	}
}

// Validate checks that the configuration values are usable.
func (c *SessionConfig) Validate() error {
	if c.Nside == nil {
		return fmt.Errorf("nside is required")
	}
	if err := healpix.ValidateNside(*c.Nside); err != nil {
		return fmt.Errorf("nside: %w", err)
	}
	if c.Exposure == "" {
		return fmt.Errorf("exposure is required")
	}
	for i, p := range c.Maps {
		if p == "" {
			return fmt.Errorf("maps[%d] is empty", i)
		}
	}
	if c.NWalkers != nil && *c.NWalkers < 1 {
		return fmt.Errorf("nwalkers must be positive, got %d", *c.NWalkers)
	}
	if c.NThreads != nil && *c.NThreads < 1 {
		return fmt.Errorf("nthreads must be positive, got %d", *c.NThreads)
	}
	if c.GetPriorShape() <= 0 || c.GetPriorRate() <= 0 {
		return fmt.Errorf("prior shape and rate must be positive, got %g and %g", c.GetPriorShape(), c.GetPriorRate())
	}
	if c.GetKernelVariance() <= 0 {
		return fmt.Errorf("kernel variance must be positive, got %g", c.GetKernelVariance())
	}
	if c.GetKernelOffset() < 0 {
		return fmt.Errorf("kernel offset must be non-negative, got %g", c.GetKernelOffset())
	}
	if _, err := c.BuildRoModel(); err != nil {
		return fmt.Errorf("ro_model: %w", err)
	}
	return nil
}

// GetNside returns nside, or 0 when unset.
func (c *SessionConfig) GetNside() int {
	if c.Nside == nil {
		return 0
	}
	return *c.Nside
}

// GetNWalkers returns the nwalkers value or the default.
func (c *SessionConfig) GetNWalkers() int {
	if c.NWalkers == nil {
		return sampling.DefaultNumWalkers
	}
	return *c.NWalkers
}

// GetNThreads returns the nthreads value or the default.
func (c *SessionConfig) GetNThreads() int {
	if c.NThreads == nil {
		return sampling.DefaultNumWorkers
	}
	return *c.NThreads
}

// GetSeed returns the seed value and whether it was set.
func (c *SessionConfig) GetSeed() (uint64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// GetRoModelKind returns the ro_model kind or isotropic.
func (c *SessionConfig) GetRoModelKind() romodel.Kind {
	if c.RoModel == nil || c.RoModel.Kind == "" {
		return romodel.KindIsotropic
	}
	return romodel.Kind(c.RoModel.Kind)
}

// GetPriorShape returns the prior shape or the default.
func (c *SessionConfig) GetPriorShape() float64 {
	if c.Prior == nil || c.Prior.Shape == nil {
		return 1
	}
	return *c.Prior.Shape
}

// GetPriorRate returns the prior rate or the default.
func (c *SessionConfig) GetPriorRate() float64 {
	if c.Prior == nil || c.Prior.Rate == nil {
		return 1
	}
	return *c.Prior.Rate
}

// GetKernelVariance returns the kernel variance or the default.
func (c *SessionConfig) GetKernelVariance() float64 {
	if c.Kernel == nil || c.Kernel.Variance == nil {
		return 1
	}
	return *c.Kernel.Variance
}

// GetKernelOffset returns the kernel offset or the default.
func (c *SessionConfig) GetKernelOffset() float64 {
	if c.Kernel == nil || c.Kernel.Offset == nil {
		return 0
	}
	return *c.Kernel.Offset
}

// BuildRoModel constructs the configured Ro model.
func (c *SessionConfig) BuildRoModel() (romodel.Model, error) {
	kind := c.GetRoModelKind()
	params := map[string]int{}
	if c.RoModel != nil && c.RoModel.RoNside != nil {
		params[romodel.ParamRoNside] = *c.RoModel.RoNside
	}
	return romodel.New(kind, c.GetNside(), params)
}

// BuildPrior constructs the configured Gamma prior.
func (c *SessionConfig) BuildPrior() (posterior.Prior, error) {
	p, err := posterior.NewGammaPrior(c.GetNside(), c.GetPriorShape(), c.GetPriorRate())
	if err != nil {
		return nil, err
	}
	return p, nil
}

// BuildKernel constructs the configured covariance kernel.
func (c *SessionConfig) BuildKernel() (posterior.Kernel, error) {
	k, err := posterior.NewConstantKernel(c.GetNside(), c.GetKernelVariance(), c.GetKernelOffset())
	if err != nil {
		return nil, err
	}
	return k, nil
}
