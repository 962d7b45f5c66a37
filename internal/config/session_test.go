package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reedessick/gpr-isotropy/internal/romodel"
	"github.com/reedessick/gpr-isotropy/internal/sampling"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadSessionConfig(t *testing.T) {
	path := writeConfig(t, "session.json", `{
  "nside": 2,
  "maps": ["counts_a.txt", "/abs/counts_b.txt"],
  "exposure": "exposure.txt",
  "ro_model": {"kind": "pixelized", "ro_nside": 1},
  "nwalkers": 64,
  "nthreads": 4,
  "seed": 17,
  "prior": {"shape": 2, "rate": 0.5},
  "kernel": {"variance": 0.2, "offset": 0.01}
}`)
	dir := filepath.Dir(path)

	cfg, err := LoadSessionConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetNside() != 2 {
		t.Errorf("GetNside() = %d, want 2", cfg.GetNside())
	}
	if want := filepath.Join(dir, "counts_a.txt"); cfg.Maps[0] != want {
		t.Errorf("Maps[0] = %q, want %q", cfg.Maps[0], want)
	}
	if cfg.Maps[1] != "/abs/counts_b.txt" {
		t.Errorf("absolute map path rewritten to %q", cfg.Maps[1])
	}
	if want := filepath.Join(dir, "exposure.txt"); cfg.Exposure != want {
		t.Errorf("Exposure = %q, want %q", cfg.Exposure, want)
	}
	if cfg.GetNWalkers() != 64 || cfg.GetNThreads() != 4 {
		t.Errorf("walkers/threads = %d/%d, want 64/4", cfg.GetNWalkers(), cfg.GetNThreads())
	}
	if seed, ok := cfg.GetSeed(); !ok || seed != 17 {
		t.Errorf("GetSeed() = %d, %v, want 17, true", seed, ok)
	}

	model, err := cfg.BuildRoModel()
	if err != nil {
		t.Fatalf("BuildRoModel: %v", err)
	}
	if model.Kind() != romodel.KindPixelized {
		t.Errorf("model kind = %q, want pixelized", model.Kind())
	}
	if ndim, _ := model.NDim(); ndim != 12 {
		t.Errorf("model ndim = %d, want 12", ndim)
	}

	prior, err := cfg.BuildPrior()
	if err != nil {
		t.Fatalf("BuildPrior: %v", err)
	}
	if d := prior.Descriptor(); d.Params["shape"] != 2 || d.Params["rate"] != 0.5 {
		t.Errorf("prior params = %v", d.Params)
	}

	kernel, err := cfg.BuildKernel()
	if err != nil {
		t.Fatalf("BuildKernel: %v", err)
	}
	if kernel.Nside() != 2 {
		t.Errorf("kernel nside = %d, want 2", kernel.Nside())
	}
}

func TestSessionConfig_Defaults(t *testing.T) {
	cfg := &SessionConfig{Nside: ptrInt(1), Exposure: "exposure.txt"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("minimal config should validate: %v", err)
	}

	if cfg.GetNWalkers() != sampling.DefaultNumWalkers {
		t.Errorf("GetNWalkers() = %d, want %d", cfg.GetNWalkers(), sampling.DefaultNumWalkers)
	}
	if cfg.GetNThreads() != sampling.DefaultNumWorkers {
		t.Errorf("GetNThreads() = %d, want %d", cfg.GetNThreads(), sampling.DefaultNumWorkers)
	}
	if _, ok := cfg.GetSeed(); ok {
		t.Error("GetSeed() reported an unset seed as set")
	}
	if cfg.GetRoModelKind() != romodel.KindIsotropic {
		t.Errorf("GetRoModelKind() = %q, want isotropic", cfg.GetRoModelKind())
	}
	if cfg.GetPriorShape() != 1 || cfg.GetPriorRate() != 1 {
		t.Errorf("prior defaults = %g/%g, want 1/1", cfg.GetPriorShape(), cfg.GetPriorRate())
	}
	if cfg.GetKernelVariance() != 1 || cfg.GetKernelOffset() != 0 {
		t.Errorf("kernel defaults = %g/%g, want 1/0", cfg.GetKernelVariance(), cfg.GetKernelOffset())
	}
}

func TestSessionConfig_Validate(t *testing.T) {
	base := func() *SessionConfig {
		return &SessionConfig{Nside: ptrInt(2), Exposure: "e.txt", Seed: ptrUint64(1)}
	}

	tests := []struct {
		name    string
		mutate  func(*SessionConfig)
		wantErr string
	}{
		{"missing nside", func(c *SessionConfig) { c.Nside = nil }, "nside is required"},
		{"bad nside", func(c *SessionConfig) { c.Nside = ptrInt(3) }, "nside"},
		{"missing exposure", func(c *SessionConfig) { c.Exposure = "" }, "exposure is required"},
		{"empty map path", func(c *SessionConfig) { c.Maps = []string{"a.txt", ""} }, "maps[1]"},
		{"zero walkers", func(c *SessionConfig) { c.NWalkers = ptrInt(0) }, "nwalkers"},
		{"zero threads", func(c *SessionConfig) { c.NThreads = ptrInt(0) }, "nthreads"},
		{"bad prior", func(c *SessionConfig) { c.Prior = &PriorConfig{Rate: ptrFloat64(-1)} }, "prior"},
		{"bad variance", func(c *SessionConfig) { c.Kernel = &KernelConfig{Variance: ptrFloat64(0)} }, "variance"},
		{"bad offset", func(c *SessionConfig) { c.Kernel = &KernelConfig{Offset: ptrFloat64(-0.1)} }, "offset"},
		{"unknown model", func(c *SessionConfig) { c.RoModel = &RoModelConfig{Kind: "spline"} }, "ro_model"},
		{"pixelized without ro_nside", func(c *SessionConfig) { c.RoModel = &RoModelConfig{Kind: "pixelized"} }, "ro_model"},
		{"ro_nside above nside", func(c *SessionConfig) {
			c.RoModel = &RoModelConfig{Kind: "pixelized", RoNside: ptrInt(4)}
		}, "ro_model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("base config should validate: %v", err)
	}
}

func TestSessionConfig_HarmonicModelIsNamedButUnsupported(t *testing.T) {
	cfg := &SessionConfig{
		Nside:    ptrInt(2),
		Exposure: "e.txt",
		RoModel:  &RoModelConfig{Kind: "harmonic_exp", RoNside: ptrInt(1)},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("harmonic model should be nameable: %v", err)
	}
	model, err := cfg.BuildRoModel()
	if err != nil {
		t.Fatalf("BuildRoModel: %v", err)
	}
	if _, err := model.NDim(); !errors.Is(err, romodel.ErrUnsupportedVariant) {
		t.Errorf("NDim() error = %v, want ErrUnsupportedVariant", err)
	}
}

func TestLoadSessionConfig_Errors(t *testing.T) {
	t.Run("wrong extension", func(t *testing.T) {
		path := writeConfig(t, "session.yaml", `{}`)
		if _, err := LoadSessionConfig(path); err == nil || !strings.Contains(err.Error(), ".json") {
			t.Errorf("expected extension error, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadSessionConfig(filepath.Join(t.TempDir(), "nope.json")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected not-exist error, got %v", err)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		path := writeConfig(t, "session.json", `{"nside": `)
		if _, err := LoadSessionConfig(path); err == nil || !strings.Contains(err.Error(), "parse") {
			t.Errorf("expected parse error, got %v", err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		body := `{"exposure": "` + strings.Repeat("x", 1024*1024) + `"}`
		path := writeConfig(t, "session.json", body)
		if _, err := LoadSessionConfig(path); err == nil || !strings.Contains(err.Error(), "too large") {
			t.Errorf("expected size error, got %v", err)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "session.json", `{"nside": 1, "exposure": "e.txt", "nwalkers": -3}`)
		if _, err := LoadSessionConfig(path); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}
