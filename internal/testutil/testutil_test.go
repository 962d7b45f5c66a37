package testutil

import (
	"errors"
	"os"
	"testing"

	"github.com/reedessick/gpr-isotropy/internal/config"
	"github.com/reedessick/gpr-isotropy/internal/fsutil"
	"github.com/reedessick/gpr-isotropy/internal/mapio"
)

func TestAssertNoError_NilErr(t *testing.T) {
	fakeT := &testing.T{}
	AssertNoError(fakeT, nil)
	if fakeT.Failed() {
		t.Error("expected no failure for nil error")
	}
}

func TestAssertError_WithErr(t *testing.T) {
	fakeT := &testing.T{}
	AssertError(fakeT, errors.New("something wrong"))
	if fakeT.Failed() {
		t.Error("expected no failure when error is present")
	}
}

func TestNewFixture_LoadsAsConfig(t *testing.T) {
	fx := NewFixture(t, 1, map[string]any{"nwalkers": 6})

	cfg, err := config.LoadSessionConfig(fx.ConfigPath)
	AssertNoError(t, err)
	if cfg.GetNside() != 1 || cfg.GetNWalkers() != 6 {
		t.Errorf("nside=%d nwalkers=%d", cfg.GetNside(), cfg.GetNWalkers())
	}
	if seed, ok := cfg.GetSeed(); !ok || seed != 7 {
		t.Errorf("seed = %d, %v", seed, ok)
	}

	counts, err := mapio.Read(fsutil.OSFileSystem{}, cfg.Maps[0])
	AssertNoError(t, err)
	if len(counts) != 12 || counts.Sum() != 36 {
		t.Errorf("counts: len=%d sum=%g", len(counts), counts.Sum())
	}
	if _, err := os.Stat(fx.Checkpoint); !os.IsNotExist(err) {
		t.Errorf("checkpoint should not exist yet, stat err = %v", err)
	}
}
