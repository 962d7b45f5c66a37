// Package testutil provides shared test fixtures: sky maps and session
// configs written to a per-test temp directory.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/reedessick/gpr-isotropy/internal/fsutil"
	"github.com/reedessick/gpr-isotropy/internal/healpix"
	"github.com/reedessick/gpr-isotropy/internal/mapio"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// WriteMap writes m in the sky map text format under dir and returns the path.
func WriteMap(t testing.TB, dir, name string, m healpix.Map) string {
	t.Helper()
	path := filepath.Join(dir, name)
	AssertNoError(t, mapio.Write(fsutil.OSFileSystem{}, path, m))
	return path
}

// Fixture is a minimal on-disk session: one count map, an exposure map and a
// config file referring to both by relative path.
type Fixture struct {
	Dir        string
	ConfigPath string
	Checkpoint string
}

// NewFixture writes a uniform session at nside under t.TempDir. extra is
// merged over the generated config, so callers can set nwalkers, seed and so
// on.
func NewFixture(t testing.TB, nside int, extra map[string]any) Fixture {
	t.Helper()
	dir := t.TempDir()
	npix := healpix.NPix(nside)
	WriteMap(t, dir, "counts.txt", healpix.Fill(npix, 3))
	WriteMap(t, dir, "exposure.txt", healpix.Fill(npix, 1))

	cfg := map[string]any{
		"nside":    nside,
		"maps":     []string{"counts.txt"},
		"exposure": "exposure.txt",
		"nwalkers": 4,
		"seed":     7,
	}
	for k, v := range extra {
		cfg[k] = v
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	AssertNoError(t, err)
	configPath := filepath.Join(dir, "session.json")
	AssertNoError(t, os.WriteFile(configPath, data, 0644))

	return Fixture{
		Dir:        dir,
		ConfigPath: configPath,
		Checkpoint: filepath.Join(dir, "samples.db"),
	}
}
