package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedessick/gpr-isotropy/internal/checkpoint"
	"github.com/reedessick/gpr-isotropy/internal/sampling"
	"github.com/reedessick/gpr-isotropy/internal/testutil"
)

func countRecords(t *testing.T, path string) (first, last, n int) {
	t.Helper()
	store, err := checkpoint.Open(path)
	require.NoError(t, err)
	defer store.Close()
	first = -1
	for r, err := range store.Records() {
		require.NoError(t, err)
		if first < 0 {
			first = r.Iteration
		}
		last = r.Iteration
		n++
	}
	return first, last, n
}

func TestRun_WritesCheckpoint(t *testing.T) {
	fx := testutil.NewFixture(t, 1, nil)
	var stderr bytes.Buffer

	err := run(context.Background(), options{
		ConfigPath: fx.ConfigPath,
		OutputPath: fx.Checkpoint,
		Iterations: 3,
		Verbose:    true,
	}, &stderr)
	require.NoError(t, err)

	first, last, n := countRecords(t, fx.Checkpoint)
	assert.Equal(t, 0, first)
	assert.Equal(t, 2, last)
	assert.Equal(t, 3, n)
	assert.Contains(t, stderr.String(), "[")
}

func TestRun_ResumeContinuesIndices(t *testing.T) {
	fx := testutil.NewFixture(t, 1, map[string]any{"ro_model": map[string]any{"kind": "pixelized", "ro_nside": 1}})
	require.NoError(t, run(context.Background(), options{
		ConfigPath: fx.ConfigPath,
		OutputPath: fx.Checkpoint,
		Iterations: 2,
	}, nil))

	next := filepath.Join(fx.Dir, "resumed.db")
	require.NoError(t, run(context.Background(), options{
		ConfigPath: fx.ConfigPath,
		ResumePath: fx.Checkpoint,
		OutputPath: next,
		Iterations: 2,
	}, nil))

	first, last, n := countRecords(t, next)
	assert.Equal(t, 2, first)
	assert.Equal(t, 3, last)
	assert.Equal(t, 2, n)
}

func TestRun_Errors(t *testing.T) {
	fx := testutil.NewFixture(t, 1, nil)

	err := run(context.Background(), options{ConfigPath: filepath.Join(fx.Dir, "missing.json")}, nil)
	testutil.AssertError(t, err)

	err = run(context.Background(), options{
		ConfigPath: fx.ConfigPath,
		ResumePath: filepath.Join(fx.Dir, "missing.db"),
		Iterations: 1,
	}, nil)
	assert.True(t, errors.Is(err, sampling.ErrResource), "got %v", err)

	mismatch := testutil.NewFixture(t, 2, nil)
	err = run(context.Background(), options{
		ConfigPath: mismatch.ConfigPath,
		OutputPath: mismatch.Checkpoint,
		Iterations: 1,
	}, nil)
	require.NoError(t, err)
	err = run(context.Background(), options{
		ConfigPath: fx.ConfigPath,
		ResumePath: mismatch.Checkpoint,
		Iterations: 1,
	}, nil)
	assert.True(t, errors.Is(err, sampling.ErrConfig), "got %v", err)
}
