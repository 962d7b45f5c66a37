package traceplot

import (
	"errors"
	"iter"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedessick/gpr-isotropy/internal/checkpoint"
	"github.com/reedessick/gpr-isotropy/internal/fsutil"
)

func seqOf(records []checkpoint.Record, tail error) iter.Seq2[checkpoint.Record, error] {
	return func(yield func(checkpoint.Record, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
		if tail != nil {
			yield(checkpoint.Record{}, tail)
		}
	}
}

func testRecords(n, nwalkers, ndim int) []checkpoint.Record {
	recs := make([]checkpoint.Record, n)
	for k := range recs {
		pos := make([][]float64, nwalkers)
		lp := make([]float64, nwalkers)
		for w := range pos {
			pos[w] = make([]float64, ndim)
			for d := range pos[w] {
				pos[w][d] = float64(k + w + d)
			}
			lp[w] = -float64(k * w)
		}
		recs[k] = checkpoint.Record{Iteration: 10 + k, Positions: pos, LogProb: lp}
	}
	return recs
}

func TestCollect_Transposes(t *testing.T) {
	tr, err := Collect(seqOf(testRecords(4, 3, 2), nil), 0)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 11, 12, 13}, tr.Iterations)
	assert.Equal(t, 2, tr.NDim)
	assert.Equal(t, 3, tr.NWalkers())
	require.Len(t, tr.Params, 2)
	assert.Equal(t, []float64{3, 4, 5, 6}, tr.Params[1][2])
	assert.Equal(t, []float64{0, -2, -4, -6}, tr.LogProb[2])
}

func TestCollect_CapsDimensions(t *testing.T) {
	tr, err := Collect(seqOf(testRecords(2, 4, 12), nil), 3)
	require.NoError(t, err)
	assert.Len(t, tr.Params, 3)
	assert.Equal(t, 12, tr.NDim)
}

func TestCollect_Errors(t *testing.T) {
	_, err := Collect(seqOf(nil, nil), 0)
	assert.ErrorIs(t, err, ErrEmpty)

	boom := errors.New("read failed")
	_, err = Collect(seqOf(testRecords(2, 2, 1), boom), 0)
	assert.ErrorIs(t, err, boom)

	recs := testRecords(2, 2, 1)
	recs[1].Positions = recs[1].Positions[:1]
	_, err = Collect(seqOf(recs, nil), 0)
	assert.Error(t, err)
}

func TestWritePNGs(t *testing.T) {
	recs := testRecords(5, 4, 2)
	recs[2].LogProb[1] = math.Inf(-1)
	tr, err := Collect(seqOf(recs, nil), 0)
	require.NoError(t, err)

	mfs := fsutil.NewMemoryFileSystem()
	paths, err := WritePNGs(mfs, "/plots", tr)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/plots", "logprob.png"),
		filepath.Join("/plots", "param_000.png"),
		filepath.Join("/plots", "param_001.png"),
	}, paths)

	for _, p := range paths {
		data, err := mfs.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "\x89PNG"), "%s is not a PNG", p)
	}
}

func TestWriteHTML(t *testing.T) {
	recs := testRecords(3, 2, 1)
	recs[0].LogProb[0] = math.Inf(-1)
	tr, err := Collect(seqOf(recs, nil), 0)
	require.NoError(t, err)

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, WriteHTML(mfs, "/trace.html", "run 42", tr))

	data, err := mfs.ReadFile("/trace.html")
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "run 42")
	assert.Contains(t, html, "Log-probability")
	assert.Contains(t, html, "Parameter 0")
	assert.Contains(t, html, "walker 1")
}

func TestCollect_FromCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.db")
	store, err := checkpoint.Create(path)
	require.NoError(t, err)
	defer store.Close()
	for _, r := range testRecords(3, 2, 1) {
		r.Iteration -= 10
		require.NoError(t, store.Append(r))
	}

	tr, err := Collect(store.Records(), 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, tr.Iterations)
}
