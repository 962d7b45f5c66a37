// Package mapio reads and writes sky maps as plain text: one pixel value per
// line in NESTED order. Blank lines and lines starting with '#' are ignored.
package mapio

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/reedessick/gpr-isotropy/internal/fsutil"
	"github.com/reedessick/gpr-isotropy/internal/healpix"
)

// ErrFormat is returned for unparsable map files.
var ErrFormat = errors.New("malformed sky map file")

// Read loads one map. The pixel count must be 12*nside^2 for some nside.
func Read(fsys fsutil.FileSystem, path string) (healpix.Map, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening map: %w", err)
	}
	defer f.Close()

	var m healpix.Map
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrFormat, path, line, err)
		}
		m = append(m, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading map %s: %w", path, err)
	}
	if _, err := healpix.NsideOf(len(m)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ReadAll loads several maps in order.
func ReadAll(fsys fsutil.FileSystem, paths []string) ([]healpix.Map, error) {
	maps := make([]healpix.Map, 0, len(paths))
	for _, p := range paths {
		m, err := Read(fsys, p)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, nil
}

// Write stores m at path with the shortest representation that parses back
// to the same float64.
func Write(fsys fsutil.FileSystem, path string, m healpix.Map) (err error) {
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("creating map: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing map %s: %w", path, cerr)
		}
	}()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# nside=%d npix=%d nested\n", nsideOrZero(len(m)), len(m))
	for _, v := range m {
		bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing map %s: %w", path, err)
	}
	return nil
}

func nsideOrZero(npix int) int {
	n, err := healpix.NsideOf(npix)
	if err != nil {
		return 0
	}
	return n
}
