package traceplot

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/reedessick/gpr-isotropy/internal/fsutil"
)

// WritePNGs writes logprob.png and one param_NNN.png per traced dimension
// into dir and returns the paths written.
func WritePNGs(fsys fsutil.FileSystem, dir string, tr *Trace) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating plot dir: %w", err)
	}

	var written []string
	p, err := walkerPlot("Log-probability", "log p", tr.Iterations, tr.LogProb)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "logprob.png")
	if err := savePNG(fsys, p, path); err != nil {
		return nil, err
	}
	written = append(written, path)

	for d, series := range tr.Params {
		p, err := walkerPlot(fmt.Sprintf("Parameter %d", d), "Ro", tr.Iterations, series)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("param_%03d.png", d))
		if err := savePNG(fsys, p, path); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}

// walkerPlot draws one line per walker. Non-finite points are dropped.
func walkerPlot(title, ylabel string, x []float64, walkers [][]float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = ylabel

	colors := generateColors(len(walkers))
	for w, ys := range walkers {
		pts := make(plotter.XYs, 0, len(ys))
		for k, y := range ys {
			if finite(y) {
				pts = append(pts, plotter.XY{X: x[k], Y: y})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("walker %d line: %w", w, err)
		}
		line.Width = vg.Points(1)
		line.Color = colors[w]
		p.Add(line)
	}
	return p, nil
}

func savePNG(fsys fsutil.FileSystem, p *plot.Plot, path string) (err error) {
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if _, err := wt.WriteTo(f); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// generateColors spreads n walker colors evenly around the hue circle.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t += 1
	case t > 1:
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
