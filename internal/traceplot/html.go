package traceplot

import (
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/reedessick/gpr-isotropy/internal/fsutil"
)

// WriteHTML writes an interactive page with one line chart for the
// log-probability and one per traced dimension.
func WriteHTML(fsys fsutil.FileSystem, path, title string, tr *Trace) (err error) {
	page := components.NewPage()
	page.SetPageTitle(title)
	page.AddCharts(walkerChart("Log-probability", title, tr.Iterations, tr.LogProb))
	for d, series := range tr.Params {
		page.AddCharts(walkerChart(fmt.Sprintf("Parameter %d", d), title, tr.Iterations, series))
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
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return nil
}

func walkerChart(name, subtitle string, x []float64, walkers [][]float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: name, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Iteration", NameLocation: "middle", NameGap: 25}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x)
	for w, ys := range walkers {
		data := make([]opts.LineData, len(ys))
		for k, y := range ys {
			// JSON has no infinities; a nil value leaves a gap.
			if finite(y) {
				data[k] = opts.LineData{Value: y}
			}
		}
		line.AddSeries(fmt.Sprintf("walker %d", w), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line
}
