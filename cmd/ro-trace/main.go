// Command ro-trace renders walker trace plots from an ro-sample checkpoint:
// one PNG per parameter plus log-probability, and an interactive HTML page.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/reedessick/gpr-isotropy/internal/checkpoint"
	"github.com/reedessick/gpr-isotropy/internal/fsutil"
	"github.com/reedessick/gpr-isotropy/internal/traceplot"
	"github.com/reedessick/gpr-isotropy/internal/version"
)

var (
	checkpointPath = flag.String("checkpoint", "", "Checkpoint file written by ro-sample (required)")
	outDir         = flag.String("out", "traces", "Output directory for PNG and HTML files")
	maxDims        = flag.Int("max-dims", 12, "Plot at most this many parameters (0 for all)")
	noHTML         = flag.Bool("no-html", false, "Skip the interactive HTML report")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("ro-trace", version.String())
		return
	}
	if *checkpointPath == "" {
		log.Fatal("-checkpoint is required")
	}

	files, err := render(fsutil.OSFileSystem{}, *checkpointPath, *outDir, *maxDims, !*noHTML)
	if err != nil {
		log.Fatalf("ro-trace: %v", err)
	}
	for _, f := range files {
		log.Printf("wrote %s", f)
	}
}

func render(fsys fsutil.FileSystem, path, dir string, dims int, html bool) ([]string, error) {
	store, err := checkpoint.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	md, err := store.Metadata()
	if err != nil {
		return nil, err
	}
	tr, err := traceplot.Collect(store.Records(), dims)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d iterations of %d walkers (%s model, ndim=%d)", len(tr.Iterations), tr.NWalkers(), md.Model.Kind, md.NDim)

	files, err := traceplot.WritePNGs(fsys, dir, tr)
	if err != nil {
		return nil, err
	}
	if html {
		page := filepath.Join(dir, "traces.html")
		title := fmt.Sprintf("Ro traces: %s (session %s)", filepath.Base(path), md.SessionID)
		if err := traceplot.WriteHTML(fsys, page, title, tr); err != nil {
			return nil, err
		}
		files = append(files, page)
	}
	return files, nil
}
