package sampling

import (
	"fmt"
	"io"
	"strings"
)

// ProgressWidth is the number of cells in the progress bar.
const ProgressWidth = 30

type progressBar struct {
	w     io.Writer
	total int
}

func newProgressBar(w io.Writer, total int) *progressBar {
	if w == nil || total <= 0 {
		return nil
	}
	return &progressBar{w: w, total: total}
}

// update redraws the bar after done of total iterations.
func (p *progressBar) update(done int) {
	if p == nil {
		return
	}
	n := ProgressWidth * done / p.total
	if n > ProgressWidth {
		n = ProgressWidth
	}
	fmt.Fprintf(p.w, "\r[%s%s]", strings.Repeat("#", n), strings.Repeat(" ", ProgressWidth-n))
}

func (p *progressBar) finish() {
	if p == nil {
		return
	}
	fmt.Fprintln(p.w)
}
