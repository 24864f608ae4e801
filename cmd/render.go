package cmd

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/download-simulator/internal/app"
)

const barWidth = 30

// renderer draws one progress bar per tracked download. In plain mode it
// prints a line per finished download instead of redrawing.
type renderer struct {
	out      io.Writer
	plain    bool
	bars     map[int]*progressbar.ProgressBar
	reported map[int]bool
	lines    int
}

func newRenderer(out io.Writer, plain bool) *renderer {
	return &renderer{
		out:      out,
		plain:    plain,
		bars:     make(map[int]*progressbar.ProgressBar),
		reported: make(map[int]bool),
	}
}

func (r *renderer) header(title string) {
	fmt.Fprintln(r.out, title)
	fmt.Fprintln(r.out, app.InitializingText)
}

func (r *renderer) draw(snap []app.DownloadView) {
	if r.plain {
		for _, d := range snap {
			if d.Finished && !r.reported[d.ID] {
				r.reported[d.ID] = true
				fmt.Fprintf(r.out, "%s finished (%.2f%%)\n", d.URL, d.Progress)
			}
		}
		return
	}

	if r.lines > 0 {
		fmt.Fprintf(r.out, "\x1b[%dA", r.lines)
	}
	for _, d := range snap {
		bar := r.bar(d)
		// The bar tops out at 100; the printed percentage keeps any overshoot.
		_ = bar.Set(min(int(d.Progress), 100))
		status := ""
		if d.Finished {
			status = " done"
		}
		fmt.Fprintf(r.out, "\x1b[2K%s %7.2f%%%s\n", bar.String(), d.Progress, status)
	}
	r.lines = len(snap)
}

func (r *renderer) bar(d app.DownloadView) *progressbar.ProgressBar {
	if bar, ok := r.bars[d.ID]; ok {
		return bar
	}
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(io.Discard),
		progressbar.OptionSetDescription(d.URL),
		progressbar.OptionSetWidth(barWidth),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
	)
	r.bars[d.ID] = bar
	return bar
}

func (r *renderer) summary(snap []app.DownloadView) {
	fmt.Fprintf(r.out, "%d downloads finished\n", len(snap))
}
