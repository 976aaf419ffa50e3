package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/tonimelisma/gdrive-upload/internal/upload"
)

// progressPrinter renders a single self-overwriting status line on a
// terminal. On anything else, and in quiet mode, it prints nothing.
type progressPrinter struct {
	w       io.Writer
	enabled bool

	mu     sync.Mutex
	active map[string]upload.Progress
	width  int
}

func newProgressPrinter(w io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{
		w:       w,
		enabled: !quiet && isTerminal(w),
		active:  make(map[string]upload.Progress),
	}
}

// update matches upload.Options.OnProgress.
func (p *progressPrinter) update(pr upload.Progress) {
	if !p.enabled {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pr.Sent >= pr.Total {
		delete(p.active, pr.Handle)
	} else {
		p.active[pr.Handle] = pr
	}

	p.render(progressLine(pr, len(p.active)))
}

// finish clears the status line.
func (p *progressPrinter) finish() {
	if !p.enabled {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.render("")
}

func (p *progressPrinter) render(line string) {
	pad := max(p.width-len(line), 0)
	fmt.Fprintf(p.w, "\r%s%*s\r%s", line, pad, "", line)
	p.width = len(line)
}

// progressLine describes the latest update; active counts uploads still
// streaming.
func progressLine(pr upload.Progress, active int) string {
	line := fmt.Sprintf("%s  %3.0f%%  %s / %s",
		pr.File.Name, pr.Percent(), formatSize(pr.Sent), formatSize(pr.Total))

	if active > 1 {
		line += fmt.Sprintf("  (+%d more)", active-1)
	}

	return line
}
