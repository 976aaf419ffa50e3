package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"

	"github.com/tonimelisma/gdrive-upload/internal/upload"
)

// Statusf prints a status message to the command's stderr unless quiet
// mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if cc.Flags.Quiet {
		return
	}

	w := cc.Stderr
	if w == nil {
		w = os.Stderr
	}

	fmt.Fprintf(w, format, args...)
}

// formatSize returns a human-readable binary size such as "2.5MiB".
func formatSize(bytes int64) string {
	return units.BytesSize(float64(bytes))
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// describeOutcome renders an outcome for people, with a hint on how to
// finish the upload when the session was kept.
func describeOutcome(o upload.Outcome) string {
	switch {
	case o.Status == upload.StatusSuccess:
		return "uploaded"
	case o.Status == upload.StatusCanceled:
		return "canceled"
	case errors.Is(o.Err, upload.ErrDraining):
		return "paused for shutdown (run 'gdrive-upload resume')"
	case o.Kind == upload.KindAuthExpired:
		return "paused: login expired (run 'gdrive-upload login', then 'gdrive-upload resume')"
	case o.Kind == upload.KindTransientNetwork:
		return "paused: connection lost (run 'gdrive-upload resume')"
	case o.Err != nil:
		return fmt.Sprintf("failed (%s): %v", o.Kind, o.Err)
	default:
		return "failed (" + o.Kind.String() + ")"
	}
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. The last column is not padded.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
