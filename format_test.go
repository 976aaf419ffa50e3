package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/gdrive-upload/internal/upload"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0B"},
		{"bytes", 512, "512B"},
		{"kibibytes", 1536, "1.5KiB"},
		{"mebibytes", 5242880, "5MiB"},
		{"gibibytes", 1610612736, "1.5GiB"},
		{"tebibytes", 1099511627776, "1TiB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.Local)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})
}

func TestDescribeOutcome(t *testing.T) {
	tests := []struct {
		name string
		o    upload.Outcome
		want string
	}{
		{"success", upload.Outcome{Status: upload.StatusSuccess, ItemID: "x"}, "uploaded"},
		{"canceled", upload.Outcome{Status: upload.StatusCanceled}, "canceled"},
		{"auth", upload.Outcome{Status: upload.StatusFailed, Kind: upload.KindAuthExpired}, "gdrive-upload login"},
		{"draining", upload.Outcome{Status: upload.StatusFailed, Kind: upload.KindTransientNetwork, Err: upload.ErrDraining}, "paused for shutdown"},
		{"network", upload.Outcome{Status: upload.StatusFailed, Kind: upload.KindTransientNetwork}, "gdrive-upload resume"},
		{"with error", upload.Outcome{Status: upload.StatusFailed, Kind: upload.KindFileIO, Err: errors.New("disk gone")}, "failed (file_io): disk gone"},
		{"bare", upload.Outcome{Status: upload.StatusFailed, Kind: upload.KindUnrecoverableServer}, "failed (unrecoverable_server)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, describeOutcome(tt.o), tt.want)
		})
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"FILE", "SIZE", "LINK"}
	rows := [][]string{
		{"movie.mkv", "1.2GiB", "https://drive.google.com/file/d/a/view?usp=sharing"},
		{"a", "0B", ""},
	}

	printTable(&buf, headers, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "FILE       SIZE    LINK", lines[0])
	assert.Equal(t, "a          0B      ", lines[2])
}

func TestProgressLine(t *testing.T) {
	pr := upload.Progress{
		File:  uploadstate.FileInfo{Name: "big.iso"},
		Sent:  512 << 20,
		Total: 1 << 30,
	}

	assert.Equal(t, "big.iso   50%  512MiB / 1GiB", progressLine(pr, 1))
	assert.Equal(t, "big.iso   50%  512MiB / 1GiB  (+2 more)", progressLine(pr, 3))
}

func TestProgressPrinter_DisabledOffTerminal(t *testing.T) {
	var buf bytes.Buffer

	p := newProgressPrinter(&buf, false)
	p.update(upload.Progress{File: uploadstate.FileInfo{Name: "f"}, Sent: 1, Total: 2})
	p.finish()

	assert.Empty(t, buf.String())
}

func TestStatusf_Quiet(t *testing.T) {
	var buf bytes.Buffer

	cc := &CLIContext{Flags: CLIFlags{Quiet: true}, Stderr: &buf}
	cc.Statusf("hidden\n")
	assert.Empty(t, buf.String())

	cc.Flags.Quiet = false
	cc.Statusf("shown %d\n", 1)
	assert.Equal(t, "shown 1\n", buf.String())
}
