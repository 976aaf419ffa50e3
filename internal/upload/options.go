package upload

import (
	"log/slog"

	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// DefaultChunkSize is 2.5 MiB, ten 256 KiB units.
const DefaultChunkSize = 10 * 256 * 1024

// defaultParallel bounds concurrent recoveries in ResumeAll.
const defaultParallel = 4

// Progress reports the bytes the server has confirmed for one session.
type Progress struct {
	Handle string
	File   uploadstate.FileInfo
	Sent   int64
	Total  int64
}

// Percent returns Sent/Total as 0..100. A zero-byte file is 100 once sent.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}

	return float64(p.Sent) * 100 / float64(p.Total)
}

// Completion is delivered exactly once per upload. Handle is empty when the
// session could not be created. ReplacedHandle is set when an expired
// session was transparently restarted under Handle.
type Completion struct {
	Handle         string
	ReplacedHandle string
	File           uploadstate.FileInfo
	Destination    string
	Text           string
	Outcome        Outcome
	Link           string // set when the public-read grant succeeded
}

// ShareNotice is delivered after a successful public-read grant.
type ShareNotice struct {
	Handle      string
	ItemID      string
	Link        string
	Destination string
	Message     string // accompanying text and link, ready to post
}

// Options configures an Engine. Zero values are usable.
type Options struct {
	ChunkSize      int64 // bytes per PUT; DefaultChunkSize when <= 0
	Parallel       int   // concurrent recoveries in ResumeAll
	ShareEnabled   bool  // grant public read after success
	DirectLink     bool  // share download links instead of viewer links
	VerifyChecksum bool  // compare the local MD5 with the one Drive reports

	OnProgress   func(Progress)
	OnCompletion func(Completion)
	OnShare      func(ShareNotice)

	Limiter *BandwidthLimiter // shared across sessions; nil = unlimited
	Metrics Metrics           // nil = no metrics
	Logger  *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}

	if o.Parallel <= 0 {
		o.Parallel = defaultParallel
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
}
