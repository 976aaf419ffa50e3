package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// RecoveryAction is what ResumeAll did with one registered session.
type RecoveryAction int

const (
	// RecoveryCompleted: the server already had every byte; the entry was dropped.
	RecoveryCompleted RecoveryAction = iota
	// RecoveryResumed: streaming continued from the server's offset.
	RecoveryResumed
	// RecoveryReinitiated: the server forgot the session; the file was
	// uploaded again under a new handle.
	RecoveryReinitiated
	// RecoveryRetained: the probe answer was not understood, or the engine
	// is draining; the entry was left for a later attempt.
	RecoveryRetained
	// RecoverySkipped: the session is already running in this process.
	RecoverySkipped
)

func (a RecoveryAction) String() string {
	switch a {
	case RecoveryCompleted:
		return "completed"
	case RecoveryResumed:
		return "resumed"
	case RecoveryReinitiated:
		return "reinitiated"
	case RecoveryRetained:
		return "retained"
	case RecoverySkipped:
		return "skipped"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// RecoveryResult describes the recovery of one session.
type RecoveryResult struct {
	Handle    string
	File      uploadstate.FileInfo
	Action    RecoveryAction
	NewHandle string  // final handle after Reinitiated, or after a restart mid-resume
	Outcome   Outcome // for Resumed and Reinitiated
	Err       error   // probe error or ErrDraining for Retained
}

// RecoveryReport lists what ResumeAll did, ordered by handle.
type RecoveryReport struct {
	Results []RecoveryResult
}

// Count returns how many sessions ended with action a.
func (r *RecoveryReport) Count(a RecoveryAction) int {
	n := 0

	for i := range r.Results {
		if r.Results[i].Action == a {
			n++
		}
	}

	return n
}

// ResumeAll probes every registered session and acts on the answer:
// complete drops the entry, incomplete resumes at the server's offset,
// not-found re-uploads the file under a new session, and anything else
// leaves the entry alone. Up to Options.Parallel sessions recover at once.
// It returns when every recovered upload reached its outcome.
func (e *Engine) ResumeAll(ctx context.Context) (*RecoveryReport, error) {
	sessions, err := e.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("upload: listing registered sessions: %w", err)
	}

	e.logger.Info("resuming registered uploads", slog.Int("count", len(sessions)))

	var (
		mu     sync.Mutex
		report RecoveryReport
		g      errgroup.Group
	)

	g.SetLimit(e.opts.Parallel)

	for _, s := range sessions {
		g.Go(func() error {
			res := e.recoverSession(ctx, s)

			mu.Lock()
			report.Results = append(report.Results, res)
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // recoverSession never returns an error

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Handle < report.Results[j].Handle
	})

	return &report, nil
}

func (e *Engine) recoverSession(ctx context.Context, s uploadstate.Session) RecoveryResult {
	result := RecoveryResult{Handle: s.Handle, File: s.File}
	log := e.logger.With(slog.String("handle", gdrive.RedactHandle(s.Handle)), slog.String("file", s.File.Name))

	r := e.newRun()
	r.file = s.File
	r.setHandle(s.Handle)

	if !e.claim(s.Handle, r) {
		e.mu.Lock()
		delete(e.runs, r)
		e.mu.Unlock()

		result.Action = RecoverySkipped

		return result
	}

	if e.isDraining() {
		e.retire(r)

		result.Action = RecoveryRetained
		result.Err = ErrDraining

		return result
	}

	res, err := e.probe(ctx, s.Handle)

	switch {
	case err == nil && res.Complete:
		log.Info("session already complete on the server, dropping entry")

		if _, uerr := e.registry.Unregister(context.WithoutCancel(ctx), s.Handle); uerr != nil {
			log.Error("failed to unregister completed session", slog.String("error", uerr.Error()))
		}

		e.cancels.clear(s.Handle)
		e.retire(r)

		result.Action = RecoveryCompleted

	case err == nil:
		log.Info("resuming upload", slog.Int64("offset", res.NextOffset))

		c := e.drive(ctx, r, s, res.NextOffset, "")
		result.Action = RecoveryResumed
		result.NewHandle = c.Handle
		result.Outcome = c.Outcome

	case gdrive.IsSessionExpired(err):
		log.Info("session expired on the server, uploading again")

		e.dropHandle(ctx, r, s.Handle)
		result.Action = RecoveryReinitiated

		ns, oerr := e.open(ctx, r, s.File, s.Destination, s.Text)
		if oerr != nil {
			c := e.abort(r, s, oerr, s.Handle)
			result.Outcome = c.Outcome

			return result
		}

		c := e.drive(ctx, r, ns, 0, s.Handle)
		result.NewHandle = c.Handle
		result.Outcome = c.Outcome

	default:
		log.Warn("unexpected probe result, leaving session for a later attempt",
			slog.String("error", err.Error()),
		)

		e.retire(r)

		result.Action = RecoveryRetained
		result.Err = err
	}

	return result
}

// probe asks the server how much of the session it holds, refreshing the
// token once on 401.
func (e *Engine) probe(ctx context.Context, handle string) (*gdrive.ChunkResult, error) {
	res, err := e.remote.ProbeSession(ctx, handle)
	if !isUnauthorized(err) {
		return res, err
	}

	if rerr := e.refresh(ctx); rerr != nil {
		return nil, fail(KindAuthExpired, rerr)
	}

	return e.remote.ProbeSession(ctx, handle)
}
