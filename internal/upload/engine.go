package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// remoteCancelTimeout bounds the best-effort DELETE of a canceled session.
const remoteCancelTimeout = 10 * time.Second

// Request asks for one file to be uploaded.
type Request struct {
	Path        string
	Destination string // opaque routing context echoed back in the completion
	Text        string // message to post with the share link
}

// Engine runs resumable uploads. Sessions run concurrently, each in its own
// goroutine with at most one request in flight.
type Engine struct {
	remote   Remote
	tokens   TokenRefresher
	registry Registry
	history  HistoryLog
	opts     Options
	logger   *slog.Logger
	cancels  *cancelSet
	now      func() time.Time

	mu      sync.Mutex
	runs    map[*run]struct{}
	claimed map[string]*run // handle -> the run allowed to send for it

	wg sync.WaitGroup

	drainOnce sync.Once
	drained   chan struct{}
}

// NewEngine creates an engine. See Options for defaults.
func NewEngine(remote Remote, tokens TokenRefresher, registry Registry, history HistoryLog, opts Options) *Engine {
	opts.applyDefaults()

	return &Engine{
		remote:   remote,
		tokens:   tokens,
		registry: registry,
		history:  history,
		opts:     opts,
		logger:   opts.Logger,
		cancels:  newCancelSet(),
		now:      time.Now,
		runs:     make(map[*run]struct{}),
		claimed:  make(map[string]*run),
		drained:  make(chan struct{}),
	}
}

// Initiate creates a session for req, registers it, and streams it in the
// background. ctx bounds the whole upload, not only the creation call.
// When creation fails the error is returned and the failure is also
// delivered to OnCompletion with an empty handle.
func (e *Engine) Initiate(ctx context.Context, req Request) (string, error) {
	r := e.newRun()

	s, err := e.begin(ctx, r, req)
	if err != nil {
		return "", err
	}

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		e.drive(ctx, r, s, 0, "")
	}()

	return s.Handle, nil
}

// Upload is the synchronous form of Initiate: it returns once the upload
// reaches its outcome. The returned handle is the final one, which differs
// from the first when an expired session was restarted.
func (e *Engine) Upload(ctx context.Context, req Request) (string, Outcome) {
	r := e.newRun()

	s, err := e.begin(ctx, r, req)
	if err != nil {
		return "", classifyFailure(err)
	}

	c := e.drive(ctx, r, s, 0, "")

	return c.Handle, c.Outcome
}

// Cancel asks the session to stop. A session streaming in this process
// stops before its next chunk. A registered session that is not running is
// finalized as canceled right away. Returns ErrUnknownSession when the
// handle is neither running nor registered.
func (e *Engine) Cancel(ctx context.Context, handle string) error {
	e.mu.Lock()
	e.cancels.add(handle)
	_, running := e.claimed[handle]
	e.mu.Unlock()

	if running {
		e.logger.Info("cancellation requested", slog.String("handle", gdrive.RedactHandle(handle)))
		return nil
	}

	s, err := e.registry.Get(ctx, handle)
	if err != nil {
		e.cancels.clear(handle)
		return fmt.Errorf("upload: looking up session: %w", err)
	}

	if s == nil {
		e.cancels.clear(handle)
		return ErrUnknownSession
	}

	r := e.newRun()
	r.file = s.File
	r.setHandle(handle)

	if !e.claim(handle, r) {
		// Picked up by a recovery in the meantime; its loop sees the request.
		e.retire(r)
		return nil
	}

	e.finish(ctx, r, *s, Canceled(), nil, "", e.now())

	return nil
}

// History returns completed uploads, newest first.
func (e *Engine) History(ctx context.Context) ([]uploadstate.HistoryEntry, error) {
	return e.history.List(ctx)
}

// Snapshot returns the uploads currently owned by the engine.
func (e *Engine) Snapshot() []RunStatus {
	e.mu.Lock()
	runs := make([]*run, 0, len(e.runs))

	for r := range e.runs {
		runs = append(runs, r)
	}
	e.mu.Unlock()

	out := make([]RunStatus, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.status())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].File.Name != out[j].File.Name {
			return out[i].File.Name < out[j].File.Name
		}

		return out[i].Handle < out[j].Handle
	})

	return out
}

// Drain makes every upload stop at its next chunk boundary, keeping its
// session registered for the next ResumeAll. Unlike canceling ctx, the
// chunk in flight is allowed to finish. Drain cannot be undone.
func (e *Engine) Drain() {
	e.drainOnce.Do(func() {
		e.logger.Info("draining uploads")
		close(e.drained)
	})
}

// Draining is closed once Drain was called.
func (e *Engine) Draining() <-chan struct{} {
	return e.drained
}

func (e *Engine) isDraining() bool {
	select {
	case <-e.drained:
		return true
	default:
		return false
	}
}

// Wait blocks until every background upload started by Initiate finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// begin describes the file and opens a session for it. On failure the
// outcome has already been delivered.
func (e *Engine) begin(ctx context.Context, r *run, req Request) (uploadstate.Session, error) {
	if e.isDraining() {
		err := fail(KindTransientNetwork, ErrDraining)
		e.abort(r, uploadstate.Session{File: uploadstate.FileInfo{Path: req.Path}, Destination: req.Destination, Text: req.Text}, err, "")

		return uploadstate.Session{}, err
	}

	file, err := DescribeFile(req.Path)
	if err != nil {
		err = fail(KindFileIO, err)
		e.abort(r, uploadstate.Session{File: uploadstate.FileInfo{Path: req.Path}, Destination: req.Destination, Text: req.Text}, err, "")

		return uploadstate.Session{}, err
	}

	r.file = file

	s, err := e.open(ctx, r, file, req.Destination, req.Text)
	if err != nil {
		e.abort(r, uploadstate.Session{File: file, Destination: req.Destination, Text: req.Text}, err, "")
		return uploadstate.Session{}, err
	}

	return s, nil
}

// open creates a remote session for file and registers it. Nothing is
// registered when creation fails.
func (e *Engine) open(ctx context.Context, r *run, file uploadstate.FileInfo, dest, text string) (uploadstate.Session, error) {
	r.transition(StateCreating)

	handle, err := e.createSession(ctx, file)
	if err != nil {
		return uploadstate.Session{}, err
	}

	s := uploadstate.Session{
		Handle:      handle,
		File:        file,
		Destination: dest,
		Text:        text,
		CreatedAt:   e.now(),
	}

	// Claim before the entry becomes visible to a concurrent ResumeAll, so
	// recovery sees the handle as running and skips it.
	if !e.claim(handle, r) {
		return uploadstate.Session{}, fail(KindUnrecoverableServer,
			fmt.Errorf("upload: server issued handle %s that is already streaming", gdrive.RedactHandle(handle)))
	}

	r.setHandle(handle)

	if err := e.registry.Register(ctx, s); err != nil {
		e.release(handle, r)
		e.abandonRemote(ctx, handle)

		return uploadstate.Session{}, fail(KindFileIO, err)
	}

	e.logger.Info("upload session opened",
		slog.String("file", file.Name),
		slog.Int64("size", file.Size),
		slog.String("handle", gdrive.RedactHandle(handle)),
	)

	return s, nil
}

// createSession issues the create call, refreshing the token once on 401.
// Any HTTP rejection, including a second 401, is unrecoverable.
func (e *Engine) createSession(ctx context.Context, file uploadstate.FileInfo) (string, error) {
	meta := gdrive.FileMetadata{Name: file.Name, MimeType: file.MimeType, Size: file.Size}

	handle, err := e.remote.CreateSession(ctx, meta)
	if isUnauthorized(err) {
		if rerr := e.refresh(ctx); rerr != nil {
			return "", fail(KindAuthExpired, rerr)
		}

		handle, err = e.remote.CreateSession(ctx, meta)
	}

	if err != nil {
		if isHTTPRejection(err) {
			return "", fail(KindUnrecoverableServer, err)
		}

		return "", err
	}

	return handle, nil
}

// drive streams s from start and finishes it. A session the server reports
// expired mid-stream is replaced once by a fresh one for the same file.
func (e *Engine) drive(ctx context.Context, r *run, s uploadstate.Session, start int64, replaced string) Completion {
	e.opts.Metrics.ActiveDelta(1)
	defer e.opts.Metrics.ActiveDelta(-1)

	started := e.now()

	o, item := e.streamChunks(ctx, r, s, start)
	if o.Status == StatusFailed && o.Kind == KindSessionExpired {
		old := s.Handle

		e.logger.Warn("upload session expired, restarting with a new session",
			slog.String("file", s.File.Name),
			slog.String("handle", gdrive.RedactHandle(old)),
		)

		e.dropHandle(ctx, r, old)

		ns, err := e.open(ctx, r, s.File, s.Destination, s.Text)
		if err != nil {
			return e.abort(r, s, err, old)
		}

		s, replaced = ns, old
		o, item = e.streamChunks(ctx, r, s, 0)
	}

	return e.finish(ctx, r, s, o, item, replaced, started)
}

// dropHandle forgets a handle the server no longer knows.
func (e *Engine) dropHandle(ctx context.Context, r *run, handle string) {
	if _, err := e.registry.Unregister(context.WithoutCancel(ctx), handle); err != nil {
		e.logger.Error("failed to unregister expired session",
			slog.String("handle", gdrive.RedactHandle(handle)),
			slog.String("error", err.Error()),
		)
	}

	e.cancels.clear(handle)
	e.release(handle, r)
}

// release gives up r's claim on handle.
func (e *Engine) release(handle string, r *run) {
	e.mu.Lock()
	if e.claimed[handle] == r {
		delete(e.claimed, handle)
	}
	e.mu.Unlock()
}

// abort delivers the failure of an upload that has no registered session.
func (e *Engine) abort(r *run, s uploadstate.Session, err error, replaced string) Completion {
	o := classifyFailure(err)

	e.logger.Warn("upload could not start",
		slog.String("file", s.File.Path),
		slog.String("outcome", o.String()),
	)

	c := Completion{
		ReplacedHandle: replaced,
		File:           s.File,
		Destination:    s.Destination,
		Text:           s.Text,
		Outcome:        o,
	}

	e.retire(r)
	e.opts.Metrics.UploadFinished(o, 0)
	e.deliver(c)

	return c
}

// finish is the single terminal handler. Unless the outcome keeps the
// session for a later resume, the registry entry is removed, and only the
// caller that actually removed it goes on to record and notify.
func (e *Engine) finish(
	ctx context.Context, r *run, s uploadstate.Session, o Outcome, item *gdrive.Item, replaced string, started time.Time,
) Completion {
	defer e.retire(r)

	// Terminal bookkeeping must happen even when ctx was canceled.
	bg := context.WithoutCancel(ctx)

	// A cancel requested while the last chunk was in flight outranks a
	// failure that would otherwise keep the session for a later resume.
	if o.keepsRegistration() && e.cancels.has(s.Handle) {
		e.logger.Info("upload canceled while a chunk was in flight",
			slog.String("handle", gdrive.RedactHandle(s.Handle)),
			slog.String("interrupted_by", o.String()),
		)

		o = Canceled()
	}

	c := Completion{
		Handle:         s.Handle,
		ReplacedHandle: replaced,
		File:           s.File,
		Destination:    s.Destination,
		Text:           s.Text,
		Outcome:        o,
	}

	if o.keepsRegistration() {
		e.cancels.clear(s.Handle)
		e.logger.Warn("upload interrupted, session kept for resume",
			slog.String("file", s.File.Name),
			slog.String("handle", gdrive.RedactHandle(s.Handle)),
			slog.String("outcome", o.String()),
		)
		e.opts.Metrics.UploadFinished(o, e.now().Sub(started))
		e.deliver(c)

		return c
	}

	removed, err := e.registry.Unregister(bg, s.Handle)
	if err != nil {
		e.logger.Error("failed to unregister session",
			slog.String("handle", gdrive.RedactHandle(s.Handle)),
			slog.String("error", err.Error()),
		)
	} else if !removed {
		e.cancels.clear(s.Handle)
		e.logger.Debug("session already finalized", slog.String("handle", gdrive.RedactHandle(s.Handle)))

		return c
	}

	e.cancels.clear(s.Handle)
	r.transition(StateCompleting)

	switch o.Status {
	case StatusSuccess:
		e.complete(bg, &c, item)
	case StatusCanceled:
		e.abandonRemote(bg, s.Handle)
	case StatusFailed:
	}

	e.opts.Metrics.UploadFinished(o, e.now().Sub(started))
	e.deliver(c)

	return c
}

// abandonRemote asks the server to drop a session. Failures only matter to
// the server's own garbage collection, so they are logged.
func (e *Engine) abandonRemote(ctx context.Context, handle string) {
	ctx, cancel := context.WithTimeout(ctx, remoteCancelTimeout)
	defer cancel()

	if err := e.remote.CancelSession(ctx, handle); err != nil {
		e.logger.Debug("remote session cancel failed",
			slog.String("handle", gdrive.RedactHandle(handle)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) deliver(c Completion) {
	e.logger.Info("upload finished",
		slog.String("file", c.File.Name),
		slog.String("handle", gdrive.RedactHandle(c.Handle)),
		slog.String("outcome", c.Outcome.String()),
	)

	if e.opts.OnCompletion != nil {
		e.opts.OnCompletion(c)
	}
}

func (e *Engine) progress(r *run, s uploadstate.Session, sent int64) {
	r.setOffset(sent)

	if e.opts.OnProgress != nil {
		e.opts.OnProgress(Progress{Handle: s.Handle, File: s.File, Sent: sent, Total: s.File.Size})
	}
}

// refresh renews the token once. The caller decides what a failure means.
func (e *Engine) refresh(ctx context.Context) error {
	_, err := e.tokens.Refresh(ctx)
	e.opts.Metrics.TokenRefreshed(err)

	if err != nil {
		e.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		return err
	}

	return nil
}

func (e *Engine) newRun() *run {
	r := &run{}

	e.mu.Lock()
	e.runs[r] = struct{}{}
	e.mu.Unlock()

	return r
}

// claim makes r the only run allowed to send for handle.
func (e *Engine) claim(handle string, r *run) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, taken := e.claimed[handle]; taken {
		return false
	}

	e.claimed[handle] = r

	return true
}

func (e *Engine) retire(r *run) {
	r.transition(StateTerminal)

	handle := r.status().Handle

	e.mu.Lock()
	delete(e.runs, r)

	if handle != "" && e.claimed[handle] == r {
		delete(e.claimed, handle)
	}
	e.mu.Unlock()
}
