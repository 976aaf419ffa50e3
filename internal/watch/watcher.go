// Package watch turns files dropped into a directory into upload requests.
// A file is handed on once it stopped changing for the settle delay and
// passes the size and name filters.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Error backoff for a misbehaving watcher (e.g. kernel queue overflow).
const (
	errInitBackoff = time.Second
	errBackoffMult = 2
	errMaxBackoff  = time.Minute
)

// FsWatcher is the subset of fsnotify.Watcher the observer uses.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// NewFsWatcher returns an FsWatcher backed by fsnotify.
func NewFsWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating watcher: %w", err)
	}

	return fsnotifyWatcher{w: w}, nil
}

// SubmitFunc receives the absolute path of each settled file.
type SubmitFunc func(ctx context.Context, path string)

// Observer watches one directory, non-recursively.
type Observer struct {
	logger     *slog.Logger
	filter     Filter
	settle     time.Duration
	submit     SubmitFunc
	newWatcher func() (FsWatcher, error)
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewObserver creates an observer that hands settled files to submit.
func NewObserver(filter Filter, settle time.Duration, submit SubmitFunc, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Observer{
		logger:     logger,
		filter:     filter,
		settle:     settle,
		submit:     submit,
		newWatcher: NewFsWatcher,
		sleep:      sleepCtx,
	}
}

// Watch blocks until ctx is canceled or the watcher closes. Files already
// present when Watch starts are left alone.
func (o *Observer) Watch(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("watch: resolving %s: %w", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("watch: %s is not a directory", dir)
	}

	watcher, err := o.newWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(abs); err != nil {
		return fmt.Errorf("watch: adding %s: %w", abs, err)
	}

	o.logger.Info("watching directory",
		slog.String("dir", abs),
		slog.Duration("settle_delay", o.settle),
	)

	return o.loop(ctx, watcher)
}

// loop is the select loop behind Watch: filesystem events arm or disarm
// per-path settle timers, and each expired timer submits its path.
func (o *Observer) loop(ctx context.Context, watcher FsWatcher) error {
	done := make(chan struct{})
	defer close(done)

	ready := make(chan settleTick)
	pending := make(map[string]*settleTimer)

	defer func() {
		for _, p := range pending {
			p.timer.Stop()
		}
	}()

	// Every arm bumps the generation, so a tick from a timer that fired
	// just before being re-armed is recognized as stale.
	arm := func(path string) {
		p, ok := pending[path]
		if !ok {
			p = &settleTimer{}
			pending[path] = p
		} else {
			p.timer.Stop()
		}

		p.gen++
		gen := p.gen

		p.timer = time.AfterFunc(o.settle, func() {
			select {
			case ready <- settleTick{path: path, gen: gen}:
			case <-done:
			}
		})
	}

	errBackoff := errInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				if o.filter.excludedName(filepath.Base(ev.Name)) {
					o.logger.Debug("ignoring excluded file", slog.String("path", ev.Name))
					continue
				}

				arm(ev.Name)

			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				if p, ok := pending[ev.Name]; ok {
					p.timer.Stop()
					delete(pending, ev.Name)
				}
			}

			errBackoff = errInitBackoff

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			o.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if o.sleep(ctx, errBackoff) != nil {
				return nil
			}

			errBackoff = min(errBackoff*errBackoffMult, errMaxBackoff)

		case tick := <-ready:
			p, ok := pending[tick.path]
			if !ok || p.gen != tick.gen {
				continue
			}

			delete(pending, tick.path)
			o.settled(ctx, tick.path)
		}
	}
}

type settleTimer struct {
	timer *time.Timer
	gen   int
}

type settleTick struct {
	path string
	gen  int
}

func (o *Observer) settled(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		o.logger.Debug("settled file vanished", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if !info.Mode().IsRegular() {
		return
	}

	if !o.filter.acceptSize(info.Size()) {
		o.logger.Info("skipping small file",
			slog.String("path", path),
			slog.Int64("size", info.Size()),
			slog.Int64("min_size", o.filter.MinSize),
		)

		return
	}

	o.submit(ctx, path)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
