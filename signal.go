package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// stopOnSignal stages how SIGINT/SIGTERM stop running uploads. The first
// signal calls drain: every upload finishes the chunk in flight and pauses
// with its session kept. The second cancels the returned context, which
// aborts requests mid-chunk; sessions are still kept. The third exits.
// With a nil drain the first signal cancels right away.
//
// The returned stop function cancels the context and stops listening, like
// signal.NotifyContext.
func stopOnSignal(parent context.Context, logger *slog.Logger, drain func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quit := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer signal.Stop(sigCh)

		drained := drain == nil

		for {
			select {
			case sig := <-sigCh:
				attr := slog.String("signal", sig.String())

				switch {
				case !drained:
					logger.Info("pausing uploads after the chunk in flight; signal again to abort it", attr)
					drain()

					drained = true
				case ctx.Err() == nil:
					logger.Warn("aborting uploads mid-chunk; they stay pending for 'gdrive-upload resume'", attr)
					cancel()
				default:
					logger.Warn("forcing exit", attr)
					os.Exit(1)
				}
			case <-parent.Done():
				cancel()
				return
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once

	stop := func() {
		once.Do(func() {
			cancel()
			close(quit)
			<-done
		})
	}

	return ctx, stop
}
