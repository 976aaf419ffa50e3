package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/gdrive-upload/internal/progressfeed"
	"github.com/tonimelisma/gdrive-upload/internal/upload"
	"github.com/tonimelisma/gdrive-upload/internal/watch"
)

// feedShutdownTimeout bounds how long the feed server drains on exit.
const feedShutdownTimeout = 5 * time.Second

func newWatchCmd() *cobra.Command {
	var (
		tf          transferFlags
		destination string
		message     string
		feedAddr    string
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload every file dropped into a directory",
		Long: `Watch a directory and upload each new file once it stops changing for the
configured settle delay. Files smaller than upload.min_file_size are skipped
unless upload.upload_everything is set.

Pending uploads from earlier runs are resumed at start. With --feed-addr,
progress and share links are published as JSON over a WebSocket at /events
and engine metrics are served at /metrics.

Ctrl-C stops watching and lets every upload finish the chunk in flight; a
second Ctrl-C aborts the chunks. Interrupted uploads are resumed on the next
start.

Examples:
  gdrive-upload watch ~/Outbox
  gdrive-upload watch ~/Outbox --to team-chat --feed-addr 127.0.0.1:8765`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0], destination, message)
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVar(&destination, "to", "", "destination tag recorded with each upload")
	cmd.Flags().StringVarP(&message, "message", "m", "", "text to post above each share link")
	cmd.Flags().StringVar(&feedAddr, "feed-addr", "", "serve the progress feed and metrics on host:port")

	return cmd
}

func runWatch(cmd *cobra.Command, dir, destination, message string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	cleanup, err := writePIDFile(cc.Cfg.PIDPath())
	if err != nil {
		return err
	}
	defer cleanup()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := upload.NewPrometheusMetrics("gdrive_upload", reg)
	if err != nil {
		return err
	}

	hub := progressfeed.NewHub(logger)
	defer hub.Close()

	sess, err := newUploadSession(cmd.Context(), cc, sessionHooks{
		OnProgress: hub.Progress,
		OnCompletion: func(c upload.Completion) {
			hub.Completion(c)
			cc.Statusf("%s: %s\n", c.File.Name, describeOutcome(c.Outcome))
		},
		OnShare: func(n upload.ShareNotice) {
			hub.Share(n)
			fmt.Fprintln(cc.Stdout, n.Message)
		},
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := stopOnSignal(cmd.Context(), logger, sess.Engine.Drain)
	defer stop()

	if cc.Cfg.FeedAddr != "" {
		srv, err := progressfeed.Start(cc.Cfg.FeedAddr, progressfeed.NewMux(hub, reg), logger)
		if err != nil {
			return err
		}

		defer func() {
			hub.Close()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), feedShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("progress feed shutdown", slog.String("error", err.Error()))
			}
		}()
	}

	// Uploads run under ctx, not the observer's context, so they outlive
	// the observer after a drain and finish their chunk in flight.
	submit := func(_ context.Context, path string) {
		if _, err := sess.Engine.Initiate(ctx, upload.Request{Path: path, Destination: destination, Text: message}); err != nil {
			logger.Warn("could not start upload", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	observer := watch.NewObserver(
		watch.Filter{MinSize: cc.Cfg.MinFileSize, Everything: cc.Cfg.UploadEverything},
		cc.Cfg.SettleDelay,
		submit,
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		report, err := sess.Engine.ResumeAll(gctx)
		if err != nil {
			return err
		}

		if n := len(report.Results); n > 0 {
			logger.Info("pending uploads handled",
				slog.Int("total", n),
				slog.Int("resumed", report.Count(upload.RecoveryResumed)),
				slog.Int("restarted", report.Count(upload.RecoveryReinitiated)),
				slog.Int("left_pending", report.Count(upload.RecoveryRetained)),
			)
		}

		return nil
	})

	g.Go(func() error {
		// A drain stops new files from being picked up right away.
		wctx, stopWatching := context.WithCancel(gctx)
		defer stopWatching()

		go func() {
			select {
			case <-sess.Engine.Draining():
				stopWatching()
			case <-wctx.Done():
			}
		}()

		return observer.Watch(wctx, dir)
	})

	cc.Statusf("Watching %s. Press Ctrl-C to stop.\n", dir)

	err = g.Wait()

	// Uploads started by the observer pause at their next chunk once
	// drained and stay pending.
	sess.Engine.Wait()

	return err
}
