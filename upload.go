package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/gdrive-upload/internal/upload"
)

// errUploadsFailed makes the process exit non-zero after the per-file
// report has already been printed.
var errUploadsFailed = errors.New("one or more uploads did not complete")

// transferFlags are the per-command overrides shared by upload, resume,
// and watch. They are read by the root pre-run through the flag set.
type transferFlags struct {
	chunkSize  string
	directLink bool
	noShare    bool
}

func (f *transferFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.chunkSize, "chunk-size", "", "bytes per request, a multiple of 256KiB (e.g. 8MiB)")
	cmd.Flags().BoolVar(&f.directLink, "direct-link", false, "share direct download links instead of viewer links")
	cmd.Flags().BoolVar(&f.noShare, "no-share", false, "keep uploaded files private")
}

func newUploadCmd() *cobra.Command {
	var (
		tf          transferFlags
		destination string
		message     string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files and print their share links",
		Long: `Upload one or more files with the resumable protocol, then make each one
readable by link and print the link (after --message, when given).

An interrupted upload is kept: run 'gdrive-upload resume' to finish it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args, destination, message)
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVar(&destination, "to", "", "destination tag recorded with the upload (e.g. a channel name)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "text to post above the share link")

	return cmd
}

func runUpload(cmd *cobra.Command, paths []string, destination, message string) error {
	cc := mustCLIContext(cmd.Context())
	progress := newProgressPrinter(cc.Stderr, cc.Flags.Quiet)

	sess, err := newUploadSession(cmd.Context(), cc, sessionHooks{
		OnProgress: progress.update,
		OnShare: func(n upload.ShareNotice) {
			fmt.Fprintln(cc.Stdout, n.Message)
		},
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := stopOnSignal(cmd.Context(), cc.Logger, sess.Engine.Drain)
	defer stop()

	handles := make([]string, len(paths))
	outcomes := make([]upload.Outcome, len(paths))

	var g errgroup.Group
	g.SetLimit(cc.Cfg.ParallelUploads)

	for i, path := range paths {
		g.Go(func() error {
			handles[i], outcomes[i] = sess.Engine.Upload(ctx, upload.Request{
				Path:        path,
				Destination: destination,
				Text:        message,
			})

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return an error

	progress.finish()

	failed := 0

	for i, o := range outcomes {
		if o.Status != upload.StatusSuccess {
			failed++
		}

		if handles[i] == "" && errors.Is(o.Err, upload.ErrDraining) {
			cc.Statusf("%s: not started, shutting down\n", paths[i])
			continue
		}

		cc.Statusf("%s: %s\n", paths[i], describeOutcome(o))
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errUploadsFailed, failed, len(paths))
	}

	return nil
}
