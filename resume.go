package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-upload/internal/upload"
)

func newResumeCmd() *cobra.Command {
	var tf transferFlags

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Finish uploads interrupted by a crash or a lost connection",
		Long: `Ask Drive how much of every pending upload it already holds and continue
from there. Uploads whose session expired on the server start over under a
new session. Uploads the server gives an unexpected answer for are left
pending and reported.

Examples:
  gdrive-upload resume
  gdrive-upload resume --chunk-size 16MiB`,
		Args: cobra.NoArgs,
		RunE: runResume,
	}

	tf.register(cmd)

	return cmd
}

func runResume(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	if pid, running := watcherRunning(cc.Cfg.PIDPath()); running {
		return fmt.Errorf("a watcher (PID %d) is running and resumes pending uploads itself", pid)
	}

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

	report, err := sess.Engine.ResumeAll(ctx)
	if err != nil {
		return err
	}

	progress.finish()

	if len(report.Results) == 0 {
		cc.Statusf("No pending uploads.\n")
		return nil
	}

	failed := 0
	rows := make([][]string, 0, len(report.Results))

	for _, r := range report.Results {
		rows = append(rows, []string{r.File.Name, r.Action.String(), recoveryDetail(r)})

		if recoveryFailed(r) {
			failed++
		}
	}

	if !cc.Flags.Quiet {
		printTable(cc.Stderr, []string{"FILE", "ACTION", "RESULT"}, rows)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errUploadsFailed, failed, len(report.Results))
	}

	return nil
}

func recoveryDetail(r upload.RecoveryResult) string {
	switch r.Action {
	case upload.RecoveryCompleted:
		return "already on Drive"
	case upload.RecoveryRetained:
		return fmt.Sprintf("left pending: %v", r.Err)
	case upload.RecoverySkipped:
		return "already running"
	case upload.RecoveryResumed, upload.RecoveryReinitiated:
		return describeOutcome(r.Outcome)
	default:
		return ""
	}
}

func recoveryFailed(r upload.RecoveryResult) bool {
	switch r.Action {
	case upload.RecoveryResumed, upload.RecoveryReinitiated:
		return r.Outcome.Status != upload.StatusSuccess
	case upload.RecoveryRetained:
		return true
	default:
		return false
	}
}
