package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/upload"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

func newPendingCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List uploads that have not finished yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPending(cmd, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")

	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Abandon a pending upload",
		Long: `Drop a pending upload and release its session on Drive. <id> is the ID
shown by 'gdrive-upload pending'.

A running watcher owns its uploads; stop it before canceling.`,
		Args: cobra.ExactArgs(1),
		RunE: runCancel,
	}
}

// pendingJSON is the JSON shape of one pending upload. The session URI is
// never printed; ID is its fingerprint.
type pendingJSON struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mime_type"`
	Destination string    `json:"destination,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

func runPending(cmd *cobra.Command, asJSON bool) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	store, err := openStore(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Registry().List(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		out := make([]pendingJSON, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, pendingJSON{
				ID:          gdrive.RedactHandle(s.Handle),
				Path:        s.File.Path,
				Name:        s.File.Name,
				Size:        s.File.Size,
				MimeType:    s.File.MimeType,
				Destination: s.Destination,
				StartedAt:   s.CreatedAt,
			})
		}

		enc := json.NewEncoder(cc.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	if len(sessions) == 0 {
		cc.Statusf("No pending uploads.\n")
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			gdrive.RedactHandle(s.Handle),
			s.File.Name,
			formatSize(s.File.Size),
			formatTime(s.CreatedAt),
			s.Destination,
		})
	}

	printTable(cc.Stdout, []string{"ID", "FILE", "SIZE", "STARTED", "TO"}, rows)

	if pid, running := watcherRunning(cc.Cfg.PIDPath()); running {
		cc.Statusf("A watcher (PID %d) is running and owns these uploads.\n", pid)
	}

	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if pid, running := watcherRunning(cc.Cfg.PIDPath()); running {
		return fmt.Errorf("a watcher (PID %d) is running; stop it before canceling uploads", pid)
	}

	sess, err := newUploadSession(ctx, cc, sessionHooks{
		OnCompletion: func(c upload.Completion) {
			cc.Statusf("%s: %s\n", c.File.Name, describeOutcome(c.Outcome))
		},
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	handle, err := findPending(ctx, sess.Store.Registry(), args[0])
	if err != nil {
		return err
	}

	return sess.Engine.Cancel(ctx, handle)
}

// findPending resolves an ID from 'pending' (or a full session URI) to
// the registered handle.
func findPending(ctx context.Context, reg *uploadstate.Registry, id string) (string, error) {
	sessions, err := reg.List(ctx)
	if err != nil {
		return "", err
	}

	id = strings.TrimSpace(id)

	for _, s := range sessions {
		if s.Handle == id || gdrive.RedactHandle(s.Handle) == id {
			return s.Handle, nil
		}
	}

	return "", fmt.Errorf("%w: %s", upload.ErrUnknownSession, id)
}
