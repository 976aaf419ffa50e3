package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		asJSON   bool
		clearAll bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed uploads, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if clearAll {
				return runHistoryClear(cmd)
			}

			return runHistory(cmd, asJSON, limit)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete the upload history")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many entries (0 = all)")

	return cmd
}

type historyJSON struct {
	CompletedAt  time.Time `json:"completed_at"`
	RemoteItemID string    `json:"remote_item_id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	Destination  string    `json:"destination,omitempty"`
	Link         string    `json:"link"`
}

func runHistory(cmd *cobra.Command, asJSON bool, limit int) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	store, err := openStore(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.History().List(ctx)
	if err != nil {
		return err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if asJSON {
		out := make([]historyJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, historyJSON{
				CompletedAt:  e.CompletedAt,
				RemoteItemID: e.RemoteItemID,
				Name:         e.File.Name,
				Path:         e.File.Path,
				Size:         e.File.Size,
				MimeType:     e.File.MimeType,
				Destination:  e.Destination,
				Link:         e.Link,
			})
		}

		enc := json.NewEncoder(cc.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	if len(entries) == 0 {
		cc.Statusf("No uploads yet.\n")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{formatTime(e.CompletedAt), e.File.Name, formatSize(e.File.Size), e.Link})
	}

	printTable(cc.Stdout, []string{"COMPLETED", "FILE", "SIZE", "LINK"}, rows)

	return nil
}

func runHistoryClear(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	store, err := openStore(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.History().Clear(ctx)
	if err != nil {
		return err
	}

	cc.Statusf("Removed %d history entries.\n", n)

	return nil
}
