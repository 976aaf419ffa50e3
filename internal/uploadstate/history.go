package uploadstate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	sqlInsertHistory = `INSERT INTO history
		(completed_at, remote_item_id, file_path, file_name, file_size, mime_type, destination, link)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListHistory = `SELECT id, completed_at, remote_item_id, file_path, file_name,
		file_size, mime_type, destination, link
		FROM history ORDER BY completed_at DESC, id DESC`

	sqlClearHistory = `DELETE FROM history`
)

// History is the append-only log of completed uploads.
type History struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Append records a completed upload and returns its id. A zero CompletedAt
// is stamped with the current time.
func (h *History) Append(ctx context.Context, e HistoryEntry) (int64, error) {
	if e.CompletedAt.IsZero() {
		e.CompletedAt = h.now()
	}

	res, err := h.db.ExecContext(ctx, sqlInsertHistory,
		e.CompletedAt.UnixNano(), e.RemoteItemID, e.File.Path, e.File.Name, e.File.Size,
		e.File.MimeType, e.Destination, e.Link,
	)
	if err != nil {
		return 0, fmt.Errorf("uploadstate: appending history: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("uploadstate: appending history: %w", err)
	}

	h.logger.Debug("history entry appended",
		slog.Int64("id", id),
		slog.String("item_id", e.RemoteItemID),
	)

	return id, nil
}

// List returns all entries, newest first.
func (h *History) List(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := h.db.QueryContext(ctx, sqlListHistory)
	if err != nil {
		return nil, fmt.Errorf("uploadstate: listing history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry

	for rows.Next() {
		var (
			e         HistoryEntry
			completed int64
		)

		if err := rows.Scan(&e.ID, &completed, &e.RemoteItemID, &e.File.Path, &e.File.Name,
			&e.File.Size, &e.File.MimeType, &e.Destination, &e.Link); err != nil {
			return nil, fmt.Errorf("uploadstate: scanning history: %w", err)
		}

		e.CompletedAt = time.Unix(0, completed)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("uploadstate: iterating history: %w", err)
	}

	return entries, nil
}

// Clear deletes every entry and returns how many were removed.
func (h *History) Clear(ctx context.Context) (int64, error) {
	res, err := h.db.ExecContext(ctx, sqlClearHistory)
	if err != nil {
		return 0, fmt.Errorf("uploadstate: clearing history: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("uploadstate: clearing history: %w", err)
	}

	h.logger.Info("history cleared", slog.Int64("removed", n))

	return n, nil
}
