package uploadstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	sqlUpsertSession = `INSERT INTO sessions
		(handle, file_path, file_name, file_size, mime_type, destination, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			file_path = excluded.file_path,
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			mime_type = excluded.mime_type,
			destination = excluded.destination,
			message = excluded.message,
			created_at = excluded.created_at`

	sqlSelectSessions = `SELECT handle, file_path, file_name, file_size, mime_type,
		destination, message, created_at FROM sessions`

	sqlDeleteSession = `DELETE FROM sessions WHERE handle = ?`
)

// Registry is the durable set of in-flight resumable sessions, keyed by
// handle. Mutations are serialized so concurrent Register and Unregister
// calls never interleave.
type Registry struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Register records a session, replacing any entry with the same handle.
// A zero CreatedAt is stamped with the current time.
func (r *Registry) Register(ctx context.Context, s Session) error {
	if s.Handle == "" {
		return fmt.Errorf("uploadstate: register: empty handle")
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, sqlUpsertSession,
		s.Handle, s.File.Path, s.File.Name, s.File.Size, s.File.MimeType,
		s.Destination, s.Text, s.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("uploadstate: register session: %w", err)
	}

	r.logger.Debug("session registered", slog.String("file", s.File.Name))

	return nil
}

// List returns every registered session, oldest first.
func (r *Registry) List(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, sqlSelectSessions+" ORDER BY created_at, handle")
	if err != nil {
		return nil, fmt.Errorf("uploadstate: listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session

	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("uploadstate: iterating sessions: %w", err)
	}

	return sessions, nil
}

// Get returns the session for handle, or (nil, nil) when none is registered.
func (r *Registry) Get(ctx context.Context, handle string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, sqlSelectSessions+" WHERE handle = ?", handle)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil session means "not registered"
	}

	if err != nil {
		return nil, err
	}

	return &s, nil
}

// Unregister removes the entry for handle. removed is false when no entry
// existed; that is not an error. Callers use removed to make terminal
// handling happen exactly once.
func (r *Registry) Unregister(ctx context.Context, handle string) (removed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, sqlDeleteSession, handle)
	if err != nil {
		return false, fmt.Errorf("uploadstate: unregister session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("uploadstate: unregister session: %w", err)
	}

	return n > 0, nil
}

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s       Session
		created int64
	)

	err := row.Scan(&s.Handle, &s.File.Path, &s.File.Name, &s.File.Size, &s.File.MimeType,
		&s.Destination, &s.Text, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, err
	}

	if err != nil {
		return Session{}, fmt.Errorf("uploadstate: scanning session: %w", err)
	}

	s.CreatedAt = time.Unix(0, created)

	return s, nil
}
