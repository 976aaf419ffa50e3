package upload

import (
	"context"
	"io"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// Remote is the resumable-upload dialect the engine drives. Each method
// issues exactly one request; the engine decides what is retried.
// Satisfied by *gdrive.Client.
type Remote interface {
	CreateSession(ctx context.Context, meta gdrive.FileMetadata) (string, error)
	ProbeSession(ctx context.Context, handle string) (*gdrive.ChunkResult, error)
	PutChunk(ctx context.Context, handle string, chunk io.Reader, offset, length, total int64) (*gdrive.ChunkResult, error)
	GrantPublicRead(ctx context.Context, itemID string) error
	CancelSession(ctx context.Context, handle string) error
}

// TokenRefresher renews the bearer credential after a 401. An error means
// the session cannot continue until the user authorizes again.
// Satisfied by *gdrive.TokenProvider.
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Registry is the durable set of sessions not yet confirmed terminal.
// Satisfied by *uploadstate.Registry.
type Registry interface {
	Register(ctx context.Context, s uploadstate.Session) error
	List(ctx context.Context) ([]uploadstate.Session, error)
	Get(ctx context.Context, handle string) (*uploadstate.Session, error)
	Unregister(ctx context.Context, handle string) (removed bool, err error)
}

// HistoryLog is the append-only record of completed uploads.
// Satisfied by *uploadstate.History.
type HistoryLog interface {
	Append(ctx context.Context, e uploadstate.HistoryEntry) (int64, error)
	List(ctx context.Context) ([]uploadstate.HistoryEntry, error)
}

// Compile-time checks for the production implementations.
var (
	_ Remote         = (*gdrive.Client)(nil)
	_ TokenRefresher = (*gdrive.TokenProvider)(nil)
	_ Registry       = (*uploadstate.Registry)(nil)
	_ HistoryLog     = (*uploadstate.History)(nil)
)
