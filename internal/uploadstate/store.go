package uploadstate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// stateDirPerms keeps upload state private: it holds session URIs.
const stateDirPerms = 0o700

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store owns the SQLite database shared by the Registry and the History.
type Store struct {
	db       *sql.DB
	registry *Registry
	history  *History
}

// Open opens (creating if needed) the state database at dbPath and applies
// pending migrations. The database runs in WAL mode with synchronous=FULL
// so a registered session survives a crash right after Register returns.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), stateDirPerms); err != nil {
		return nil, fmt.Errorf("uploadstate: creating state directory: %w", err)
	}

	// DSN parameters apply the pragmas to every pooled connection.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("uploadstate: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: one connection, so SQLite never reports SQLITE_BUSY
	// between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("upload state database ready", slog.String("path", dbPath))

	return &Store{
		db:       db,
		registry: &Registry{db: db, logger: logger, now: time.Now},
		history:  &History{db: db, logger: logger, now: time.Now},
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Registry returns the session registry backed by this store.
func (s *Store) Registry() *Registry {
	return s.registry
}

// History returns the completed-upload history backed by this store.
func (s *Store) History() *History {
	return s.history
}

// runMigrations applies all pending schema migrations with the goose v3
// Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("uploadstate: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("uploadstate: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("uploadstate: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
