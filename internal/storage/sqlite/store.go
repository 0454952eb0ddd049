package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"olie/internal/events"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a versioned write lost against a concurrent writer.
	ErrConflict = errors.New("version conflict")
	// ErrInvalid wraps input that cannot be stored.
	ErrInvalid = errors.New("invalid input")
)

// Store wraps access to the SQLite database and exposes high level helpers.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	hub    *events.Hub
}

// Open initializes a new SQLite store and runs the required migrations. driver is either
// "sqlite3" (cgo) or "sqlite" (pure Go). Committed changes are published to hub when it is
// not nil.
func Open(driver, dbPath string, logger *slog.Logger, hub *events.Hub) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	dsn, err := dataSourceName(driver, dbPath)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger, hub: hub}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Debug("database ready", slog.String("driver", driver), slog.String("path", dbPath))
	return s, nil
}

func dataSourceName(driver, dbPath string) (string, error) {
	switch driver {
	case "sqlite3":
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath), nil
	case "sqlite":
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath), nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS boards (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            color TEXT NOT NULL DEFAULT '#2563eb',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS cards (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            board_id INTEGER NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            position INTEGER NOT NULL DEFAULT 0,
            priority TEXT NOT NULL DEFAULT 'normal',
            version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_cards_board ON cards(board_id);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_board_status ON cards(board_id, status, position);`,
		`CREATE TRIGGER IF NOT EXISTS trg_boards_updated
            AFTER UPDATE ON boards
            FOR EACH ROW BEGIN
                UPDATE boards SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
		`CREATE TRIGGER IF NOT EXISTS trg_cards_updated
            AFTER UPDATE ON cards
            FOR EACH ROW BEGIN
                UPDATE cards SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) publish(e events.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(e)
}
