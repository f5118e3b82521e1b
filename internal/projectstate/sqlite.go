package projectstate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps one row per record key and upserts rows individually.
type SQLiteStore struct {
	conn   *sql.DB
	logger *zap.Logger
	// Now is injected for testability.
	Now func() time.Time
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return newSQLiteStore(conn, logger)
}

// OpenSQLiteInMemory opens a private in-memory database, useful for tests.
func OpenSQLiteInMemory(logger *zap.Logger) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	conn.SetMaxOpenConns(1)
	return newSQLiteStore(conn, logger)
}

func newSQLiteStore(conn *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := migrateSQLite(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &SQLiteStore{
		conn:   conn,
		logger: logger,
		Now:    nowOrDefault(nil),
	}, nil
}

func migrateSQLite(conn *sql.DB) error {
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Load returns the stored record for key.
func (s *SQLiteStore) Load(ctx context.Context, key string) (Record, bool) {
	now := nowOrDefault(s.Now)()

	var body string
	err := s.conn.QueryRowContext(ctx, `SELECT body FROM project_records WHERE record_key = ?`, key).Scan(&body)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("project record query failed; using defaults", zap.String("key", key), zap.Error(err))
		}
		return Default(now), false
	}

	record, err := decodeRecord([]byte(body), now)
	if err != nil {
		s.logger.Warn("project record unreadable; using defaults", zap.String("key", key), zap.Error(err))
		return Default(now), false
	}
	return record, true
}

// Save upserts the row for key.
func (s *SQLiteStore) Save(ctx context.Context, key string, record Record) error {
	if key == "" {
		return fmt.Errorf("record key is required")
	}
	body, err := encodeRecord(record)
	if err != nil {
		return err
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = nowOrDefault(s.Now)()
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO project_records (record_key, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(record_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		key, string(body), updatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save project record %s: %w", key, err)
	}
	return nil
}

// Delete removes the row for key. Missing keys are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM project_records WHERE record_key = ?`, key); err != nil {
		return fmt.Errorf("delete project record %s: %w", key, err)
	}
	return nil
}

// Keys lists stored record keys in sorted order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT record_key FROM project_records ORDER BY record_key`)
	if err != nil {
		return nil, fmt.Errorf("list project records: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan project record key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
