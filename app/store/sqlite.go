package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLite keeps objects as rows of a single table
type SQLite struct {
	db *sqlx.DB
}

type sqliteRow struct {
	Key       string `db:"key"`
	Size      int64  `db:"size"`
	UpdatedAt int64  `db:"updated_at"`
}

// NewSQLite opens (or creates) the database file and makes sure the schema is in place
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer, concurrent writes through a pool fail with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set busy timeout: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initialize(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (also failed to close db: %v)", err, closeErr)
		}
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initialize() error {
	query := `CREATE TABLE IF NOT EXISTS objects (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		content_type TEXT,
		updated_at INTEGER
	)`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create objects table: %w", err)
	}
	return nil
}

// List returns objects with keys starting with prefix, ordered by key
func (s *SQLite) List(ctx context.Context, prefix string) ([]Object, error) {
	rows := []sqliteRow{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT key, length(data) AS size, updated_at FROM objects WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
		prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects with prefix %q: %w", prefix, err)
	}

	res := make([]Object, 0, len(rows))
	for _, r := range rows {
		res = append(res, Object{Key: r.Key, Location: s.location(r.Key), Size: r.Size, UpdatedAt: time.UnixMilli(r.UpdatedAt)})
	}
	return res, nil
}

// Get returns the object's content
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	if err := s.db.GetContext(ctx, &data, `SELECT data FROM objects WHERE key = ?`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Put inserts the object, existing key is replaced only with AllowOverwrite
func (s *SQLite) Put(ctx context.Context, key string, data []byte, opts PutOpts) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	now := time.Now()
	verb := "INSERT OR IGNORE"
	if opts.AllowOverwrite {
		verb = "INSERT OR REPLACE"
	}
	res, err := s.db.ExecContext(ctx, verb+` INTO objects (key, data, content_type, updated_at) VALUES (?, ?, ?, ?)`,
		key, data, opts.ContentType, now.UnixMilli())
	if err != nil {
		return Object{}, fmt.Errorf("failed to put %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Object{}, fmt.Errorf("failed to check put result for %s: %w", key, err)
	}
	if affected == 0 {
		return Object{}, fmt.Errorf("put %s: %w", key, ErrExists)
	}
	return Object{Key: key, Location: s.location(key), Size: int64(len(data)), UpdatedAt: now}, nil
}

// Delete removes the object
func (s *SQLite) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result for %s: %w", key, err)
	}
	if affected == 0 {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	return nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) location(key string) string { return "sqlite://" + key }

