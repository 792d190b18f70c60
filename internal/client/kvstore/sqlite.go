package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/zelebiz/zelebiz/internal/client/migrations"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/dbx"
	"github.com/zelebiz/zelebiz/internal/filex"
)

// SQLiteStore keeps every key in the kv table of a local SQLite database.
type SQLiteStore struct {
	db  dbx.DBTX
	raw *sql.DB
	now func() time.Time
}

// NewSQLiteStore wraps an already migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, raw: db, now: time.Now}
}

// RunMigrations applies the embedded client schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the database file at path and migrates it.
// A single connection is kept so writes are serialized by SQLite itself.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := filex.EnsureParentDir(path); err != nil {
		return nil, unavailable("open", path, err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, unavailable("open", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, unavailable("migrate", path, err)
	}

	return NewSQLiteStore(db), nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, key, common.ErrStorageUnavailable, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	item, err := s.GetItem(ctx, key)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, key string) (*Item, error) {
	item := Item{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version, updated_at FROM kv WHERE key = ?`, key,
	).Scan(&item.Value, &item.Version, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("key %q: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	return &item, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = kv.version + 1,
			updated_at = excluded.updated_at
	`, key, nonNil(value), s.now().UTC())
	if err != nil {
		return unavailable("put", key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return unavailable("remove", key, err)
	}
	return nil
}

func (s *SQLiteStore) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) error {
	var (
		res sql.Result
		err error
	)
	if version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO kv (key, value, version, updated_at) VALUES (?, ?, 1, ?)
			ON CONFLICT(key) DO NOTHING
		`, key, nonNil(value), s.now().UTC())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE kv SET value = ?, version = version + 1, updated_at = ?
			WHERE key = ? AND version = ?
		`, nonNil(value), s.now().UTC(), key, version)
	}
	if err != nil {
		return unavailable("cas", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("cas", key, err)
	}
	if n == 0 {
		return fmt.Errorf("key %q at version %d: %w", key, version, ErrVersionConflict)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return update(ctx, s, key, fn)
}

// List returns all items whose key starts with prefix, ordered by key.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, version, updated_at FROM kv
		WHERE ? = '' OR instr(key, ?) = 1
		ORDER BY key
	`, prefix, prefix)
	if err != nil {
		return nil, unavailable("list", prefix, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Key, &it.Value, &it.Version, &it.UpdatedAt); err != nil {
			return nil, unavailable("list", prefix, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", prefix, err)
	}
	return items, nil
}

func (s *SQLiteStore) Close() error {
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
