package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/zelebiz/zelebiz/internal/common"
)

func newMock(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db), mock
}

func TestSQLiteStore_DriverErrorsAreStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("database or disk is full")

	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO kv`)).WillReturnError(diskFull)
	err := s.Put(ctx, "k", []byte("v"))
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
	require.ErrorIs(t, err, diskFull)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value, version, updated_at FROM kv`)).WillReturnError(diskFull)
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, common.ErrStorageUnavailable)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kv`)).WillReturnError(diskFull)
	require.ErrorIs(t, s.Remove(ctx, "k"), common.ErrStorageUnavailable)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE kv SET`)).WillReturnError(diskFull)
	require.ErrorIs(t, s.CompareAndSwap(ctx, "k", 2, nil), common.ErrStorageUnavailable)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value, version, updated_at FROM kv`)).WillReturnError(diskFull)
	_, err = s.List(ctx, "p")
	require.ErrorIs(t, err, common.ErrStorageUnavailable)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_MissingRowIsNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value, version, updated_at FROM kv`)).WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "k")
	require.ErrorIs(t, err, common.ErrNotFound)
	require.NotErrorIs(t, err, common.ErrStorageUnavailable)
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='kv'`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestOpen_CreatesParentDir(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_BadPathIsStorageUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := Open(context.Background(), filepath.Join(blocker, "x.db"))
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
}
