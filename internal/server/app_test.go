package server

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zelebiz/zelebiz/internal/server/config"
)

func withSQLOpen(t *testing.T, fn func(driver, dsn string) (*sql.DB, error)) {
	t.Helper()
	prev := sqlOpen
	sqlOpen = fn
	t.Cleanup(func() { sqlOpen = prev })
}

func TestNewApp_OpenError(t *testing.T) {
	boom := errors.New("boom")
	withSQLOpen(t, func(string, string) (*sql.DB, error) { return nil, boom })

	cfg := &config.Config{}
	cfg.LoadDefaults()

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "db init error")
}

func TestNewApp_MigrationErrorClosesDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectClose()

	var gotDriver, gotDSN string
	withSQLOpen(t, func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	})

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabaseDSN = "postgres://u:p@localhost/test"

	_, err = NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations")
	assert.Equal(t, "pgx", gotDriver)
	assert.Equal(t, cfg.DatabaseDSN, gotDSN)
	require.NoError(t, mock.ExpectationsWereMet())
}
