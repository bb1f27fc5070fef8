package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path: "file:" + t.Name() + "?mode=memory&cache=shared",
		Name: t.Name(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'portfolios'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWithTransactionCommit(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO asset_classes (name) VALUES ('Stocks')`)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM asset_classes`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransactionRollback(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO asset_classes (name) VALUES ('Stocks')`); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM asset_classes`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransactionPanicRollsBack(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, _ = tx.Exec(`INSERT INTO asset_classes (name) VALUES ('Stocks')`)
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM asset_classes`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.HealthCheck(context.Background()))
}
