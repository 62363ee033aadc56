package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_FreshDatabase(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	pending, err := store.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, len(migrations))

	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	pending, err = store.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// The revision column and its index exist
	var indexCount int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_ledger_state_updated_at'
	`).Scan(&indexCount)
	require.NoError(t, err)
	assert.Equal(t, 1, indexCount)
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Migrate(context.Background()))
}

func TestMigrate_UpgradesVersionOneRows(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "v1.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	// Build a version 1 database holding one document
	tx, err := store.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, migrations[0].Up(tx))
	_, err = tx.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	doc, err := EncodeState(sampleState())
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx,
		`INSERT INTO ledger_state (namespace, document) VALUES (?, ?)`, "default", string(doc))
	require.NoError(t, err)

	require.NoError(t, store.Migrate(ctx))

	revision, err := store.Revision(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(1), revision, "existing rows start at revision 1")

	state, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assertSameState(t, sampleState(), state)
}
