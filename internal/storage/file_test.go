package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledgers")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	empty, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Empty(t, empty.Categories)

	require.NoError(t, store.Save(ctx, "default", sampleState()))

	got, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assertSameState(t, sampleState(), got)

	info, err := os.Stat(filepath.Join(dir, "default.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")

	namespaces, err := store.Namespaces()
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, namespaces)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.json"), []byte("{oops"), 0600))

	_, err = store.Load(context.Background(), "default")
	assert.ErrorIs(t, err, common.ErrCorruptState)
}

func TestFileStore_SaveFailureKeepsPreviousDocument(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "default", sampleState()))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = store.Save(canceled, "default", nil)
	assert.ErrorIs(t, err, ErrNilParameter)

	err = store.Save(canceled, "default", sampleState())
	assert.ErrorIs(t, err, common.ErrPersistence)

	got, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assertSameState(t, sampleState(), got)
}

func TestFileStore_RejectsStaleSave(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// Two stores over one directory stand in for two processes
	first, err := NewFileStore(dir)
	require.NoError(t, err)
	second, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, first.Save(ctx, "default", sampleState()))

	a, err := first.Load(ctx, "default")
	require.NoError(t, err)
	b, err := second.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Revision)

	a.Categories[0].Name = "Food"
	require.NoError(t, first.Save(ctx, "default", a))

	b.Categories[0].Name = "Eating out"
	err = second.Save(ctx, "default", b)
	require.ErrorIs(t, err, common.ErrConflict)
	assert.ErrorIs(t, err, common.ErrPersistence)

	got, err := second.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "Food", got.Categories[0].Name)
	assert.Equal(t, int64(2), got.Revision)
}

func TestFileStore_Lock(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	lockPath := filepath.Join(dir, "default.json.lock")

	t.Run("held lock blocks the save", func(t *testing.T) {
		require.NoError(t, os.WriteFile(lockPath, nil, 0600))
		t.Cleanup(func() { _ = os.Remove(lockPath) })

		err := store.Save(ctx, "default", sampleState())
		assert.ErrorIs(t, err, common.ErrPersistence)
		assert.ErrorIs(t, err, common.ErrMaxRetries)

		_, statErr := os.Stat(filepath.Join(dir, "default.json"))
		assert.True(t, os.IsNotExist(statErr), "nothing was written")
	})

	t.Run("stale lock is removed", func(t *testing.T) {
		require.NoError(t, os.WriteFile(lockPath, nil, 0600))
		old := time.Now().Add(-2 * staleLockAge)
		require.NoError(t, os.Chtimes(lockPath, old, old))

		require.NoError(t, store.Save(ctx, "default", sampleState()))

		_, statErr := os.Stat(lockPath)
		assert.True(t, os.IsNotExist(statErr), "lock released after the save")
	})
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidNamespace)
}
