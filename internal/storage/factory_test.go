package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/the-budget-must-balance/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		check func(*testing.T, any)
		cfg   config.Ledger
		name  string
	}{
		{
			name: "sqlite",
			cfg:  config.Ledger{Backend: config.BackendSQLite, DatabasePath: filepath.Join(dir, "db", "budget.db")},
			check: func(t *testing.T, s any) {
				t.Helper()
				store, ok := s.(*SQLiteStore)
				require.True(t, ok)
				version, err := store.SchemaVersion(ctx)
				require.NoError(t, err)
				assert.Equal(t, ExpectedSchemaVersion, version, "the factory migrates sqlite databases")
			},
		},
		{
			name: "file",
			cfg:  config.Ledger{Backend: config.BackendFile, FileDir: filepath.Join(dir, "ledgers")},
			check: func(t *testing.T, s any) {
				t.Helper()
				assert.IsType(t, &FileStore{}, s)
			},
		},
		{
			name: "memory",
			cfg:  config.Ledger{Backend: config.BackendMemory},
			check: func(t *testing.T, s any) {
				t.Helper()
				assert.IsType(t, &MemoryStore{}, s)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, &tt.cfg)
			require.NoError(t, err)
			defer func() { _ = store.Close() }()

			tt.check(t, store)

			require.NoError(t, store.Save(ctx, "default", sampleState()))
			got, err := store.Load(ctx, "default")
			require.NoError(t, err)
			assertSameState(t, sampleState(), got)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilParameter)

	_, err = Open(context.Background(), &config.Ledger{Backend: "tape"})
	assert.ErrorContains(t, err, "unsupported storage backend")
}
