package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// sampleState builds a consistent ledger with two categories, three transactions and two months.
func sampleState() *model.LedgerState {
	s := model.NewLedgerState()
	s.Sequence = model.Sequence{Category: 3, Transaction: 4}
	s.Categories = []model.Category{
		{ID: 1, Name: "Groceries", Limit: dec("400"), Spent: dec("95.25")},
		{ID: 3, Name: "Transport", Limit: dec("120.50"), Spent: dec("40")},
	}
	s.Transactions = []model.Transaction{
		{ID: 1, Amount: dec("60.25"), Note: "weekly shop", CategoryID: 1, CategoryName: "Groceries",
			Date: time.Date(2024, time.April, 28, 9, 0, 0, 0, time.UTC)},
		{ID: 2, Amount: dec("35"), Note: "market", CategoryID: 1, CategoryName: "Groceries",
			Date: time.Date(2024, time.May, 3, 17, 30, 0, 0, time.UTC), ExternalID: "FIT-2"},
		{ID: 4, Amount: dec("40"), Note: "bus pass", CategoryID: 3, CategoryName: "Transport",
			Date: time.Date(2024, time.May, 4, 8, 0, 0, 0, time.UTC)},
	}
	s.MonthlyBudgets["2024-04"] = model.MonthlyBudget{Month: "2024-04", Spent: dec("60.25")}
	s.MonthlyBudgets["2024-05"] = model.MonthlyBudget{Month: "2024-05", Budget: dec("1000"), Spent: dec("75")}
	return s
}

func assertSameState(t *testing.T, want, got *model.LedgerState) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.Sequence, got.Sequence)

	require.Len(t, got.Categories, len(want.Categories))
	for i := range want.Categories {
		assert.Equal(t, want.Categories[i].ID, got.Categories[i].ID)
		assert.Equal(t, want.Categories[i].Name, got.Categories[i].Name)
		assert.True(t, want.Categories[i].Limit.Equal(got.Categories[i].Limit), "limit of %s", want.Categories[i].Name)
		assert.True(t, want.Categories[i].Spent.Equal(got.Categories[i].Spent), "spent of %s", want.Categories[i].Name)
	}

	require.Len(t, got.Transactions, len(want.Transactions))
	for i := range want.Transactions {
		w, g := want.Transactions[i], got.Transactions[i]
		assert.Equal(t, w.ID, g.ID)
		assert.True(t, w.Amount.Equal(g.Amount), "amount of transaction %d", w.ID)
		assert.Equal(t, w.Note, g.Note)
		assert.Equal(t, w.CategoryID, g.CategoryID)
		assert.Equal(t, w.CategoryName, g.CategoryName)
		assert.Equal(t, w.ExternalID, g.ExternalID)
		assert.True(t, w.Date.Equal(g.Date), "date of transaction %d", w.ID)
	}

	require.Len(t, got.MonthlyBudgets, len(want.MonthlyBudgets))
	for m, w := range want.MonthlyBudgets {
		g, ok := got.MonthlyBudgets[m]
		require.True(t, ok, "month %s", m)
		assert.True(t, w.Budget.Equal(g.Budget), "budget of %s", m)
		assert.True(t, w.Spent.Equal(g.Spent), "spent of %s", m)
	}
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	state, err := store.Load(context.Background(), "default")
	require.NoError(t, err)
	assert.Empty(t, state.Categories)
	assert.Empty(t, state.Transactions)
	assert.NotNil(t, state.MonthlyBudgets)
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	want := sampleState()
	require.NoError(t, store.Save(ctx, "default", want))

	got, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assertSameState(t, want, got)

	// Saving again replaces the document and bumps the revision
	want.Categories[1].Name = "Travel"
	require.NoError(t, store.Save(ctx, "default", want))

	got, err = store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "Travel", got.Categories[1].Name)

	revision, err := store.Revision(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(2), revision)
}

func TestSQLiteStore_RejectsStaleSave(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first := sampleState()
	require.NoError(t, store.Save(ctx, "default", first))
	assert.Equal(t, int64(1), first.Revision)

	// A ledger that was never loaded cannot replace an existing one
	fresh := sampleState()
	err := store.Save(ctx, "default", fresh)
	require.ErrorIs(t, err, common.ErrConflict)
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.Zero(t, fresh.Revision)

	winner, err := store.Load(ctx, "default")
	require.NoError(t, err)
	loser, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(1), loser.Revision)

	winner.Categories[1].Name = "Travel"
	require.NoError(t, store.Save(ctx, "default", winner))

	loser.Categories[1].Name = "Commute"
	err = store.Save(ctx, "default", loser)
	require.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, int64(1), loser.Revision, "a rejected save leaves the revision alone")

	got, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "Travel", got.Categories[1].Name)
	assert.Equal(t, int64(2), got.Revision)
}

func TestSQLiteStore_NamespacesAreIsolated(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "alice", sampleState()))

	bob, err := store.Load(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bob.Categories)

	require.NoError(t, store.Save(ctx, "bob", model.NewLedgerState()))
	namespaces, err := store.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, namespaces)
}

func TestSQLiteStore_CorruptDocument(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO ledger_state (namespace, document) VALUES (?, ?)`, "default", `{"categories": [`)
	require.NoError(t, err)

	_, err = store.Load(ctx, "default")
	assert.ErrorIs(t, err, common.ErrCorruptState)
}

func TestSQLiteStore_InconsistentDocument(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	state := sampleState()
	state.Categories[0].Spent = dec("1")
	doc, err := EncodeState(state)
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx,
		`INSERT INTO ledger_state (namespace, document) VALUES (?, ?)`, "default", string(doc))
	require.NoError(t, err)

	_, err = store.Load(ctx, "default")
	assert.ErrorIs(t, err, common.ErrCorruptState)
	assert.ErrorIs(t, err, common.ErrInvariantViolation)
}

func TestSQLiteStore_SaveAfterClose(t *testing.T) {
	store, cleanup := createTestStorage(t)
	cleanup()

	err := store.Save(context.Background(), "default", sampleState())
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestSQLiteStore_ValidatesArguments(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Load(ctx, "../other")
	assert.ErrorIs(t, err, ErrInvalidNamespace)

	err = store.Save(ctx, "default", nil)
	assert.True(t, errors.Is(err, ErrNilParameter))

	_, err = NewSQLiteStore("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}
