// Package testutil builds consistent ledger fixtures for tests.
//
// Example usage:
//
//	state := testutil.NewStateBuilder(t).
//		WithBasicCategories().
//		WithTransaction(testutil.CategoryGroceries, "42.10", testutil.Date(2024, 3, 5), "market").
//		WithMonthlyBudget("2024-03", "1500").
//		Build()
package testutil

import (
	"testing"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/shopspring/decimal"
)

// CategoryName represents a strongly-typed category name.
type CategoryName string

// String returns the string representation of the category name.
func (c CategoryName) String() string {
	return string(c)
}

// Common category names used across tests.
const (
	CategoryGroceries CategoryName = "Groceries"
	CategoryTransport CategoryName = "Transport"
	CategoryRent      CategoryName = "Rent"
	CategoryFun       CategoryName = "Fun"
)

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// StateBuilder assembles a ledger state the way the engine would have left it:
// ids come from the sequence and every derived total is kept in step.
type StateBuilder struct {
	t     *testing.T
	state *model.LedgerState
}

// NewStateBuilder creates a builder holding an empty ledger.
func NewStateBuilder(t *testing.T) *StateBuilder {
	t.Helper()
	return &StateBuilder{t: t, state: model.NewLedgerState()}
}

// WithCategory adds a category with the given limit.
func (b *StateBuilder) WithCategory(name CategoryName, limit string) *StateBuilder {
	b.t.Helper()
	b.state.Sequence.Category++
	b.state.Categories = append(b.state.Categories, model.Category{
		ID:    b.state.Sequence.Category,
		Name:  name.String(),
		Limit: b.amount(limit),
		Spent: decimal.Zero,
	})
	return b
}

// WithBasicCategories adds groceries, transport and rent.
func (b *StateBuilder) WithBasicCategories() *StateBuilder {
	b.t.Helper()
	return b.
		WithCategory(CategoryGroceries, "400").
		WithCategory(CategoryTransport, "120").
		WithCategory(CategoryRent, "1200")
}

// WithTransaction records an expense against an existing category.
func (b *StateBuilder) WithTransaction(category CategoryName, amount string, date time.Time, note string) *StateBuilder {
	return b.WithImportedTransaction(category, amount, date, note, "")
}

// WithImportedTransaction records an expense carrying an external id.
func (b *StateBuilder) WithImportedTransaction(category CategoryName, amount string, date time.Time, note, externalID string) *StateBuilder {
	b.t.Helper()

	c, ok := b.state.FindCategoryByName(category.String(), 0)
	if !ok {
		b.t.Fatalf("category %q not found in test data", category)
	}
	value := b.amount(amount)

	b.state.Sequence.Transaction++
	txn := model.Transaction{
		ID:           b.state.Sequence.Transaction,
		Amount:       value,
		Note:         note,
		CategoryID:   c.ID,
		CategoryName: c.Name,
		Date:         date.UTC(),
		ExternalID:   externalID,
	}
	b.state.Transactions = append(b.state.Transactions, txn)

	idx := b.state.CategoryIndex(c.ID)
	b.state.Categories[idx].Spent = b.state.Categories[idx].Spent.Add(value)

	month := b.state.Month(txn.Month())
	month.Spent = month.Spent.Add(value)
	b.state.MonthlyBudgets[month.Month] = month
	return b
}

// WithMonthlyBudget sets the budget of a YYYY-MM month.
func (b *StateBuilder) WithMonthlyBudget(month, budget string) *StateBuilder {
	b.t.Helper()

	m, err := model.ParseMonth(month)
	if err != nil {
		b.t.Fatalf("invalid month in test data: %v", err)
	}
	entry := b.state.Month(m)
	entry.Budget = b.amount(budget)
	b.state.MonthlyBudgets[m] = entry
	return b
}

// Build verifies the state and returns a copy of it.
func (b *StateBuilder) Build() *model.LedgerState {
	b.t.Helper()
	if err := b.state.Verify(); err != nil {
		b.t.Fatalf("test data is inconsistent: %v", err)
	}
	return b.state.Clone()
}

func (b *StateBuilder) amount(s string) decimal.Decimal {
	b.t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		b.t.Fatalf("invalid amount %q in test data: %v", s, err)
	}
	return d
}
