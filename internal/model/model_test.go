package model

import (
	"testing"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		in      string
		want    Month
		wantErr bool
	}{
		{in: "2024-03", want: "2024-03"},
		{in: " 2024-12 ", want: "2024-12"},
		{in: "2024-13", wantErr: true},
		{in: "2024-3", wantErr: true},
		{in: "March", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMonth(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMonthHelpers(t *testing.T) {
	ts := time.Date(2024, time.January, 31, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	assert.Equal(t, Month("2024-02"), MonthOf(ts), "months are bucketed in UTC")

	assert.Equal(t, Month("2023-12"), Month("2024-01").Previous())
	assert.True(t, Month("2024-01").Valid())
	assert.False(t, Month("2024-1").Valid())
	assert.True(t, Month("bogus").Start().IsZero())
}

func TestMonthlyBudgetRemaining(t *testing.T) {
	b := MonthlyBudget{Month: "2024-05", Budget: d("100"), Spent: d("130.50")}
	assert.True(t, b.Remaining().Equal(d("-30.50")))
	assert.True(t, b.OverBudget())

	unset := MonthlyBudget{Month: "2024-05", Spent: d("10")}
	assert.False(t, unset.IsSet())
	assert.True(t, unset.Remaining().Equal(d("-10")))
	assert.True(t, unset.OverBudget(), "spending without a budget is over a zero budget")

	untouched := MonthlyBudget{Month: "2024-06"}
	assert.False(t, untouched.OverBudget())
}

func TestCategoryOverLimit(t *testing.T) {
	c := Category{ID: 1, Name: "Food", Limit: d("100"), Spent: d("150")}
	assert.True(t, c.OverLimit())
	assert.True(t, c.Remaining().Equal(d("-50")))

	c.Spent = d("100")
	assert.False(t, c.OverLimit())
}

func validState() *LedgerState {
	s := NewLedgerState()
	s.Sequence = Sequence{Category: 2, Transaction: 3}
	s.Categories = []Category{
		{ID: 1, Name: "Food", Limit: d("100"), Spent: d("80")},
		{ID: 2, Name: "Rent", Limit: d("900"), Spent: d("0")},
	}
	s.Transactions = []Transaction{
		{ID: 1, Amount: d("50"), CategoryID: 1, CategoryName: "Food", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{ID: 3, Amount: d("30"), CategoryID: 1, CategoryName: "Food", Date: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)},
	}
	s.MonthlyBudgets["2024-01"] = MonthlyBudget{Month: "2024-01", Budget: d("500"), Spent: d("50")}
	s.MonthlyBudgets["2024-02"] = MonthlyBudget{Month: "2024-02", Spent: d("30")}
	return s
}

func TestLedgerStateVerify(t *testing.T) {
	require.NoError(t, NewLedgerState().Verify())
	require.NoError(t, validState().Verify())

	tests := []struct {
		mutate func(*LedgerState)
		name   string
	}{
		{name: "category spent drift", mutate: func(s *LedgerState) { s.Categories[0].Spent = d("81") }},
		{name: "month spent drift", mutate: func(s *LedgerState) {
			s.MonthlyBudgets["2024-01"] = MonthlyBudget{Month: "2024-01", Budget: d("500"), Spent: d("0")}
		}},
		{name: "missing month entry", mutate: func(s *LedgerState) { delete(s.MonthlyBudgets, "2024-02") }},
		{name: "dangling category reference", mutate: func(s *LedgerState) { s.Transactions[0].CategoryID = 9 }},
		{name: "duplicate name", mutate: func(s *LedgerState) { s.Categories[1].Name = "FOOD" }},
		{name: "duplicate transaction id", mutate: func(s *LedgerState) { s.Transactions[1].ID = 1 }},
		{name: "id beyond sequence", mutate: func(s *LedgerState) { s.Sequence.Transaction = 2 }},
		{name: "non-positive limit", mutate: func(s *LedgerState) { s.Categories[1].Limit = decimal.Zero }},
		{name: "non-positive amount", mutate: func(s *LedgerState) { s.Transactions[0].Amount = d("-1") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validState()
			tt.mutate(s)
			assert.ErrorIs(t, s.Verify(), common.ErrInvariantViolation)
		})
	}
}

func TestLedgerStateClone(t *testing.T) {
	s := validState()
	clone := s.Clone()

	clone.Categories[0].Name = "Groceries"
	clone.Transactions = clone.Transactions[:1]
	clone.MonthlyBudgets["2024-03"] = MonthlyBudget{Month: "2024-03"}
	clone.Sequence.Category++

	assert.Equal(t, "Food", s.Categories[0].Name)
	assert.Len(t, s.Transactions, 2)
	assert.NotContains(t, s.MonthlyBudgets, Month("2024-03"))
	assert.Equal(t, int64(2), s.Sequence.Category)
}

func TestLedgerStateLookups(t *testing.T) {
	s := validState()

	assert.Equal(t, 1, s.CategoryIndex(2))
	assert.Equal(t, -1, s.CategoryIndex(7))
	assert.Equal(t, 1, s.TransactionIndex(3))
	assert.Equal(t, -1, s.TransactionIndex(2))

	c, ok := s.FindCategoryByName("food", 0)
	require.True(t, ok)
	assert.Equal(t, int64(1), c.ID)

	_, ok = s.FindCategoryByName("food", 1)
	assert.False(t, ok, "the excluded category is skipped")

	empty := s.Month("2030-01")
	assert.Equal(t, Month("2030-01"), empty.Month)
	assert.True(t, empty.Spent.IsZero())
}
