package model

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/shopspring/decimal"
)

// Sequence holds the last identifier handed out for each entity kind.
// Identifiers are never reused, even after deletes.
type Sequence struct {
	Category    int64
	Transaction int64
}

// LedgerState is the whole persisted ledger of one namespace.
//
// Revision is the store revision the state was loaded at, 0 for a ledger that
// was never saved. It is not part of the document: stores use it to refuse a
// save that would overwrite a change made since the load.
type LedgerState struct {
	MonthlyBudgets map[Month]MonthlyBudget
	Categories     []Category
	Transactions   []Transaction
	Sequence       Sequence
	Revision       int64
}

// NewLedgerState returns an empty, valid state.
func NewLedgerState() *LedgerState {
	return &LedgerState{
		MonthlyBudgets: make(map[Month]MonthlyBudget),
		Categories:     []Category{},
		Transactions:   []Transaction{},
	}
}

// Clone returns a deep copy of the state.
func (s *LedgerState) Clone() *LedgerState {
	clone := &LedgerState{
		MonthlyBudgets: make(map[Month]MonthlyBudget, len(s.MonthlyBudgets)),
		Categories:     make([]Category, len(s.Categories)),
		Transactions:   make([]Transaction, len(s.Transactions)),
		Sequence:       s.Sequence,
		Revision:       s.Revision,
	}
	copy(clone.Categories, s.Categories)
	copy(clone.Transactions, s.Transactions)
	for k, v := range s.MonthlyBudgets {
		clone.MonthlyBudgets[k] = v
	}
	return clone
}

// CategoryIndex returns the slice position of the category, or -1.
func (s *LedgerState) CategoryIndex(id int64) int {
	for i := range s.Categories {
		if s.Categories[i].ID == id {
			return i
		}
	}
	return -1
}

// TransactionIndex returns the slice position of the transaction, or -1.
func (s *LedgerState) TransactionIndex(id int64) int {
	for i := range s.Transactions {
		if s.Transactions[i].ID == id {
			return i
		}
	}
	return -1
}

// FindCategoryByName looks a live category up case-insensitively, skipping excludeID.
func (s *LedgerState) FindCategoryByName(name string, excludeID int64) (Category, bool) {
	for _, c := range s.Categories {
		if c.ID != excludeID && strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Category{}, false
}

// Month returns the budget entry for m, or a zero entry when none exists.
func (s *LedgerState) Month(m Month) MonthlyBudget {
	if b, ok := s.MonthlyBudgets[m]; ok {
		return b
	}
	return MonthlyBudget{Month: m}
}

// Verify recomputes every derived total from the transaction set and checks
// identity and reference rules. Any mismatch is an ErrInvariantViolation.
func (s *LedgerState) Verify() error {
	if s.MonthlyBudgets == nil {
		return fmt.Errorf("%w: monthly budgets map is nil", common.ErrInvariantViolation)
	}

	categorySums := make(map[int64]decimal.Decimal, len(s.Categories))
	names := make(map[string]int64, len(s.Categories))
	for _, c := range s.Categories {
		if c.ID <= 0 || c.ID > s.Sequence.Category {
			return fmt.Errorf("%w: category id %d outside sequence %d", common.ErrInvariantViolation, c.ID, s.Sequence.Category)
		}
		if _, dup := categorySums[c.ID]; dup {
			return fmt.Errorf("%w: duplicate category id %d", common.ErrInvariantViolation, c.ID)
		}
		key := strings.ToLower(c.Name)
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: category %d has an empty name", common.ErrInvariantViolation, c.ID)
		}
		if other, dup := names[key]; dup {
			return fmt.Errorf("%w: categories %d and %d share name %q", common.ErrInvariantViolation, other, c.ID, c.Name)
		}
		if !c.Limit.IsPositive() {
			return fmt.Errorf("%w: category %d has non-positive limit %s", common.ErrInvariantViolation, c.ID, c.Limit)
		}
		names[key] = c.ID
		categorySums[c.ID] = decimal.Zero
	}

	monthSums := make(map[Month]decimal.Decimal)
	seen := make(map[int64]struct{}, len(s.Transactions))
	for _, t := range s.Transactions {
		if t.ID <= 0 || t.ID > s.Sequence.Transaction {
			return fmt.Errorf("%w: transaction id %d outside sequence %d", common.ErrInvariantViolation, t.ID, s.Sequence.Transaction)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: duplicate transaction id %d", common.ErrInvariantViolation, t.ID)
		}
		seen[t.ID] = struct{}{}
		if !t.Amount.IsPositive() {
			return fmt.Errorf("%w: transaction %d has non-positive amount %s", common.ErrInvariantViolation, t.ID, t.Amount)
		}
		sum, ok := categorySums[t.CategoryID]
		if !ok {
			return fmt.Errorf("%w: transaction %d references missing category %d", common.ErrInvariantViolation, t.ID, t.CategoryID)
		}
		categorySums[t.CategoryID] = sum.Add(t.Amount)
		m := t.Month()
		monthSums[m] = monthSums[m].Add(t.Amount)
	}

	for _, c := range s.Categories {
		if !c.Spent.Equal(categorySums[c.ID]) {
			return fmt.Errorf("%w: category %d spent %s, transactions sum to %s",
				common.ErrInvariantViolation, c.ID, c.Spent, categorySums[c.ID])
		}
	}

	for m, b := range s.MonthlyBudgets {
		if !m.Valid() || b.Month != m {
			return fmt.Errorf("%w: malformed month entry %q", common.ErrInvariantViolation, m)
		}
		if b.Budget.IsNegative() {
			return fmt.Errorf("%w: month %s has negative budget %s", common.ErrInvariantViolation, m, b.Budget)
		}
		if !b.Spent.Equal(monthSums[m]) {
			return fmt.Errorf("%w: month %s spent %s, transactions sum to %s",
				common.ErrInvariantViolation, m, b.Spent, monthSums[m])
		}
	}
	for m := range monthSums {
		if _, ok := s.MonthlyBudgets[m]; !ok {
			return fmt.Errorf("%w: month %s has transactions but no budget entry", common.ErrInvariantViolation, m)
		}
	}

	return nil
}
