// Package ledger implements the budget ledger: the mutation protocol that keeps
// category totals, monthly totals and the transaction list consistent.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/Veraticus/the-budget-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

// Engine owns one namespace's ledger state and serializes every mutation.
//
// A mutation works on a clone of the current state, verifies the clone,
// saves it and only then swaps it in. Any error leaves the held state as it
// was before the call.
type Engine struct {
	store     service.Store
	publisher service.Publisher
	logger    *slog.Logger
	clock     func() time.Time
	state     *model.LedgerState
	namespace string
	mu        sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used to date new transactions.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithPublisher sends an event after every committed mutation.
func WithPublisher(publisher service.Publisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// TransactionResult is returned by AddTransaction. The flags are advisory;
// exceeding a limit or a budget is never an error.
type TransactionResult struct {
	Transaction       model.Transaction
	CategoryOverLimit bool
	MonthOverBudget   bool
}

// DeleteCategoryResult describes what a category delete removed.
type DeleteCategoryResult struct {
	Category            model.Category
	RemovedAmount       decimal.Decimal
	RemovedTransactions int
}

// New loads the namespace's state from store and returns an engine holding it.
func New(ctx context.Context, store service.Store, namespace string, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", common.ErrInvalidInput)
	}
	if namespace == "" {
		namespace = service.DefaultNamespace
	}

	e := &Engine{
		store:     store,
		namespace: namespace,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	state, err := store.Load(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	e.state = state

	e.logger.Debug("Loaded ledger",
		"namespace", namespace,
		"categories", len(state.Categories),
		"transactions", len(state.Transactions))

	return e, nil
}

// Namespace returns the namespace the engine operates on.
func (e *Engine) Namespace() string {
	return e.namespace
}

// AddCategory creates a category with zero spent, appended after existing ones.
func (e *Engine) AddCategory(ctx context.Context, name string, limit decimal.Decimal) (model.Category, error) {
	name, err := validateCategory(name, limit)
	if err != nil {
		return model.Category{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	if existing, dup := next.FindCategoryByName(name, 0); dup {
		return model.Category{}, fmt.Errorf("%w: %q conflicts with category %d", common.ErrDuplicateName, name, existing.ID)
	}

	next.Sequence.Category++
	category := model.Category{
		ID:    next.Sequence.Category,
		Name:  name,
		Limit: limit,
		Spent: decimal.Zero,
	}
	next.Categories = append(next.Categories, category)

	if err := e.commit(ctx, next); err != nil {
		return model.Category{}, err
	}

	e.logger.Info("Added category", "id", category.ID, "name", category.Name, "limit", category.Limit)
	e.publish(ctx, service.Event{Type: service.EventCategoryAdded, EntityID: category.ID, Amount: limit})
	return category, nil
}

// EditCategory renames and re-limits a category. Spent is left as is, and
// existing transactions keep the name they were recorded with.
func (e *Engine) EditCategory(ctx context.Context, id int64, newName string, newLimit decimal.Decimal) (model.Category, error) {
	newName, err := validateCategory(newName, newLimit)
	if err != nil {
		return model.Category{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	idx := next.CategoryIndex(id)
	if idx < 0 {
		return model.Category{}, fmt.Errorf("%w: category %d", common.ErrNotFound, id)
	}
	if existing, dup := next.FindCategoryByName(newName, id); dup {
		return model.Category{}, fmt.Errorf("%w: %q conflicts with category %d", common.ErrDuplicateName, newName, existing.ID)
	}

	next.Categories[idx].Name = newName
	next.Categories[idx].Limit = newLimit
	category := next.Categories[idx]

	if err := e.commit(ctx, next); err != nil {
		return model.Category{}, err
	}

	e.logger.Info("Edited category", "id", id, "name", newName, "limit", newLimit)
	e.publish(ctx, service.Event{Type: service.EventCategoryEdited, EntityID: id, Amount: newLimit})
	return category, nil
}

// DeleteCategory removes a category together with every transaction that
// references it. Each removed transaction is taken off its month's spent.
// Callers are expected to have confirmed the delete.
func (e *Engine) DeleteCategory(ctx context.Context, id int64) (DeleteCategoryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	idx := next.CategoryIndex(id)
	if idx < 0 {
		return DeleteCategoryResult{}, fmt.Errorf("%w: category %d", common.ErrNotFound, id)
	}

	result := DeleteCategoryResult{Category: next.Categories[idx], RemovedAmount: decimal.Zero}
	kept := next.Transactions[:0]
	for _, t := range next.Transactions {
		if t.CategoryID != id {
			kept = append(kept, t)
			continue
		}
		if err := debitMonth(next, t); err != nil {
			return DeleteCategoryResult{}, err
		}
		result.RemovedTransactions++
		result.RemovedAmount = result.RemovedAmount.Add(t.Amount)
	}
	next.Transactions = kept
	next.Categories = append(next.Categories[:idx], next.Categories[idx+1:]...)

	if err := e.commit(ctx, next); err != nil {
		return DeleteCategoryResult{}, err
	}

	e.logger.Info("Deleted category",
		"id", id,
		"name", result.Category.Name,
		"removed_transactions", result.RemovedTransactions)
	e.publish(ctx, service.Event{
		Type:     service.EventCategoryDeleted,
		EntityID: id,
		Amount:   result.RemovedAmount,
		Count:    result.RemovedTransactions,
	})
	return result, nil
}

// AddTransaction records an expense dated now against a live category.
func (e *Engine) AddTransaction(ctx context.Context, amount decimal.Decimal, note string, categoryID int64) (TransactionResult, error) {
	if !amount.IsPositive() {
		return TransactionResult{}, fmt.Errorf("%w: amount must be positive, got %s", common.ErrInvalidInput, amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	catIdx := next.CategoryIndex(categoryID)
	if catIdx < 0 {
		return TransactionResult{}, fmt.Errorf("%w: %d", common.ErrCategoryNotFound, categoryID)
	}

	txn := applyTransaction(next, catIdx, amount, note, e.now(), "")

	if err := e.commit(ctx, next); err != nil {
		return TransactionResult{}, err
	}

	result := TransactionResult{
		Transaction:       txn,
		CategoryOverLimit: next.Categories[catIdx].OverLimit(),
		MonthOverBudget:   next.Month(txn.Month()).OverBudget(),
	}

	e.logger.Info("Added transaction",
		"id", txn.ID,
		"amount", txn.Amount,
		"category", txn.CategoryName,
		"over_limit", result.CategoryOverLimit,
		"over_budget", result.MonthOverBudget)
	e.publish(ctx, service.Event{
		Type:     service.EventTransactionAdded,
		EntityID: txn.ID,
		Amount:   txn.Amount,
		Month:    txn.Month(),
	})
	return result, nil
}

// DeleteTransaction removes a transaction and reverses exactly the totals it added.
func (e *Engine) DeleteTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	idx := next.TransactionIndex(id)
	if idx < 0 {
		return model.Transaction{}, fmt.Errorf("%w: transaction %d", common.ErrNotFound, id)
	}
	txn := next.Transactions[idx]

	if catIdx := next.CategoryIndex(txn.CategoryID); catIdx >= 0 {
		category := &next.Categories[catIdx]
		category.Spent = category.Spent.Sub(txn.Amount)
		if category.Spent.IsNegative() {
			return model.Transaction{}, fmt.Errorf("%w: category %d spent would become %s",
				common.ErrInvariantViolation, category.ID, category.Spent)
		}
	}
	if err := debitMonth(next, txn); err != nil {
		return model.Transaction{}, err
	}
	next.Transactions = append(next.Transactions[:idx], next.Transactions[idx+1:]...)

	if err := e.commit(ctx, next); err != nil {
		return model.Transaction{}, err
	}

	e.logger.Info("Deleted transaction", "id", id, "amount", txn.Amount)
	e.publish(ctx, service.Event{
		Type:     service.EventTransactionDeleted,
		EntityID: id,
		Amount:   txn.Amount,
		Month:    txn.Month(),
	})
	return txn, nil
}

// SetMonthlyBudget sets a month's budget. Spent is recomputed from the
// transactions already recorded in that month.
func (e *Engine) SetMonthlyBudget(ctx context.Context, month model.Month, amount decimal.Decimal) (model.MonthlyBudget, error) {
	if !month.Valid() {
		return model.MonthlyBudget{}, fmt.Errorf("%w: month %q must be YYYY-MM", common.ErrInvalidInput, month)
	}
	if !amount.IsPositive() {
		return model.MonthlyBudget{}, fmt.Errorf("%w: budget must be positive, got %s", common.ErrInvalidInput, amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	spent := decimal.Zero
	for _, t := range next.Transactions {
		if t.Month() == month {
			spent = spent.Add(t.Amount)
		}
	}
	budget := model.MonthlyBudget{Month: month, Budget: amount, Spent: spent}
	next.MonthlyBudgets[month] = budget

	if err := e.commit(ctx, next); err != nil {
		return model.MonthlyBudget{}, err
	}

	e.logger.Info("Set monthly budget", "month", month, "budget", amount, "spent", spent)
	e.publish(ctx, service.Event{Type: service.EventMonthBudgetSet, Month: month, Amount: amount})
	return budget, nil
}

// Restore replaces the whole ledger with state after verifying it.
// Id sequences never move backwards, so ids handed out after the
// restored snapshot was taken are not reused. The save is made against the
// revision the engine loaded, like any other mutation.
func (e *Engine) Restore(ctx context.Context, state *model.LedgerState) error {
	if state == nil {
		return fmt.Errorf("%w: state is required", common.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := state.Clone()
	next.Sequence.Category = max(next.Sequence.Category, e.state.Sequence.Category)
	next.Sequence.Transaction = max(next.Sequence.Transaction, e.state.Sequence.Transaction)
	next.Revision = e.state.Revision
	if err := e.commit(ctx, next); err != nil {
		return err
	}

	e.logger.Info("Restored ledger", "namespace", e.namespace, "transactions", len(next.Transactions))
	e.publish(ctx, service.Event{Type: service.EventLedgerRestored, Count: len(next.Transactions)})
	return nil
}

// Categories returns the live categories in insertion order.
func (e *Engine) Categories() []model.Category {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Category, len(e.state.Categories))
	copy(out, e.state.Categories)
	return out
}

// Category returns one category by id.
func (e *Engine) Category(id int64) (model.Category, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.state.CategoryIndex(id)
	if idx < 0 {
		return model.Category{}, fmt.Errorf("%w: category %d", common.ErrNotFound, id)
	}
	return e.state.Categories[idx], nil
}

// Transactions returns the live transactions in creation order.
func (e *Engine) Transactions() []model.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Transaction, len(e.state.Transactions))
	copy(out, e.state.Transactions)
	return out
}

// Search runs Query over the current transactions.
func (e *Engine) Search(opts service.QueryOptions) service.Page {
	return Query(e.Transactions(), opts)
}

// MonthlyBudget returns the month's entry, or a zero entry for an untouched month.
func (e *Engine) MonthlyBudget(month model.Month) model.MonthlyBudget {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Month(month)
}

// CurrentMonth returns the entry for the month containing now.
func (e *Engine) CurrentMonth() model.MonthlyBudget {
	return e.MonthlyBudget(model.MonthOf(e.now()))
}

// MonthlySummary returns the n calendar months ending at the current month,
// newest first. Months without activity appear as zero entries.
func (e *Engine) MonthlySummary(n int) []model.MonthlyBudget {
	if n <= 0 {
		return []model.MonthlyBudget{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	summary := make([]model.MonthlyBudget, 0, n)
	month := model.MonthOf(e.now())
	for j := 0; j < n; j++ {
		summary = append(summary, e.state.Month(month))
		month = month.Previous()
	}
	return summary
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *model.LedgerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// commit verifies next, persists it and makes it the current state.
// A save rejected because another writer got there first leaves the engine on
// its previous state, reporting common.ErrConflict. Must be called with e.mu held.
func (e *Engine) commit(ctx context.Context, next *model.LedgerState) error {
	if err := next.Verify(); err != nil {
		e.logger.Error("Refusing to persist inconsistent ledger", "namespace", e.namespace, "error", err)
		return err
	}

	if err := e.store.Save(ctx, e.namespace, next); err != nil {
		if !errors.Is(err, common.ErrPersistence) {
			err = fmt.Errorf("%w: %w", common.ErrPersistence, err)
		}
		return err
	}

	e.state = next
	return nil
}

// publish delivers a committed change. Failures are logged and never undo the change.
func (e *Engine) publish(ctx context.Context, event service.Event) {
	if e.publisher == nil {
		return
	}
	event.Namespace = e.namespace
	event.OccurredAt = e.now()

	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("Failed to publish ledger event", "type", event.Type, "error", err)
	}
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

func validateCategory(name string, limit decimal.Decimal) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: category name cannot be empty", common.ErrInvalidInput)
	}
	if !limit.IsPositive() {
		return "", fmt.Errorf("%w: limit must be positive, got %s", common.ErrInvalidInput, limit)
	}
	return name, nil
}

// applyTransaction appends a transaction to s and credits its category and month.
func applyTransaction(s *model.LedgerState, catIdx int, amount decimal.Decimal, note string, date time.Time, externalID string) model.Transaction {
	category := &s.Categories[catIdx]

	s.Sequence.Transaction++
	txn := model.Transaction{
		ID:           s.Sequence.Transaction,
		Amount:       amount,
		Note:         note,
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Date:         date.UTC(),
		ExternalID:   externalID,
	}
	s.Transactions = append(s.Transactions, txn)

	category.Spent = category.Spent.Add(amount)

	budget := s.Month(txn.Month())
	budget.Spent = budget.Spent.Add(amount)
	s.MonthlyBudgets[budget.Month] = budget

	return txn
}

// debitMonth takes a removed transaction off its month's spent.
func debitMonth(s *model.LedgerState, t model.Transaction) error {
	month := t.Month()
	budget, ok := s.MonthlyBudgets[month]
	if !ok {
		return fmt.Errorf("%w: transaction %d dated in %s which has no entry", common.ErrInvariantViolation, t.ID, month)
	}
	budget.Spent = budget.Spent.Sub(t.Amount)
	if budget.Spent.IsNegative() {
		return fmt.Errorf("%w: month %s spent would become %s", common.ErrInvariantViolation, month, budget.Spent)
	}
	s.MonthlyBudgets[month] = budget
	return nil
}
