package ledger

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/Veraticus/the-budget-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

// ImportResult summarizes a batch import.
type ImportResult struct {
	Imported []model.Transaction
	Total    decimal.Decimal
	// Duplicates counts entries whose external id was already recorded.
	Duplicates int
}

// ImportTransactions records a batch of dated entries against one category.
// Entries whose ExternalID is already present in the ledger, or earlier in the
// batch, are skipped. The batch is committed as a whole or not at all.
func (e *Engine) ImportTransactions(ctx context.Context, categoryID int64, entries []model.ImportEntry) (ImportResult, error) {
	for i, entry := range entries {
		if !entry.Amount.IsPositive() {
			return ImportResult{}, fmt.Errorf("%w: entry %d has non-positive amount %s", common.ErrInvalidInput, i, entry.Amount)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	catIdx := next.CategoryIndex(categoryID)
	if catIdx < 0 {
		return ImportResult{}, fmt.Errorf("%w: %d", common.ErrCategoryNotFound, categoryID)
	}

	seen := make(map[string]struct{}, len(next.Transactions))
	for _, t := range next.Transactions {
		if t.ExternalID != "" {
			seen[t.ExternalID] = struct{}{}
		}
	}

	result := ImportResult{Total: decimal.Zero}
	for _, entry := range entries {
		if entry.ExternalID != "" {
			if _, dup := seen[entry.ExternalID]; dup {
				result.Duplicates++
				continue
			}
			seen[entry.ExternalID] = struct{}{}
		}

		date := entry.Date
		if date.IsZero() {
			date = e.now()
		}
		txn := applyTransaction(next, catIdx, entry.Amount, entry.Note, date, entry.ExternalID)
		result.Imported = append(result.Imported, txn)
		result.Total = result.Total.Add(txn.Amount)
	}

	if len(result.Imported) == 0 {
		e.logger.Info("Nothing new to import", "duplicates", result.Duplicates)
		return result, nil
	}

	if err := e.commit(ctx, next); err != nil {
		return ImportResult{}, err
	}

	e.logger.Info("Imported transactions",
		"category", next.Categories[catIdx].Name,
		"imported", len(result.Imported),
		"duplicates", result.Duplicates,
		"total", result.Total)
	e.publish(ctx, service.Event{
		Type:     service.EventLedgerImported,
		EntityID: categoryID,
		Amount:   result.Total,
		Count:    len(result.Imported),
	})
	return result, nil
}
