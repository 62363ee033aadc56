package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/shopspring/decimal"
)

// stateDocument is the persisted JSON shape of a ledger.
type stateDocument struct {
	MonthlyBudgets map[string]monthDocument `json:"monthlyBudgets"`
	Sequence       *sequenceDocument        `json:"sequence,omitempty"`
	Categories     []categoryDocument       `json:"categories"`
	Transactions   []transactionDocument    `json:"transactions"`
}

type categoryDocument struct {
	Name  string          `json:"name"`
	Limit decimal.Decimal `json:"limit"`
	Spent decimal.Decimal `json:"spent"`
	ID    int64           `json:"id"`
}

type transactionDocument struct {
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Note         string          `json:"note"`
	CategoryName string          `json:"categoryName"`
	ExternalID   string          `json:"externalId,omitempty"`
	ID           int64           `json:"id"`
	CategoryID   int64           `json:"categoryId"`
}

// Remaining is written for readers of the raw document and ignored on decode.
type monthDocument struct {
	Budget    decimal.Decimal `json:"budget"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
}

type sequenceDocument struct {
	Category    int64 `json:"category"`
	Transaction int64 `json:"transaction"`
}

// EncodeState serializes a ledger state into its persisted JSON document.
func EncodeState(state *model.LedgerState) ([]byte, error) {
	if err := validateState(state); err != nil {
		return nil, err
	}

	doc := stateDocument{
		MonthlyBudgets: make(map[string]monthDocument, len(state.MonthlyBudgets)),
		Categories:     make([]categoryDocument, 0, len(state.Categories)),
		Transactions:   make([]transactionDocument, 0, len(state.Transactions)),
		Sequence: &sequenceDocument{
			Category:    state.Sequence.Category,
			Transaction: state.Sequence.Transaction,
		},
	}

	for _, c := range state.Categories {
		doc.Categories = append(doc.Categories, categoryDocument{
			ID:    c.ID,
			Name:  c.Name,
			Limit: c.Limit,
			Spent: c.Spent,
		})
	}
	for _, t := range state.Transactions {
		doc.Transactions = append(doc.Transactions, transactionDocument{
			ID:           t.ID,
			Amount:       t.Amount,
			Note:         t.Note,
			CategoryID:   t.CategoryID,
			CategoryName: t.CategoryName,
			Date:         t.Date.UTC(),
			ExternalID:   t.ExternalID,
		})
	}
	for m, b := range state.MonthlyBudgets {
		doc.MonthlyBudgets[string(m)] = monthDocument{
			Budget:    b.Budget,
			Spent:     b.Spent,
			Remaining: b.Remaining(),
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger state: %w", err)
	}
	return data, nil
}

// DecodeState parses a persisted document and verifies the result.
// Any problem is reported as common.ErrCorruptState.
func DecodeState(data []byte) (*model.LedgerState, error) {
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrCorruptState, err)
	}

	state := model.NewLedgerState()
	for _, c := range doc.Categories {
		state.Categories = append(state.Categories, model.Category{
			ID:    c.ID,
			Name:  c.Name,
			Limit: c.Limit,
			Spent: c.Spent,
		})
	}
	for _, t := range doc.Transactions {
		state.Transactions = append(state.Transactions, model.Transaction{
			ID:           t.ID,
			Amount:       t.Amount,
			Note:         t.Note,
			CategoryID:   t.CategoryID,
			CategoryName: t.CategoryName,
			Date:         t.Date.UTC(),
			ExternalID:   t.ExternalID,
		})
	}

	months := make([]string, 0, len(doc.MonthlyBudgets))
	for key := range doc.MonthlyBudgets {
		months = append(months, key)
	}
	sort.Strings(months)
	for _, key := range months {
		m, err := model.ParseMonth(key)
		if err != nil || string(m) != key {
			return nil, fmt.Errorf("%w: invalid month key %q", common.ErrCorruptState, key)
		}
		b := doc.MonthlyBudgets[key]
		state.MonthlyBudgets[m] = model.MonthlyBudget{Month: m, Budget: b.Budget, Spent: b.Spent}
	}

	if doc.Sequence != nil {
		state.Sequence = model.Sequence{
			Category:    doc.Sequence.Category,
			Transaction: doc.Sequence.Transaction,
		}
	} else {
		state.Sequence = rebuildSequence(state)
	}

	if err := state.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrCorruptState, err)
	}
	return state, nil
}

// rebuildSequence derives counters for documents written before sequences were stored.
func rebuildSequence(state *model.LedgerState) model.Sequence {
	var seq model.Sequence
	for _, c := range state.Categories {
		seq.Category = max(seq.Category, c.ID)
	}
	for _, t := range state.Transactions {
		seq.Transaction = max(seq.Transaction, t.ID)
	}
	return seq
}
