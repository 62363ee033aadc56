// Package service defines the contracts between the ledger and its collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/shopspring/decimal"
)

// DefaultNamespace is used when no caller identity is supplied.
const DefaultNamespace = "default"

// Store defines the contract for our persistence layer.
// State is always loaded and saved whole, per namespace.
type Store interface {
	// Load returns the persisted state, or an empty state when none exists.
	// The returned state carries the revision it was read at.
	Load(ctx context.Context, namespace string) (*model.LedgerState, error)
	// Save persists the full state atomically if the stored revision still
	// equals state.Revision, then advances state.Revision. Otherwise it fails
	// with common.ErrConflict and writes nothing.
	Save(ctx context.Context, namespace string, state *model.LedgerState) error
	Close() error
}

// SortDirection orders query results by amount.
type SortDirection string

// Sort directions.
const (
	SortNone       SortDirection = ""
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// DefaultPageSize is the number of transactions shown per page.
const DefaultPageSize = 5

// QueryOptions defines filtering, ordering and paging of transaction lists.
type QueryOptions struct {
	Term      string
	Month     model.Month // Optional; empty matches every month
	Direction SortDirection
	Page      int
	PageSize  int
}

// Page is one page of query results.
type Page struct {
	Items       []model.Transaction
	TotalPages  int
	CurrentPage int
	TotalItems  int
}

// EventType names a ledger change.
type EventType string

// Ledger change events.
const (
	EventCategoryAdded      EventType = "category.added"
	EventCategoryEdited     EventType = "category.edited"
	EventCategoryDeleted    EventType = "category.deleted"
	EventTransactionAdded   EventType = "transaction.added"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventMonthBudgetSet     EventType = "month.budget_set"
	EventLedgerImported     EventType = "ledger.imported"
	EventLedgerRestored     EventType = "ledger.restored"
)

// Event describes a committed ledger mutation.
type Event struct {
	OccurredAt time.Time       `json:"occurred_at"`
	Amount     decimal.Decimal `json:"amount"`
	Type       EventType       `json:"type"`
	Namespace  string          `json:"namespace"`
	Month      model.Month     `json:"month,omitempty"`
	EntityID   int64           `json:"entity_id,omitempty"`
	Count      int             `json:"count,omitempty"`
}

// Publisher delivers ledger events to interested collaborators.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
