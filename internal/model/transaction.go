package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single recorded expense.
type Transaction struct {
	Date         time.Time
	Amount       decimal.Decimal
	Note         string
	CategoryName string // Category name at insertion time, not kept in sync with renames
	ExternalID   string // Source identifier for imported rows (e.g. OFX FITID)
	ID           int64
	CategoryID   int64
}

// Month returns the budget month the transaction falls in.
func (t Transaction) Month() Month {
	return MonthOf(t.Date)
}

// ImportEntry is a statement row waiting to be recorded as a transaction.
type ImportEntry struct {
	Date       time.Time
	Amount     decimal.Decimal
	Note       string
	ExternalID string
}
