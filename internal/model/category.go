// Package model defines the core domain models used throughout the application.
package model

import "github.com/shopspring/decimal"

// Category represents a spending category with a limit.
// Spent is derived: the sum of amounts of live transactions referencing ID.
type Category struct {
	Name  string
	Limit decimal.Decimal
	Spent decimal.Decimal
	ID    int64
}

// Remaining returns the limit minus what has been spent; negative when over the limit.
func (c Category) Remaining() decimal.Decimal {
	return c.Limit.Sub(c.Spent)
}

// OverLimit reports whether spending in the category exceeds its limit.
func (c Category) OverLimit() bool {
	return c.Spent.GreaterThan(c.Limit)
}
