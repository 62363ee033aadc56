package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MonthLayout is the key format of budget months.
const MonthLayout = "2006-01"

// Month identifies a calendar month as YYYY-MM.
type Month string

// MonthOf returns the month containing t, evaluated in UTC.
func MonthOf(t time.Time) Month {
	return Month(t.UTC().Format(MonthLayout))
}

// ParseMonth validates a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}
	return MonthOf(t), nil
}

// Start returns midnight UTC on the first day of the month.
// An invalid month yields the zero time.
func (m Month) Start() time.Time {
	t, err := time.Parse(MonthLayout, string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Previous returns the month before m.
func (m Month) Previous() Month {
	return MonthOf(m.Start().AddDate(0, -1, 0))
}

// Valid reports whether m is a well-formed YYYY-MM key.
func (m Month) Valid() bool {
	_, err := time.Parse(MonthLayout, string(m))
	return err == nil && len(m) == len(MonthLayout)
}

func (m Month) String() string {
	return string(m)
}

// MonthlyBudget tracks the budget and spending of a single month.
// Spent is derived from the live transactions dated in Month.
type MonthlyBudget struct {
	Month  Month
	Budget decimal.Decimal
	Spent  decimal.Decimal
}

// Remaining returns budget minus spent. Over-budget months go negative.
func (b MonthlyBudget) Remaining() decimal.Decimal {
	return b.Budget.Sub(b.Spent)
}

// IsSet reports whether an explicit budget was recorded for the month.
func (b MonthlyBudget) IsSet() bool {
	return b.Budget.IsPositive()
}

// OverBudget reports whether remaining has gone negative. A month without a
// budget counts as budgeted at zero, so any spending puts it over.
func (b MonthlyBudget) OverBudget() bool {
	return b.Remaining().IsNegative()
}
