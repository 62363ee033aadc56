package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/Veraticus/the-budget-must-balance/internal/service"
)

// Query filters, sorts and paginates txns. The input slice is never modified.
//
// The term matches case-insensitively against the note or the category name.
// Sorting by amount is stable, so ties keep their input order. An empty result
// has zero total pages and reports page 1.
func Query(txns []model.Transaction, opts service.QueryOptions) service.Page {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = service.DefaultPageSize
	}
	term := strings.ToLower(opts.Term)

	matched := make([]model.Transaction, 0, len(txns))
	for _, t := range txns {
		if opts.Month != "" && t.Month() != opts.Month {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Note), term) &&
			!strings.Contains(strings.ToLower(t.CategoryName), term) {
			continue
		}
		matched = append(matched, t)
	}

	switch opts.Direction {
	case service.SortAscending:
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Amount.LessThan(matched[j].Amount)
		})
	case service.SortDescending:
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Amount.GreaterThan(matched[j].Amount)
		})
	}

	total := len(matched)
	if total == 0 {
		return service.Page{Items: []model.Transaction{}, TotalPages: 0, CurrentPage: 1}
	}

	totalPages := (total + pageSize - 1) / pageSize
	page := min(max(opts.Page, 1), totalPages)
	start := (page - 1) * pageSize
	end := min(start+pageSize, total)

	return service.Page{
		Items:       matched[start:end:end],
		TotalPages:  totalPages,
		CurrentPage: page,
		TotalItems:  total,
	}
}

// ParseSortDirection accepts asc, desc or none (empty means none).
func ParseSortDirection(s string) (service.SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return service.SortNone, nil
	case "asc", "ascending":
		return service.SortAscending, nil
	case "desc", "descending":
		return service.SortDescending, nil
	default:
		return service.SortNone, fmt.Errorf("%w: sort must be asc, desc or none, got %q", common.ErrInvalidInput, s)
	}
}
