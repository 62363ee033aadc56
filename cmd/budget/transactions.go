package main

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/cli"
	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/ledger"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/Veraticus/the-budget-must-balance/internal/service"
	"github.com/spf13/cobra"
)

func (a *app) transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"transaction", "txn"},
		Short:   "Record and browse expenses",
		Example: `  # Record an expense against category 1
  budget transactions add 12.50 1 --note "lunch"

  # Largest expenses mentioning coffee, second page
  budget transactions list --search coffee --sort desc --page 2`,
	}

	cmd.AddCommand(a.listTransactionsCmd())
	cmd.AddCommand(a.addTransactionCmd())
	cmd.AddCommand(a.deleteTransactionCmd())

	return cmd
}

func (a *app) listTransactionsCmd() *cobra.Command {
	var (
		search, sortArg, monthArg string
		page, pageSize            int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Search, sort and page through transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			direction, err := ledger.ParseSortDirection(sortArg)
			if err != nil {
				return err
			}
			if pageSize <= 0 {
				pageSize = a.cfg.PageSize
			}

			engine, cleanup, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			var month model.Month
			if monthArg != "" {
				if month, err = parseMonth(monthArg, time.Now()); err != nil {
					return err
				}
			}

			result := engine.Search(service.QueryOptions{
				Term:      search,
				Month:     month,
				Direction: direction,
				Page:      page,
				PageSize:  pageSize,
			})

			out := cmd.OutOrStdout()
			if result.TotalItems == 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("No transactions found."))
				return nil
			}

			rows := make([][]string, 0, len(result.Items))
			for _, t := range result.Items {
				rows = append(rows, []string{
					strconv.FormatInt(t.ID, 10),
					t.Date.Format("2006-01-02"),
					cli.FormatAmount(t.Amount),
					t.CategoryName,
					t.Note,
				})
			}

			fmt.Fprint(out, cli.RenderTable([]string{"ID", "DATE", "AMOUNT", "CATEGORY", "NOTE"}, rows))
			fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("Page %d of %d (%d transactions)",
				result.CurrentPage, result.TotalPages, result.TotalItems)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Match note or category name (case-insensitive)")
	cmd.Flags().StringVar(&sortArg, "sort", "none", "Sort by amount: asc, desc or none")
	cmd.Flags().StringVar(&monthArg, "month", "", "Only show one month (YYYY-MM or current)")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Transactions per page (default from ledger.page_size)")

	return cmd
}

func (a *app) addTransactionCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "add <amount> <category-id>",
		Short: "Record an expense",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			categoryID, err := parseID(args[1])
			if err != nil {
				return err
			}

			engine, cleanup, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := engine.AddTransaction(cmd.Context(), amount, note, categoryID)
			if err != nil {
				return fmt.Errorf("failed to add transaction: %w", err)
			}

			out := cmd.OutOrStdout()
			t := result.Transaction
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Recorded transaction %d: %s in %s",
				t.ID, cli.FormatAmount(t.Amount), t.CategoryName)))

			if result.CategoryOverLimit {
				category, err := engine.Category(categoryID)
				if err == nil {
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s is over its limit by %s",
						category.Name, cli.FormatAmount(category.Remaining().Neg()))))
				}
			}
			if result.MonthOverBudget {
				month := engine.MonthlyBudget(t.Month())
				if month.IsSet() {
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s is over budget by %s",
						month.Month, cli.FormatAmount(month.Remaining().Neg()))))
				} else {
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("No budget set for %s; %s spent so far",
						month.Month, cli.FormatAmount(month.Spent))))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&note, "note", "n", "", "What the money was spent on")

	return cmd
}

func (a *app) deleteTransactionCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			engine, cleanup, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if !slices.ContainsFunc(engine.Transactions(), func(t model.Transaction) bool { return t.ID == id }) {
				return fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
			}

			ok, err := confirm(cmd, force, fmt.Sprintf("Delete transaction %d?", id))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, cli.SubtleStyle.Render("Deletion cancelled."))
				return nil
			}

			t, err := engine.DeleteTransaction(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to delete transaction: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted transaction %d: %s from %s",
				t.ID, cli.FormatAmount(t.Amount), t.CategoryName)))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
