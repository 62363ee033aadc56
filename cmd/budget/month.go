package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/cli"
	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/spf13/cobra"
)

func (a *app) monthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "month",
		Short: "Set and review monthly budgets",
		Example: `  # Budget 1500 for the current month
  budget month set current 1500

  # How did March go?
  budget month show 2024-03

  # The last year at a glance
  budget month history --months 12`,
	}

	cmd.AddCommand(a.setMonthCmd())
	cmd.AddCommand(a.showMonthCmd())
	cmd.AddCommand(a.monthHistoryCmd())

	return cmd
}

func (a *app) setMonthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <YYYY-MM|current> <amount>",
		Short: "Set the budget for a month",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := parseMonth(args[0], time.Now())
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}

			engine, cleanup, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			budget, err := engine.SetMonthlyBudget(cmd.Context(), month, amount)
			if err != nil {
				return fmt.Errorf("failed to set monthly budget: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Budget for %s set to %s", budget.Month, cli.FormatAmount(budget.Budget))))
			if budget.OverBudget() {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Already spent %s, over budget by %s",
					cli.FormatAmount(budget.Spent), cli.FormatAmount(budget.Remaining().Neg()))))
			}
			return nil
		},
	}
}

func (a *app) showMonthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [YYYY-MM]",
		Short: "Show budget, spending and what remains for a month",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			budget := engine.CurrentMonth()
			if len(args) == 1 {
				month, err := parseMonth(args[0], time.Now())
				if err != nil {
					return err
				}
				budget = engine.MonthlyBudget(month)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderMonth(budget))
			return nil
		},
	}
}

func renderMonth(budget model.MonthlyBudget) string {
	budgetLine := "Budget:    " + cli.FormatAmount(budget.Budget)
	if !budget.IsSet() {
		budgetLine = "Budget:    " + cli.SubtleStyle.Render("not set")
	}
	content := fmt.Sprintf("%s\nSpent:     %s\nRemaining: %s",
		budgetLine,
		cli.FormatAmount(budget.Spent),
		cli.FormatRemaining(budget.Remaining()))
	return cli.RenderBox(budget.Month.String(), content)
}

func (a *app) monthHistoryCmd() *cobra.Command {
	var months int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent months, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if months <= 0 {
				return fmt.Errorf("%w: --months must be positive", common.ErrInvalidInput)
			}

			engine, cleanup, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			summary := engine.MonthlySummary(months)
			rows := make([][]string, 0, len(summary))
			for _, m := range summary {
				budget := "-"
				remaining := "-"
				if m.IsSet() {
					budget = cli.FormatAmount(m.Budget)
					remaining = cli.FormatRemaining(m.Remaining())
				}
				rows = append(rows, []string{m.Month.String(), budget, cli.FormatAmount(m.Spent), remaining})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle("Monthly history"))
			fmt.Fprint(out, cli.RenderTable([]string{"MONTH", "BUDGET", "SPENT", "REMAINING"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVarP(&months, "months", "m", 6, "Number of months to show")

	return cmd
}
