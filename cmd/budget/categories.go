package main

import (
	"fmt"
	"strconv"

	"github.com/Veraticus/the-budget-must-balance/internal/cli"
	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/spf13/cobra"
)

func (a *app) categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category", "cat"},
		Short:   "Manage spending categories",
		Long: `List, add, edit and delete spending categories.

Each category has a spending limit. Deleting a category also deletes every
transaction recorded against it.`,
		Example: `  # Add a category with a monthly limit
  budget categories add Groceries 400

  # Raise the limit
  budget categories edit 1 --limit 450

  # Delete without confirmation
  budget categories delete 1 --force`,
	}

	cmd.AddCommand(a.listCategoriesCmd())
	cmd.AddCommand(a.addCategoryCmd())
	cmd.AddCommand(a.editCategoryCmd())
	cmd.AddCommand(a.deleteCategoryCmd())

	return cmd
}

func (a *app) listCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories with their limits and spending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, cleanup, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			categories := engine.Categories()
			if len(categories) == 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("No categories yet. Add one with: budget categories add <name> <limit>"))
				return nil
			}

			rows := make([][]string, 0, len(categories))
			for _, c := range categories {
				rows = append(rows, []string{
					strconv.FormatInt(c.ID, 10),
					c.Name,
					cli.FormatAmount(c.Limit),
					cli.FormatAmount(c.Spent),
					cli.FormatRemaining(c.Remaining()),
				})
			}

			fmt.Fprintln(out, cli.FormatTitle("Categories"))
			fmt.Fprint(out, cli.RenderTable([]string{"ID", "NAME", "LIMIT", "SPENT", "REMAINING"}, rows))
			return nil
		},
	}
}

func (a *app) addCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <limit>",
		Short: "Add a spending category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := parseAmount(args[1])
			if err != nil {
				return err
			}

			engine, cleanup, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			category, err := engine.AddCategory(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("failed to add category: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added category %d %s (limit %s)",
				category.ID, category.Name, cli.FormatAmount(category.Limit))))
			return nil
		},
	}
}

func (a *app) editCategoryCmd() *cobra.Command {
	var name, limitArg string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Rename a category or change its limit",
		Long: `Rename a category or change its limit.

Transactions keep the category name they were recorded with.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if name == "" && limitArg == "" {
				return fmt.Errorf("%w: nothing to change, pass --name and/or --limit", common.ErrInvalidInput)
			}

			engine, cleanup, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			current, err := engine.Category(id)
			if err != nil {
				return err
			}

			newName, newLimit := current.Name, current.Limit
			if name != "" {
				newName = name
			}
			if limitArg != "" {
				if newLimit, err = parseAmount(limitArg); err != nil {
					return err
				}
			}

			updated, err := engine.EditCategory(cmd.Context(), id, newName, newLimit)
			if err != nil {
				return fmt.Errorf("failed to edit category: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Updated category %d %s (limit %s)",
				updated.ID, updated.Name, cli.FormatAmount(updated.Limit))))
			if updated.OverLimit() {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s is already over its limit by %s",
					updated.Name, cli.FormatAmount(updated.Remaining().Neg()))))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New category name")
	cmd.Flags().StringVar(&limitArg, "limit", "", "New spending limit")

	return cmd
}

func (a *app) deleteCategoryCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category and all of its transactions",
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

			category, err := engine.Category(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !force {
				count := 0
				for _, t := range engine.Transactions() {
					if t.CategoryID == id {
						count++
					}
				}
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("This deletes %s and its %d transaction(s).", category.Name, count)))
			}
			ok, err := confirm(cmd, force, "Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, cli.SubtleStyle.Render("Deletion cancelled."))
				return nil
			}

			result, err := engine.DeleteCategory(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to delete category: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted category %s, removed %d transaction(s) totalling %s",
				result.Category.Name, result.RemovedTransactions, cli.FormatAmount(result.RemovedAmount))))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
