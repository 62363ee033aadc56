package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/the-budget-must-balance/internal/cli"
	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/Veraticus/the-budget-must-balance/internal/ofx"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxParallelParses bounds how many statement files are read at once.
const maxParallelParses = 4

func (a *app) importOFXCmd() *cobra.Command {
	var (
		categoryArg string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "import-ofx <files...>",
		Short: "Import expenses from OFX/QFX statements",
		Long: `Import the debits of OFX or QFX statements exported from your bank into one category.

Credits are skipped. Rows already imported (matched by account and FITID) are
skipped too, so importing an overlapping statement twice is safe. Either every
new row is recorded or none is.`,
		Example: `  # Import one statement into category 2
  budget import-ofx ~/Downloads/checking_jan.qfx --category 2

  # Preview a batch of statements
  budget import-ofx ~/Downloads/*.qfx --category 2 --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categoryID, err := parseID(categoryArg)
			if err != nil {
				return fmt.Errorf("--category: %w", err)
			}

			files, err := expandFiles(args)
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "Import")
			defer stop()

			entries, err := parseStatements(ctx, cmd, files)
			if err != nil {
				return err
			}

			engine, cleanup, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			category, err := engine.Category(categoryID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				total := decimal.Zero
				for _, e := range entries {
					total = total.Add(e.Amount)
				}
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Dry run: %d debit(s) totalling %s would be offered to %s",
					len(entries), cli.FormatAmount(total), category.Name)))
				return nil
			}

			result, err := engine.ImportTransactions(ctx, categoryID, entries)
			if err != nil {
				return fmt.Errorf("failed to import transactions: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transaction(s) totalling %s into %s",
				len(result.Imported), cli.FormatAmount(result.Total), category.Name)))
			if result.Duplicates > 0 {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Skipped %d already imported row(s)", result.Duplicates)))
			}
			if updated, err := engine.Category(categoryID); err == nil && updated.OverLimit() {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s is over its limit by %s",
					updated.Name, cli.FormatAmount(updated.Remaining().Neg()))))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&categoryArg, "category", "c", "", "Category id to record the expenses under (required)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "Preview import without saving")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

// expandFiles resolves glob patterns, keeping plain paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			files = append(files, matches...)
			continue
		}
		if _, err := os.Stat(pattern); err == nil {
			files = append(files, pattern)
		} else {
			slog.Warn("No files found matching pattern", "pattern", pattern)
		}
	}

	if len(files) == 0 {
		return nil, common.NewUserError("no files found to import", nil)
	}
	return files, nil
}

// parseStatements reads every file concurrently. Entries keep file order, and
// any unreadable file fails the whole import before the ledger is touched.
func parseStatements(ctx context.Context, cmd *cobra.Command, files []string) ([]model.ImportEntry, error) {
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Reading statements"),
		progressbar.OptionClearOnFinish(),
	)

	parser := ofx.NewParser()
	results := make([]*ofx.ParseResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelParses)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer func() { _ = f.Close() }()

			result, err := parser.ParseFile(gctx, f)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			results[i] = result

			if err := bar.Add(1); err != nil {
				slog.Debug("Failed to update progress bar", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	_ = bar.Finish()

	var entries []model.ImportEntry
	for i, result := range results {
		slog.Info("Read statement",
			"file", filepath.Base(files[i]),
			"debits", len(result.Entries),
			"skipped_credits", result.Skipped,
			"accounts", result.Accounts)
		entries = append(entries, result.Entries...)
	}
	return entries, nil
}
