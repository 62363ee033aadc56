package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-budget-must-balance/internal/cli"
	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/config"
	"github.com/Veraticus/the-budget-must-balance/internal/storage"
	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the SQLite schema to the latest version.

Migrations also run automatically whenever the sqlite backend is opened; use
--status to see what would be applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Backend != config.BackendSQLite {
				return common.NewUserError(
					fmt.Sprintf("migrations only apply to the sqlite backend, not %q", a.cfg.Backend), nil)
			}

			ctx := cmd.Context()
			dbPath := a.cfg.DatabasePath

			slog.Debug("Starting database migration", "database", dbPath, "status_only", status)

			store, err := storage.NewSQLiteStore(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if status {
				current, err := store.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				pending, err := store.PendingMigrations(ctx)
				if err != nil {
					return err
				}

				fmt.Fprintln(out, cli.FormatTitle("Database Migration Status"))
				fmt.Fprintf(out, "Database:        %s\n", dbPath)
				fmt.Fprintf(out, "Current version: %d\n", current)
				fmt.Fprintf(out, "Latest version:  %d\n", storage.ExpectedSchemaVersion)
				if len(pending) == 0 {
					fmt.Fprintln(out, cli.FormatSuccess("Schema is up to date"))
					return nil
				}
				for _, m := range pending {
					fmt.Fprintf(out, "  pending v%d: %s\n", m.Version, m.Description)
				}
				return nil
			}

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database migrations completed (schema v%d)", storage.ExpectedSchemaVersion)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "Show current migration status without applying changes")

	return cmd
}
