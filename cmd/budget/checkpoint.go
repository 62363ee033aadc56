package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/cli"
	"github.com/spf13/cobra"
)

func (a *app) checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage ledger checkpoints",
		Long: `Create, list, restore, and delete ledger checkpoints.

Checkpoints save the whole ledger of the current user to disk so a risky change,
like a large import, can be undone.`,
		Example: `  # Create a checkpoint before importing new data
  budget checkpoint create pre-2024-import

  # List all checkpoints
  budget checkpoint list

  # Restore from a checkpoint
  budget checkpoint restore pre-2024-import

  # Delete an old checkpoint
  budget checkpoint delete old-checkpoint`,
	}

	cmd.AddCommand(a.createCheckpointCmd())
	cmd.AddCommand(a.listCheckpointsCmd())
	cmd.AddCommand(a.restoreCheckpointCmd())
	cmd.AddCommand(a.deleteCheckpointCmd())

	return cmd
}

func (a *app) createCheckpointCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create [tag]",
		Short: "Create a new checkpoint",
		Long:  `Snapshot the current ledger. The tag is generated from the time when omitted.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tag := ""
			if len(args) == 1 {
				tag = args[0]
			}

			engine, cleanup, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			manager, err := a.checkpointManager()
			if err != nil {
				return err
			}

			info, err := manager.Create(ctx, engine.Namespace(), tag, description, engine.Snapshot())
			if err != nil {
				return fmt.Errorf("failed to create checkpoint: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Created checkpoint %s (%s)\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(info.ID),
				formatFileSize(info.FileSize))
			if info.Description != "" {
				fmt.Fprintf(out, "  Description: %s\n", info.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the checkpoint")

	return cmd
}

func (a *app) listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.checkpointManager()
			if err != nil {
				return err
			}

			checkpoints, err := manager.List(cmd.Context(), a.namespace())
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(checkpoints) == 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("No checkpoints found."))
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(checkpoints))
			for _, cp := range checkpoints {
				rows = append(rows, []string{
					cli.InfoStyle.Render(cp.ID),
					formatRelativeTime(cp.CreatedAt, now),
					formatFileSize(cp.FileSize),
					strconv.Itoa(cp.Categories),
					strconv.Itoa(cp.Transactions),
					strconv.Itoa(cp.Months),
					cp.Description,
				})
			}

			fmt.Fprint(out, cli.RenderTable(
				[]string{"NAME", "CREATED", "SIZE", "CATEGORIES", "TRANSACTIONS", "MONTHS", "DESCRIPTION"},
				rows))
			return nil
		},
	}
}

func (a *app) restoreCheckpointCmd() *cobra.Command {
	var force, noBackup bool

	cmd := &cobra.Command{
		Use:   "restore <tag>",
		Short: "Replace the ledger with a checkpoint",
		Long: `Replace the current ledger with a checkpoint.

A checkpoint of the current ledger is taken first unless --no-backup is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tag := args[0]

			manager, err := a.checkpointManager()
			if err != nil {
				return err
			}

			state, info, err := manager.Load(ctx, a.namespace(), tag)
			if err != nil {
				return fmt.Errorf("failed to load checkpoint: %w", err)
			}

			out := cmd.OutOrStdout()
			if !force {
				fmt.Fprintf(out, "%s This will replace your current ledger with checkpoint %s.\n",
					cli.WarningStyle.Render(cli.WarningIcon),
					cli.InfoStyle.Render(info.ID))
				fmt.Fprintf(out, "  Created: %s\n", info.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				if info.Description != "" {
					fmt.Fprintf(out, "  Description: %s\n", info.Description)
				}
			}
			ok, err := confirm(cmd, force, "Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, cli.SubtleStyle.Render("Restore cancelled."))
				return nil
			}

			engine, cleanup, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if !noBackup {
				backup, err := manager.Create(ctx, engine.Namespace(), "", "before restoring "+tag, engine.Snapshot())
				if err != nil {
					return fmt.Errorf("failed to back up current ledger: %w", err)
				}
				fmt.Fprintf(out, "%s Saved current ledger as %s\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(backup.ID))
			}

			if err := engine.Restore(ctx, state); err != nil {
				return fmt.Errorf("failed to restore checkpoint: %w", err)
			}

			fmt.Fprintf(out, "%s Restored from checkpoint %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(info.ID))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Do not checkpoint the current ledger first")

	return cmd
}

func (a *app) deleteCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <tag>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tag := args[0]

			manager, err := a.checkpointManager()
			if err != nil {
				return err
			}

			info, err := manager.GetCheckpointInfo(ctx, a.namespace(), tag)
			if err != nil {
				return fmt.Errorf("failed to get checkpoint info: %w", err)
			}

			out := cmd.OutOrStdout()
			if !force {
				fmt.Fprintf(out, "%s This will permanently delete checkpoint %s (%s).\n",
					cli.WarningStyle.Render(cli.WarningIcon),
					cli.InfoStyle.Render(info.ID),
					formatFileSize(info.FileSize))
			}
			ok, err := confirm(cmd, force, "Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, cli.SubtleStyle.Render("Deletion cancelled."))
				return nil
			}

			if err := manager.Delete(ctx, a.namespace(), tag); err != nil {
				return fmt.Errorf("failed to delete checkpoint: %w", err)
			}

			fmt.Fprintf(out, "%s Deleted checkpoint %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(info.ID))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
