package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/cli"
	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/events"
	"github.com/Veraticus/the-budget-must-balance/internal/ledger"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/Veraticus/the-budget-must-balance/internal/service"
	"github.com/Veraticus/the-budget-must-balance/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// openEngine opens the configured store and event publisher and loads the
// user's ledger. The returned cleanup closes both.
func (a *app) openEngine(ctx context.Context) (*ledger.Engine, func(), error) {
	store, err := storage.Open(ctx, a.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	publisher, err := events.Open(ctx, a.cfg.Events)
	if err != nil {
		// Events are notifications only; the ledger works without them.
		slog.Warn("Event publishing unavailable", "error", err)
		publisher = events.NoopPublisher{}
	}

	cleanup := func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("Failed to close event publisher", "error", err)
		}
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close storage", "error", err)
		}
	}

	engine, err := ledger.New(ctx, store, a.cfg.User, ledger.WithPublisher(publisher))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, cleanup, nil
}

func (a *app) checkpointManager() (*storage.CheckpointManager, error) {
	manager, err := storage.NewCheckpointManager(a.cfg.CheckpointsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return manager, nil
}

func (a *app) namespace() string {
	if a.cfg.User == "" {
		return service.DefaultNamespace
	}
	return a.cfg.User
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not an amount", common.ErrInvalidInput, s)
	}
	return amount, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not an id", common.ErrInvalidInput, s)
	}
	return id, nil
}

// parseMonth accepts YYYY-MM or "current".
func parseMonth(s string, now time.Time) (model.Month, error) {
	if strings.EqualFold(strings.TrimSpace(s), "current") {
		return model.MonthOf(now), nil
	}
	month, err := model.ParseMonth(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}
	return month, nil
}

// confirm asks before a destructive change unless force is set.
func confirm(cmd *cobra.Command, force bool, question string) (bool, error) {
	if force {
		return true, nil
	}
	reader := cli.NewNonBlockingReader(cmd.InOrStdin())
	return cli.Confirm(cmd.Context(), reader, cmd.OutOrStdout(), question)
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t time.Time, now time.Time) string {
	duration := now.Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		if minutes := int(duration.Minutes()); minutes != 1 {
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		return "1 minute ago"
	case duration < 24*time.Hour:
		if hours := int(duration.Hours()); hours != 1 {
			return fmt.Sprintf("%d hours ago", hours)
		}
		return "1 hour ago"
	case duration < 7*24*time.Hour:
		if days := int(duration.Hours() / 24); days != 1 {
			return fmt.Sprintf("%d days ago", days)
		}
		return "yesterday"
	default:
		return t.Format("2006-01-02 15:04")
	}
}
