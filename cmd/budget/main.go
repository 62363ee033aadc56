package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Veraticus/the-budget-must-balance/internal/cli"
	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// app carries the per-invocation configuration shared by every command.
type app struct {
	v       *viper.Viper
	cfg     *config.Ledger
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "budget",
		Short: "📒 Personal monthly budget ledger",
		Long: `the-budget-must-balance: track spending categories with limits, record
expenses against them and keep an eye on your monthly budget.

Every change is saved before it is shown, so the ledger always balances.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initConfig,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.config/budget/config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	flags.String("user", "", "ledger namespace to work in (default: default)")
	flags.String("backend", "", "storage backend (sqlite, file, redis, memory)")

	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("ledger.user", flags.Lookup("user"))
	_ = a.v.BindPFlag("storage.backend", flags.Lookup("backend"))

	rootCmd.AddCommand(a.categoriesCmd())
	rootCmd.AddCommand(a.transactionsCmd())
	rootCmd.AddCommand(a.monthCmd())
	rootCmd.AddCommand(a.importOFXCmd())
	rootCmd.AddCommand(a.checkpointCmd())
	rootCmd.AddCommand(a.migrateCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(errorMessage(err)))
		os.Exit(1)
	}
}

// errorMessage pairs the plain-language reason for a ledger error with its detail.
func errorMessage(err error) string {
	var userErr *common.UserError
	if errors.As(err, &userErr) {
		return userErr.Error()
	}
	hint := common.Describe(err)
	if hint == err.Error() {
		return hint
	}
	return fmt.Sprintf("%s (%v)", hint, err)
}

func (a *app) initConfig(_ *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	config.SetDefaults(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		a.v.AddConfigPath(filepath.Join(home, ".config", "budget"))
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("BUDGET")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine; defaults apply
	}

	if err := common.SetupLogger(a.v.GetString("logging.level"), a.v.GetString("logging.format")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	cfg, err := config.LoadLedgerConfig(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	slog.Debug("Configuration loaded",
		"config_file", a.v.ConfigFileUsed(),
		"backend", cfg.Backend,
		"user", cfg.User)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "budget version %s\n", version)
		},
	}
}
