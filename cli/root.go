// Package cli implements ledgerctl, the operator command line for the
// inventory ledger. Every command opens the configured store, runs one
// ledger operation and prints the result as text or JSON.
//
// Settings come from the same environment (and .env file) as the server, so
// the stock policy, retry budget and entry publishers match. --db and
// --driver override LEDGER_DB_DSN and LEDGER_DB_DRIVER when given.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/inventory-ledger/config"
	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/logger"
	"github.com/warp/inventory-ledger/notify"
	"github.com/warp/inventory-ledger/store/mysql"
	"github.com/warp/inventory-ledger/store/sqlite"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile  string
	DB       string
	Driver   string // "sqlite" | "mysql"
	Format   string // "json" | "text"
	Business string
	Actor    string

	cfg   *config.Config
	clock func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidDrivers defines the allowed store drivers.
var ValidDrivers = []string{"sqlite", "mysql"}

// NewRootCommand creates the root command for ledgerctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inventory ledger administration",
		Long:  "Inspect and adjust per-variant stock levels and their append-only history.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.EnvFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "load configuration", err)
			}
			opts.cfg = cfg
			if !cmd.Flags().Changed("db") {
				opts.DB = cfg.Database.DSN
			}
			if !cmd.Flags().Changed("driver") {
				opts.Driver = cfg.Database.Driver
			}

			if !oneOf(opts.Format, ValidFormats) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !oneOf(opts.Driver, ValidDrivers) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid driver %q: must be one of %v", opts.Driver, ValidDrivers))
			}
			if opts.Business == "" {
				return NewExitError(ExitCommandError, "--business must not be empty")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env", ".env", "path to .env file (missing file is fine)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "ledger.db", "database path (sqlite) or DSN (mysql), default LEDGER_DB_DSN")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "sqlite", "store driver (sqlite|mysql), default LEDGER_DB_DRIVER")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Business, "business", "b", "default", "tenant id")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", os.Getenv("USER"), "actor recorded on manual changes")

	// Add subcommands
	cmd.AddCommand(NewVariantCommand(opts))
	cmd.AddCommand(NewMutateCommand(opts))
	cmd.AddCommand(NewBulkSetCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewLowStockCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

type closableStore interface {
	ledger.Store
	Close() error
}

// openService opens the configured store and publishers and builds a
// service with the configured mutator settings. The returned func closes
// everything that was opened.
func (o *RootOptions) openService(ctx context.Context) (*ledger.Service, func(), error) {
	log, err := logger.New(o.cfg.LogLevel)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "init logger", err)
	}

	var store closableStore
	switch o.Driver {
	case "mysql":
		store, err = mysql.New(ctx, o.DB)
	default:
		store, err = sqlite.New(o.DB)
	}
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open store", err)
	}

	publisher, closePublishers, err := notify.Open(ctx, o.cfg, log)
	if err != nil {
		store.Close()
		return nil, nil, WrapExitError(ExitCommandError, "open publishers", err)
	}

	mc := o.cfg.Ledger.MutatorConfig()
	mc.Clock = o.clock
	mc.Publisher = publisher
	mc.Logger = logger.Named(log, "mutator")
	svc := ledger.NewService(store, ledger.NewMutator(store, mc), nil, logger.Named(log, "ledger"))

	return svc, func() {
		closePublishers()
		store.Close()
		log.Sync()
	}, nil
}

func (o *RootOptions) business() ledger.BusinessID {
	return ledger.BusinessID(o.Business)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
