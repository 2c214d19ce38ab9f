// Package commands wires the auditctl CLI. Exit codes are part of the
// contract: 0 when an audit ran clean, 1 when vouchers were flagged for
// manual review, 2 on any operational failure.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripledger/ledger-engine/internal/buildinfo"
	"github.com/tripledger/ledger-engine/ledger"
	"github.com/tripledger/ledger-engine/store/mongo"
	"github.com/tripledger/ledger-engine/store/sqlite"
)

// ErrVouchersFlagged is returned by audit commands that completed but left
// vouchers needing manual review. main maps it to exit code 1.
var ErrVouchersFlagged = errors.New("vouchers flagged for manual review")

// rootOptions are the store flags shared by every subcommand.
type rootOptions struct {
	dbPath   string
	mongoURI string
	mongoDB  string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "auditctl",
		Short:   "Ledger audit and repair tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "ledger.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&opts.mongoURI, "mongo", "", "MongoDB connection URI (overrides --db)")
	rootCmd.PersistentFlags().StringVar(&opts.mongoDB, "mongodb", "ledger", "MongoDB database name")

	rootCmd.AddCommand(newBalanceCommand(opts))
	rootCmd.AddCommand(newCompletenessCommand(opts))
	rootCmd.AddCommand(newAllCommand(opts))

	return rootCmd
}

// openStore opens the configured backend. The returned func releases it.
func (o *rootOptions) openStore(ctx context.Context) (ledger.TxStore, func(), error) {
	if o.mongoURI != "" {
		ms, err := mongo.New(ctx, o.mongoURI, o.mongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to mongodb: %w", err)
		}
		return ms, func() { ms.Close(context.Background()) }, nil
	}
	ss, err := sqlite.New(o.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return ss, func() { ss.Close() }, nil
}

// newEngine builds an audit engine whose repairs flow through the same
// observer set as regular postings, so aggregates track corrections.
func newEngine(store ledger.TxStore, policy ledger.AuditPolicy) (*ledger.AuditEngine, error) {
	registry, err := ledger.LoadRegistry(context.Background(), store)
	if err != nil {
		return nil, fmt.Errorf("loading account registry: %w", err)
	}
	aggregator := ledger.NewPeriodAggregator(registry, ledger.DefaultShards)
	poster := ledger.NewJournalPoster(store, aggregator)
	return ledger.NewAuditEngine(store, poster, policy), nil
}
