package commands

import (
	"github.com/spf13/cobra"

	"github.com/tripledger/ledger-engine/ledger"
)

// newAllCommand runs completeness first so freshly backfilled vouchers are
// included in the balance scan.
func newAllCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run the completeness and balance audits in sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			engine, err := newEngine(store, ledger.DefaultAuditPolicy())
			if err != nil {
				return err
			}

			completeness, err := engine.RunCompletenessAudit(cmd.Context(), nil)
			if err != nil {
				return err
			}
			cmd.Printf("completeness: checked %d, backfilled %d\n",
				completeness.Checked, completeness.Created)

			balance, err := engine.RunBalanceAudit(cmd.Context())
			if err != nil {
				return err
			}
			printBalanceReport(cmd, balance)
			if len(balance.Flagged) > 0 {
				return ErrVouchersFlagged
			}
			return nil
		},
	}

	return cmd
}
