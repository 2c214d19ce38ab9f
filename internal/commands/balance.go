package commands

import (
	"github.com/spf13/cobra"

	"github.com/tripledger/ledger-engine/ledger"
)

func newBalanceCommand(opts *rootOptions) *cobra.Command {
	var noRepair bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Scan all active vouchers for balance violations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			policy := ledger.DefaultAuditPolicy()
			if noRepair {
				policy.AutoRepairTwoLeg = false
			}
			engine, err := newEngine(store, policy)
			if err != nil {
				return err
			}

			report, err := engine.RunBalanceAudit(cmd.Context())
			if err != nil {
				return err
			}
			printBalanceReport(cmd, report)
			if len(report.Flagged) > 0 {
				return ErrVouchersFlagged
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noRepair, "no-repair", false, "report imbalances without repairing two-leg vouchers")

	return cmd
}

func printBalanceReport(cmd *cobra.Command, report ledger.BalanceAuditReport) {
	cmd.Printf("checked: %d\nrepaired: %d\nflagged: %d\n",
		report.Checked, report.Fixed, len(report.Flagged))
	for _, f := range report.Flagged {
		cmd.Printf("  %s %s/%s imbalance=%s legs=%d: %s\n",
			f.VoucherID, f.SourceType, f.SourceID, f.Imbalance, f.Legs, f.Reason)
	}
}
