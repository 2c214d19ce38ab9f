package commands

import (
	"github.com/spf13/cobra"

	"github.com/tripledger/ledger-engine/ledger"
)

func newCompletenessCommand(opts *rootOptions) *cobra.Command {
	var sourceTypes []string

	cmd := &cobra.Command{
		Use:   "completeness",
		Short: "Backfill vouchers for business records that never posted",
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

			types := make([]ledger.SourceType, len(sourceTypes))
			for i, s := range sourceTypes {
				types[i] = ledger.SourceType(s)
			}
			report, err := engine.RunCompletenessAudit(cmd.Context(), types)
			if err != nil {
				return err
			}
			cmd.Printf("checked: %d\nbackfilled: %d\n", report.Checked, report.Created)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sourceTypes, "source-type", nil,
		"source types to reconcile (default: all voucher-producing types)")

	return cmd
}
