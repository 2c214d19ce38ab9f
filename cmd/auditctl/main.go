// auditctl runs the ledger audits from the command line, typically on a
// schedule. Exit codes: 0 clean, 1 vouchers flagged for manual review,
// 2 operational failure.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tripledger/ledger-engine/internal/commands"
)

func main() {
	rootCmd := commands.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, commands.ErrVouchersFlagged) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
