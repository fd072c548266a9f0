package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/sbackup/internal/operations"
	"github.com/kebairia/sbackup/internal/report"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <backup-dir>",
		Short: "Check a backup directory for completeness without contacting the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := operations.Verify(args[0])
			report.Verify(cmd.OutOrStdout(), r)
			if !r.Passed() {
				return operations.ErrIncomplete
			}
			return nil
		},
	}
}
