package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kebairia/sbackup/internal/operations"
	"github.com/kebairia/sbackup/internal/report"
)

type restoreOptions struct {
	dbOnly      bool
	storageOnly bool
	authOnly    bool
	yes         bool
}

func (o *restoreOptions) mode() operations.RestoreMode {
	switch {
	case o.dbOnly:
		return operations.RestoreDatabase
	case o.storageOnly:
		return operations.RestoreStorage
	case o.authOnly:
		return operations.RestoreAuth
	}
	return operations.RestoreFull
}

func newRestoreCmd(root *rootOptions) *cobra.Command {
	opts := &restoreOptions{}
	cmd := &cobra.Command{
		Use:   "restore <backup-dir>",
		Short: "Restore a backup directory into the configured project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			// Identify the backup before acting, in every mode.
			manifest, err := operations.LoadManifest(args[0])
			if err != nil {
				return err
			}
			report.Manifest(out, manifest)

			cfg, log, err := root.loadConfig()
			if err != nil {
				return err
			}

			confirm := func(*operations.Manifest) bool {
				if opts.yes {
					return true
				}
				return promptConfirm(cmd.InOrStdin(), out)
			}

			om := operations.NewOperationManager(cfg, log, operations.WithVersion(Version))
			res, err := om.Restore(cmd.Context(), args[0], opts.mode(), confirm)
			if res != nil && len(res.Steps) > 0 {
				report.Restore(out, res)
			}
			if err != nil {
				return err
			}
			if !res.Succeeded() {
				return operations.ErrIncomplete
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.dbOnly, "db-only", false, "restore only the database")
	cmd.Flags().BoolVar(&opts.storageOnly, "storage-only", false, "restore only storage buckets")
	cmd.Flags().BoolVar(&opts.authOnly, "auth-only", false, "restore only auth users")
	cmd.MarkFlagsMutuallyExclusive("db-only", "storage-only", "auth-only")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "skip the confirmation prompt of a full restore")
	return cmd
}

// promptConfirm asks the operator to type "yes" before a full restore.
func promptConfirm(in io.Reader, out io.Writer) bool {
	fmt.Fprintln(out, "WARNING: a full restore overwrites data in the target project.")
	fmt.Fprint(out, "Type 'yes' to continue: ")
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}
