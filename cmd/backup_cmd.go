package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/sbackup/internal/operations"
	"github.com/kebairia/sbackup/internal/report"
)

type backupOptions struct {
	dbOnly      bool
	storageOnly bool
	configOnly  bool
	output      string
}

func (o *backupOptions) mode() operations.Mode {
	switch {
	case o.dbOnly:
		return operations.ModeDatabase
	case o.storageOnly:
		return operations.ModeStorage
	case o.configOnly:
		return operations.ModeConfig
	}
	return operations.ModeFull
}

func newBackupCmd(root *rootOptions) *cobra.Command {
	opts := &backupOptions{}
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the project into a new timestamped directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.loadConfig()
			if err != nil {
				return err
			}

			om := operations.NewOperationManager(cfg, log, operations.WithVersion(Version))
			res, err := om.Backup(cmd.Context(), opts.mode(), opts.output)
			if res != nil {
				report.Backup(cmd.OutOrStdout(), res)
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

	cmd.Flags().BoolVar(&opts.dbOnly, "db-only", false, "back up only the database (full dump and auth users)")
	cmd.Flags().BoolVar(&opts.storageOnly, "storage-only", false, "back up only storage buckets")
	cmd.Flags().BoolVar(&opts.configOnly, "config-only", false, "back up only the run configuration")
	cmd.MarkFlagsMutuallyExclusive("db-only", "storage-only", "config-only")
	cmd.Flags().
		StringVarP(&opts.output, "output", "o", "", "directory to create the backup in (defaults to backup.output_directory)")
	return cmd
}
