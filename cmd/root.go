package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kebairia/sbackup/internal/config"
	"github.com/kebairia/sbackup/internal/logger"
	"github.com/kebairia/sbackup/internal/operations"
)

// defaultConfigFile is read when -c is not given and the file exists.
const defaultConfigFile = "./sbackup.yaml"

// Version is stamped at build time.
var Version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	logLevel   string
}

// newRootCmd builds the sbackup command tree. Every call returns fresh
// commands with their own flag state.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "sbackup",
		Short: "Back up, restore and verify a hosted database and storage project",
		Long: `sbackup captures a project's database (plain SQL dumps), storage
buckets, auth users and run configuration into a timestamped directory, and
restores or verifies such a directory later.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.PersistentFlags().
		StringVarP(&opts.configFile, "config", "c", "", "path to YAML config file (default ./sbackup.yaml if present)")
	root.PersistentFlags().
		StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(newBackupCmd(opts))
	root.AddCommand(newRestoreCmd(opts))
	root.AddCommand(newVerifyCmd())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	logger.Cleanup()
	if err != nil {
		if !errors.Is(err, operations.ErrIncomplete) {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		}
		os.Exit(1)
	}
}

// loadConfig reads the configuration and initialises the logger from it.
func (o *rootOptions) loadConfig() (config.Config, logger.Logger, error) {
	var cfg config.Config
	path := o.configFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if err := cfg.Load(path); err != nil {
		return cfg, nil, err
	}
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	log, err := logger.Init(level)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}
