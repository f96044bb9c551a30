package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/fsaccess/internal/config"
	"github.com/fruitsalade/fsaccess/internal/logging"
)

var (
	cfg      *config.Config
	token    string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "fsaccess",
	Short: "fsaccess - inspect storage backends and move content between them",
	Long: `fsaccess works with one storage abstraction over several backends.

Locations:
  /dir, ./dir, local:/dir      a directory on this machine
  s3://bucket/prefix           an S3-compatible bucket (S3_* environment variables)
  http(s)://host:port          an fsaccess server (--token or FSACCESS_TOKEN)
  mem:[name]                   a scratch in-memory tree, gone when the command exits

Paths inside a location are absolute and use "/" as separator.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		level := cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		format := "console"
		if cmd.Name() == "serve" {
			format = cfg.LogFormat
		}
		if err := logging.Init(logging.Config{Level: level, Format: format, OutputPath: "stderr"}); err != nil {
			return fmt.Errorf("logging init error: %w", err)
		}
		if token == "" {
			token = cfg.RemoteToken
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token for http(s) locations (default $FSACCESS_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}
