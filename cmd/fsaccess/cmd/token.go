package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/fsaccess/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token signed with JWT_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireServer(); err != nil {
			return err
		}
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tok, err := auth.New(cfg.JWTSecret, cfg.LocatorTTL).IssueToken(subject, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("subject", "cli", "token subject")
	tokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime (0 never expires)")
	rootCmd.AddCommand(tokenCmd)
}
