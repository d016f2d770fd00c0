package commands

import (
	"fmt"
	"time"

	"guild-ranker/internal/pkg/jwt"

	"github.com/spf13/cobra"
)

var tokenFlags struct {
	subject string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ttl := cfg.Admin.TokenTTL
		if tokenFlags.ttl > 0 {
			ttl = tokenFlags.ttl
		}
		tok, err := jwt.NewHMACService(cfg.Admin.JWTSecret, ttl).GenerateAdminToken(tokenFlags.subject)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.subject, "subject", "admin", "token subject")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 0, "token lifetime (default ADMIN_TOKEN_TTL)")
	rootCmd.AddCommand(tokenCmd)
}
