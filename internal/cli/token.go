package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/RevCBH/shipyard/internal/api"
)

// NewTokenCmd creates 'token <subject>', which signs an API token with
// the configured secret.
func NewTokenCmd(a *App) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API bearer token for a user",
		Long: `Issue a signed bearer token for the daemon API.

The subject becomes the owner of projects created with the token.
Requires auth.jwt_secret (or SHIPYARD_JWT_SECRET) to be set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			auth := api.NewAuthenticator(cfg.Auth.JWTSecret)
			if auth == nil {
				return errors.New("auth is disabled: set auth.jwt_secret in the config")
			}
			token, err := auth.Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")

	return cmd
}
