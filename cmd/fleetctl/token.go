package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"WalletFleet/internal/auth"
	"WalletFleet/internal/config"
)

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(c))
	return cmd
}

// newTokenIssueCmd 使用 fleetd 的配置在本地签发令牌，不经过网络。
func newTokenIssueCmd(c *cli) *cobra.Command {
	var (
		subject     string
		permissions []string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token with the daemon's auth secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			cfg, err := config.Load(c.v.GetString("config"))
			if err != nil {
				return err
			}
			tokenTTL := cfg.Auth.TokenTTL()
			if ttl > 0 {
				tokenTTL = ttl
			}
			svc, err := auth.NewService(auth.Config{
				Mode:   auth.Mode(cfg.Auth.Mode),
				Secret: cfg.Auth.ResolveSecret(),
				Issuer: cfg.Auth.Issuer,
				TTL:    tokenTTL,
			})
			if err != nil {
				return err
			}
			token, expires, err := svc.Issue(subject, permissions...)
			if err != nil {
				return err
			}
			pterm.Success.Printf("Token for %s expires at %s\n", subject, expires.Format(time.RFC3339))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&subject, "subject", "", "token subject")
	flags.StringSliceVar(&permissions, "permission", []string{auth.PermissionRead, auth.PermissionWrite}, "granted permission, repeatable")
	flags.DurationVar(&ttl, "ttl", 0, "token lifetime; defaults to auth.token_ttl")
	return cmd
}
