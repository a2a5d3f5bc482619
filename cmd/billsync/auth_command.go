package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"billsync/internal/services/moneyforward"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	var (
		test    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to the billing service",
		Long: "Runs the OAuth authorization flow for the billing service. " +
			"Opens a local callback listener, prints the authorization URL, " +
			"and stores the resulting token for later runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateMoneyForward(); err != nil {
				return err
			}

			if test {
				client, _, err := ctx.billingClient()
				if err != nil {
					return err
				}
				if err := client.Ping(cmd.Context()); err != nil {
					return fmt.Errorf("billing service check failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Billing service connection OK.")
				return nil
			}

			store := moneyforward.NewFileTokenStore(cfg.TokenPath())
			manager := moneyforward.NewTokenManager(cfg, store)

			authorizeURL, state := manager.AuthorizeURL()
			fmt.Fprintln(cmd.OutOrStdout(), "Open the following URL in your browser to authorize:")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "  "+authorizeURL)
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "Waiting for the callback on %s...\n", cfg.MoneyForward.RedirectURI)

			waitCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			result, err := moneyforward.WaitForCallback(waitCtx, cfg.MoneyForward.RedirectURI, state)
			if err != nil {
				return err
			}
			if err := manager.Exchange(cmd.Context(), result.Code); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authorization complete; token saved to %s\n", cfg.TokenPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&test, "test", false, "Verify the stored token against the billing service")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the authorization callback")

	return cmd
}
