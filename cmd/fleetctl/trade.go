package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"WalletFleet/sdk/go/walletfleet"
)

func newTradeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Swap between SOL and a token across the fleet",
	}
	cmd.AddCommand(newBuyCmd(c), newSellCmd(c))
	return cmd
}

func newBuyCmd(c *cli) *cobra.Command {
	var (
		req    walletfleet.BuyRequest
		amount string
		async  bool
	)
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Buy a token with the same SOL amount from every wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Mint == "" {
				return fmt.Errorf("--mint is required")
			}
			value, err := decimal.NewFromString(amount)
			if err != nil || !value.IsPositive() {
				return fmt.Errorf("invalid --amount %q", amount)
			}
			req.Amount = value
			return c.runBatch(cmd.Context(), "buy", req, async, func(ctx context.Context, client *walletfleet.Client) (walletfleet.Summary, error) {
				return client.BuyAll(ctx, req)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Mint, "mint", "", "token mint address")
	flags.StringVar(&amount, "amount", "", "SOL spent by each wallet")
	flags.IntVar(&req.SlippageBps, "slippage-bps", 0, "slippage tolerance in basis points")
	flags.Uint64Var(&req.FeeReserve, "fee-reserve", 0, "lamports kept back for fees")
	flags.BoolVar(&async, "async", false, "queue as a job instead of waiting")
	return cmd
}

func newSellCmd(c *cli) *cobra.Command {
	var (
		req     walletfleet.SellRequest
		percent string
		async   bool
	)
	cmd := &cobra.Command{
		Use:   "sell",
		Short: "Sell a share of every wallet's token balance for SOL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Mint == "" {
				return fmt.Errorf("--mint is required")
			}
			var err error
			if req.Percent, err = parsePercent("percent", percent); err != nil {
				return err
			}
			return c.runBatch(cmd.Context(), "sell", req, async, func(ctx context.Context, client *walletfleet.Client) (walletfleet.Summary, error) {
				return client.SellAll(ctx, req)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Mint, "mint", "", "token mint address")
	flags.StringVar(&percent, "percent", "100", "share of each token balance to sell")
	flags.IntVar(&req.SlippageBps, "slippage-bps", 0, "slippage tolerance in basis points")
	flags.BoolVar(&async, "async", false, "queue as a job instead of waiting")
	return cmd
}
