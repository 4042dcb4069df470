package main

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"WalletFleet/sdk/go/walletfleet"
)

func newWalletsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "Create, inspect, fund and sweep fleet wallets",
	}
	cmd.AddCommand(
		newCreateWalletsCmd(c),
		newInfoCmd(c),
		newFundCmd(c),
		newSweepCmd(c),
	)
	return cmd
}

func newCreateWalletsCmd(c *cli) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate new wallets in the key store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout())
			defer cancel()
			wallets, err := client.CreateWallets(ctx, count)
			if err != nil {
				return err
			}
			return renderWallets(wallets)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of wallets to create")
	return cmd
}

func newInfoCmd(c *cli) *cobra.Command {
	var commitment string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the ledger state of every stored wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout())
			defer cancel()
			infos, err := client.AccountInfo(ctx, commitment)
			if err != nil {
				return err
			}
			return renderAccounts(infos)
		},
	}
	cmd.Flags().StringVar(&commitment, "commitment", "", "processed, confirmed or finalized")
	return cmd
}

func newFundCmd(c *cli) *cobra.Command {
	var (
		req        walletfleet.FundRequest
		minPercent string
		maxPercent string
		async      bool
	)
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Distribute lamports from the funder to the fleet",
		Long: `Distribute lamports from the configured funder account.

Modes: flat sends --amount to each wallet, bounded draws shares within
[--min, --max], random draws percentages of --total within
[--min-percent, --max-percent], arithmetic uses increasing percentages.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if req.MinPercent, err = parsePercent("min-percent", minPercent); err != nil {
				return err
			}
			if req.MaxPercent, err = parsePercent("max-percent", maxPercent); err != nil {
				return err
			}
			return c.runBatch(cmd.Context(), "fund", req, async, func(ctx context.Context, client *walletfleet.Client) (walletfleet.Summary, error) {
				return client.Fund(ctx, req)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Mode, "mode", "flat", "flat, bounded, random or arithmetic")
	flags.Uint64Var(&req.Amount, "amount", 0, "lamports per wallet for flat mode")
	flags.Uint64Var(&req.Total, "total", 0, "lamports to distribute; 0 spends the funder's balance")
	flags.Uint64Var(&req.Min, "min", 0, "minimum lamports per wallet for bounded mode")
	flags.Uint64Var(&req.Max, "max", 0, "maximum lamports per wallet for bounded mode")
	flags.StringVar(&minPercent, "min-percent", "", "minimum share for random mode")
	flags.StringVar(&maxPercent, "max-percent", "", "maximum share for random mode")
	flags.StringSliceVar(&req.Recipients, "recipient", nil, "recipient address, repeatable; defaults to every wallet")
	flags.Uint64Var(&req.FeeReserve, "fee-reserve", 0, "lamports kept back for fees")
	flags.BoolVar(&async, "async", false, "queue as a job instead of waiting")
	return cmd
}

func newSweepCmd(c *cli) *cobra.Command {
	var (
		req     walletfleet.SweepRequest
		percent string
		async   bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Move a share of every wallet's balance to one address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Destination == "" {
				return fmt.Errorf("--destination is required")
			}
			var err error
			if req.Percent, err = parsePercent("percent", percent); err != nil {
				return err
			}
			return c.runBatch(cmd.Context(), "sweep", req, async, func(ctx context.Context, client *walletfleet.Client) (walletfleet.Summary, error) {
				return client.Sweep(ctx, req)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Destination, "destination", "", "address receiving the funds")
	flags.StringVar(&percent, "percent", "100", "share of each balance to move")
	flags.Uint64Var(&req.FeeReserve, "fee-reserve", 0, "lamports kept back for fees")
	flags.BoolVar(&async, "async", false, "queue as a job instead of waiting")
	return cmd
}

// runBatch 同步执行批量操作，或在 async 时提交为作业。执行前需要确认，--yes 跳过确认。
func (c *cli) runBatch(ctx context.Context, kind string, params any, async bool,
	call func(context.Context, *walletfleet.Client) (walletfleet.Summary, error)) error {
	ok, err := c.confirm(fmt.Sprintf("Run %s across the fleet on %s?", kind, c.v.GetString("server")))
	if err != nil {
		return err
	}
	if !ok {
		pterm.Info.Println("Cancelled")
		return nil
	}
	client, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	if async {
		job, err := client.SubmitJob(ctx, walletfleet.JobSubmission{Kind: kind, Params: params})
		if err != nil {
			return err
		}
		return renderJob(job)
	}
	summary, err := call(ctx, client)
	if err != nil {
		return err
	}
	return renderSummary(summary)
}

func parsePercent(name, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("--%s must be within [0, 100]", name)
	}
	return value, nil
}
