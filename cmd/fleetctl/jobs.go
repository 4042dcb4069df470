package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"WalletFleet/sdk/go/walletfleet"
)

func newJobsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect queued batch jobs",
	}
	cmd.AddCommand(newJobGetCmd(c), newJobWaitCmd(c), newJobListCmd(c), newJobStatsCmd(c))
	return cmd
}

func newJobGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout())
			defer cancel()
			job, err := client.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			return renderJob(job)
		},
	}
}

func newJobWaitCmd(c *cli) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Poll a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout())
			defer cancel()
			job, err := client.WaitForJob(ctx, args[0], interval)
			if err != nil {
				return err
			}
			return renderJob(job)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "polling interval")
	return cmd
}

func bindJobQuery(cmd *cobra.Command, q *walletfleet.JobQuery) {
	flags := cmd.Flags()
	flags.IntVar(&q.Limit, "limit", 0, "maximum number of jobs")
	flags.IntVar(&q.Offset, "offset", 0, "number of jobs to skip")
	flags.StringSliceVar(&q.Statuses, "status", nil, "pending, running, succeeded or failed")
	flags.StringSliceVar(&q.Kinds, "kind", nil, "fund, sweep, buy or sell")
	flags.BoolVar(&q.Ascending, "asc", false, "oldest first")
}

func newJobListCmd(c *cli) *cobra.Command {
	var (
		query walletfleet.JobQuery
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			if since > 0 {
				query.Since = time.Now().Add(-since)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout())
			defer cancel()
			jobs, err := client.ListJobs(ctx, query)
			if err != nil {
				return err
			}
			return renderJobs(jobs)
		},
	}
	bindJobQuery(cmd, &query)
	cmd.Flags().DurationVar(&since, "since", 0, "only jobs updated within this window")
	return cmd
}

func newJobStatsCmd(c *cli) *cobra.Command {
	var query walletfleet.JobQuery
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count jobs per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout())
			defer cancel()
			stats, err := client.JobStats(ctx, query)
			if err != nil {
				return err
			}
			return renderStats(stats)
		},
	}
	bindJobQuery(cmd, &query)
	return cmd
}
