package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/assaka/daino-sub010/engine"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
)

func newExecutionsCmd(a *app) *cobra.Command {
	var (
		cronID, jobID, status, from, to string
		limit, offset                   int
	)
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List execution history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := execution.ListOpts{
				Status: execution.Status(status),
				Limit:  limit,
				Offset: offset,
			}
			var err error
			if cronID != "" {
				if opts.CronID, err = id.ParseCronID(cronID); err != nil {
					return err
				}
			}
			if jobID != "" {
				if opts.JobID, err = id.ParseJobID(jobID); err != nil {
					return err
				}
			}
			if opts.From, err = parseFlagTime("from", from); err != nil {
				return err
			}
			if opts.To, err = parseFlagTime("to", to); err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
				page, err := eng.ListExecutions(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), page)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&cronID, "cron-id", "", "only executions of this cron definition")
	f.StringVar(&jobID, "job-id", "", "only executions of this job")
	f.StringVar(&status, "status", "", "only executions with this status")
	f.StringVar(&from, "from", "", "RFC3339 lower bound")
	f.StringVar(&to, "to", "", "RFC3339 upper bound")
	f.IntVar(&limit, "limit", 50, "page size")
	f.IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func parseFlagTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be an RFC3339 timestamp: %w", name, err)
	}
	return t, nil
}
