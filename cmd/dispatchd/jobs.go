package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/assaka/daino-sub010/engine"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		priority   string
		storeID    string
		maxRetries int
		delay      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit TYPE [PAYLOAD]",
		Short: "Submit a job; PAYLOAD is a JSON document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			if len(args) == 2 {
				payload = []byte(args[1])
			}
			var opts []job.Option
			if priority != "" {
				opts = append(opts, job.WithPriority(job.Priority(priority)))
			}
			if storeID != "" {
				opts = append(opts, job.WithStoreID(storeID))
			}
			if cmd.Flags().Changed("max-retries") {
				opts = append(opts, job.WithMaxRetries(maxRetries))
			}
			if delay > 0 {
				opts = append(opts, job.WithRunAt(time.Now().Add(delay)))
			}
			return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
				j, err := eng.Submit(ctx, args[0], payload, opts...)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), j.Report())
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&priority, "priority", "", "urgent, high, normal or low")
	f.StringVar(&storeID, "store-id", "", "tenant the job belongs to")
	f.IntVar(&maxRetries, "max-retries", 0, "retry limit (default: the type's registered limit)")
	f.DurationVar(&delay, "delay", 0, "defer the first attempt")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show a job's status, result and error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
				report, err := eng.GetStatus(ctx, jobID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
				res, err := eng.Cancel(ctx, jobID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res)
				if res != job.CancelCancelled {
					return fmt.Errorf("job %s was not cancelled: %s", jobID, res)
				}
				return nil
			})
		},
	}
}

func newRetryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry JOB_ID",
		Short: "Reset a failed or cancelled job to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
				j, err := eng.Retry(ctx, jobID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), j.Report())
			})
		},
	}
}
