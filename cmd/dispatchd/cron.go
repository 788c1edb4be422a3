package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/engine"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

func newCronCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage cron definitions",
	}
	cmd.AddCommand(
		newCronCreateCmd(a),
		newCronListCmd(a),
		newCronDeleteCmd(a),
	)

	actions := []struct {
		use, short string
		fn         func(*engine.Engine, context.Context, id.CronID) (*cron.Entry, error)
	}{
		{"pause", "Keep a definition evaluated but skip its runs", (*engine.Engine).PauseCron},
		{"resume", "Resume a paused definition", (*engine.Engine).ResumeCron},
		{"activate", "Activate a definition, scheduling from now", (*engine.Engine).ActivateCron},
		{"deactivate", "Stop evaluating a definition", (*engine.Engine).DeactivateCron},
	}
	for _, act := range actions {
		cmd.AddCommand(&cobra.Command{
			Use:   act.use + " CRON_ID",
			Short: act.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cronID, err := id.ParseCronID(args[0])
				if err != nil {
					return err
				}
				return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
					e, err := act.fn(eng, ctx, cronID)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), e)
				})
			},
		})
	}
	return cmd
}

func newCronCreateCmd(a *app) *cobra.Command {
	var (
		config   string
		storeID  string
		priority string
		retries  int
		paused   bool
		inactive bool
	)
	cmd := &cobra.Command{
		Use:     "create NAME EXPRESSION JOB_TYPE",
		Short:   "Create a cron definition",
		Example: `  dispatchd cron create nightly-cleanup "0 3 * * *" cache:cleanup --config '{"older_than":"24h"}'`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := engine.CronSpec{
				Name:       args[0],
				Expression: args[1],
				JobType:    args[2],
				StoreID:    storeID,
				Priority:   job.Priority(priority),
				MaxRetries: retries,
				IsPaused:   paused,
			}
			if config != "" {
				if !json.Valid([]byte(config)) {
					return fmt.Errorf("--config is not valid JSON")
				}
				spec.Configuration = json.RawMessage(config)
			}
			if inactive {
				active := false
				spec.IsActive = &active
			}
			return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
				e, err := eng.CreateCron(ctx, spec)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), e)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&config, "config", "", "JSON payload every generated job carries")
	f.StringVar(&storeID, "store-id", "", "tenant the generated jobs belong to")
	f.StringVar(&priority, "priority", "", "priority of generated jobs")
	f.IntVar(&retries, "max-retries", 0, "retry limit of generated jobs")
	f.BoolVar(&paused, "paused", false, "create the definition paused")
	f.BoolVar(&inactive, "inactive", false, "create the definition inactive")
	return cmd
}

func newCronListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cron definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
				entries, err := eng.ListCrons(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, e := range entries {
					next := "-"
					if e.NextRunAt != nil {
						next = e.NextRunAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%q\t%s\t%s\t%s\n", e.ID, e.Name, e.Expression, e.JobType, e.State(), next)
				}
				return nil
			})
		},
	}
}

func newCronDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete CRON_ID",
		Short: "Delete a cron definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cronID, err := id.ParseCronID(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
				return eng.DeleteCron(ctx, cronID)
			})
		},
	}
}
