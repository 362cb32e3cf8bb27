package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "foratask-backend/cmd/api"
	"foratask-backend/pkg/clock"

	"github.com/spf13/cobra"
)

var scanAt string

func scanCmd() *cobra.Command {
	jobs := []string{api.JobOverdue, api.JobReminders, api.JobPush, api.JobRecurrence, api.JobRetention}

	cmd := &cobra.Command{
		Use:       "scan [" + strings.Join(jobs, "|") + "]",
		Short:     "Run one background pass now and exit",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var clk clock.Clock = clock.Real{}
			if scanAt != "" {
				at, err := time.Parse(time.RFC3339, scanAt)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				clk = clock.NewManual(at)
			}

			ctx := context.Background()
			app, err := loadApp(ctx, false, clk)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.NewScheduler().RunJob(ctx, args[0]); err != nil {
				return fmt.Errorf("scan %s: %w", args[0], err)
			}
			fmt.Printf("Scan %s finished\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&scanAt, "at", "", "run as if the current time were this RFC3339 instant")

	return cmd
}
