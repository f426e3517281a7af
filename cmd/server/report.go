package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/report"
)

var (
	reportOrg   string
	reportMonth string
	reportQueue bool

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Render the monthly report of an organization",
		Long: "Render the monthly report of an organization into its spreadsheet. " +
			"With --queue the report is enqueued for the dispatcher of a running server instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			month := calendar.Today().MonthOf().Previous()
			if reportMonth != "" {
				m, err := calendar.ParseMonth(reportMonth)
				if err != nil {
					return fmt.Errorf("--month: %w", err)
				}
				month = m
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runID, err := a.reports.Schedule(ctx, report.Request{
				Organization: reportOrg,
				Month:        month,
				RequestedBy:  "cli",
			}, reportQueue)
			if err != nil {
				return err
			}
			if reportQueue {
				fmt.Fprintf(cmd.OutOrStdout(), "report of %s for %s enqueued (run %s)\n", reportOrg, month.Label(), runID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "report of %s for %s rendered (run %s)\n", reportOrg, month.Label(), runID)
			}
			return nil
		},
	}
)

func init() {
	reportCmd.Flags().StringVar(&reportOrg, "org", "", "organization key")
	reportCmd.Flags().StringVar(&reportMonth, "month", "", "month as YYYY-MM (default: previous month)")
	reportCmd.Flags().BoolVar(&reportQueue, "queue", false, "enqueue instead of rendering inline")
	reportCmd.MarkFlagRequired("org") // nolint: errcheck
}
