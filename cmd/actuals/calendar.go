package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/backend"
	"github.com/warp/actuals-engine/generic"
)

func newWorkdaysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workdays START END",
		Short: "Count working days between two dates (inclusive)",
		Long: `Counts Monday-Friday days from START to END, both included. A reversed
range counts 0. With --holidays-from, holidays served by that actuals
instance are skipped too.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := parseRange(args)
			if err != nil {
				return err
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}

			var calendar generic.HolidayCalendar
			if cfg.Backend.BaseURL != "" {
				client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
				set, err := client.HolidaySet(cmd.Context(), period)
				if err != nil {
					return fmt.Errorf("fetching holidays: %w", err)
				}
				calendar = set
			}

			days := actuals.CountWorkingDays(period.Start, period.End, calendar)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d working days\n", period, days)
			return nil
		},
	}
	cmd.Flags().String("holidays-from", "", "Base URL of an actuals API to fetch holidays from")
	cmd.PreRunE = bindBackendFlag(a, "holidays-from")
	return cmd
}

func newLeaveHoursCmd(a *app) *cobra.Command {
	var leaveType string

	cmd := &cobra.Command{
		Use:   "leave-hours START END",
		Short: "Derive leave hours for a date range",
		Long: `Leave hours are working days times 8, or times 4 for a half-day leave.
Holidays are not applied.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := parseRange(args)
			if err != nil {
				return err
			}
			if !isLeaveType(leaveType) {
				return fmt.Errorf("unknown leave type %q (one of: %s)", leaveType, strings.Join(actuals.LeaveTypes(), ", "))
			}

			hours := actuals.ComputeLeaveHours(period.Start, period.End, leaveType)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s hours (%s man-days)\n",
				leaveType, period, hours.String(), generic.ManDays(hours).String())
			return nil
		},
	}
	cmd.Flags().StringVar(&leaveType, "type", actuals.LeaveAnnual, "Leave type")
	return cmd
}

func parseRange(args []string) (generic.Period, error) {
	start, err := generic.ParseDate(args[0])
	if err != nil {
		return generic.Period{}, err
	}
	end, err := generic.ParseDate(args[1])
	if err != nil {
		return generic.Period{}, err
	}
	return generic.Period{Start: start, End: end}, nil
}

func isLeaveType(s string) bool {
	for _, lt := range actuals.LeaveTypes() {
		if s == lt {
			return true
		}
	}
	return false
}
