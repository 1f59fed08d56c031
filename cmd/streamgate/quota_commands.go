package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"streamgate/internal/quota"
)

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and adjust user entitlements",
	}

	quotaCmd.AddCommand(newQuotaShowCommand(ctx))
	quotaCmd.AddCommand(newQuotaGrantCommand(ctx))

	return quotaCmd
}

func newQuotaShowCommand(ctx *commandContext) *cobra.Command {
	var logs int

	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's quota and recent transfers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, false, func(app *application) error {
				usage, err := app.ledger.CheckRemaining(cmd.Context(), userID)
				if errors.Is(err, quota.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "User %d has no quota row yet (default %s GB on first visit)\n", userID, formatGB(app.cfg.Quota.DefaultGB))
					return nil
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderPairs([][2]string{
					{"User", strconv.FormatInt(userID, 10)},
					{"Total GB", formatGB(usage.TotalGB)},
					{"Used GB", strconv.FormatFloat(usage.UsedGB, 'f', 3, 64)},
					{"Remaining GB", strconv.FormatFloat(usage.RemainingGB, 'f', 3, 64)},
					{"Used %", strconv.FormatFloat(usage.UsedPercent(), 'f', 1, 64)},
					{"Updated", usage.LastUpdated.Local().Format(time.DateTime)},
				}))

				if logs <= 0 {
					return nil
				}
				entries, err := app.ledger.RecentLogs(cmd.Context(), userID, logs)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						entry.CreatedAt.Local().Format(time.DateTime),
						string(entry.Action),
						strconv.FormatInt(entry.ContentFileID, 10),
						strconv.FormatFloat(entry.DataUsedMB, 'f', 3, 64),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"When", "Action", "File", "MB"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&logs, "logs", 10, "Number of recent transfers to show (0 to hide)")
	return cmd
}

func newQuotaGrantCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id> <gb>",
		Short: "Raise a user's entitlement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			gb, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			return ctx.withApp(cmd, false, func(app *application) error {
				if _, err := app.ledger.Ensure(cmd.Context(), userID, app.cfg.Quota.DefaultGB); err != nil {
					return err
				}
				if err := app.ledger.Credit(cmd.Context(), userID, gb); err != nil {
					return err
				}
				usage, err := app.ledger.CheckRemaining(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d now has %s GB total, %s GB remaining\n",
					userID, formatGB(usage.TotalGB), strconv.FormatFloat(usage.RemainingGB, 'f', 3, 64))
				return nil
			})
		},
	}
}
