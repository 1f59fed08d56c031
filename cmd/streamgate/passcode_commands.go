package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newPasscodeCommand(ctx *commandContext) *cobra.Command {
	passcodeCmd := &cobra.Command{
		Use:   "passcode",
		Short: "Issue, redeem and list quota passcodes",
	}

	passcodeCmd.AddCommand(newPasscodeIssueCommand(ctx))
	passcodeCmd.AddCommand(newPasscodeRedeemCommand(ctx))
	passcodeCmd.AddCommand(newPasscodeListCommand(ctx))

	return passcodeCmd
}

func newPasscodeIssueCommand(ctx *commandContext) *cobra.Command {
	var quotaGB float64
	var expiresIn time.Duration
	var adminID int64
	var count int

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Generate single-use passcodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			return ctx.withApp(cmd, false, func(app *application) error {
				out := cmd.OutOrStdout()
				for range count {
					issued, err := app.passcodes.Issue(cmd.Context(), adminID, quotaGB, expiresIn)
					if err != nil {
						return err
					}
					expiry := "never"
					if issued.ExpiresAt != nil {
						expiry = issued.ExpiresAt.Local().Format(time.DateTime)
					}
					fmt.Fprintf(out, "%s  %s GB  expires %s\n", issued.Code, formatGB(issued.QuotaGB), expiry)
				}
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&quotaGB, "gb", 0, "Entitlement granted on redemption, in GB")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Validity window (0 means no expiry)")
	cmd.Flags().Int64Var(&adminID, "admin", 0, "Issuing administrator's user id")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of codes to generate")
	_ = cmd.MarkFlagRequired("gb")
	return cmd
}

func newPasscodeRedeemCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <user-id> <code>",
		Short: "Redeem a passcode on behalf of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, false, func(app *application) error {
				redeemed, err := app.passcodes.Redeem(cmd.Context(), userID, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Redeemed %s: +%s GB, user %d now has %s GB remaining of %s GB\n",
					redeemed.Code, formatGB(redeemed.QuotaGB), userID,
					formatGB(redeemed.Usage.RemainingGB), formatGB(redeemed.Usage.TotalGB))
				return nil
			})
		},
	}
}

func newPasscodeListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest passcodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, false, func(app *application) error {
				codes, err := app.passcodes.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(codes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No passcodes issued")
					return nil
				}
				rows := make([][]string, 0, len(codes))
				for _, code := range codes {
					usedBy := "-"
					if code.Used {
						usedBy = strconv.FormatInt(code.UsedBy, 10)
					}
					expires := "never"
					if code.ExpiresAt != nil {
						expires = code.ExpiresAt.Local().Format(time.DateTime)
					}
					rows = append(rows, []string{code.Code, formatGB(code.QuotaGB), yesNo(code.Used), usedBy, expires})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Code", "GB", "Used", "Used By", "Expires"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of codes to show")
	return cmd
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func formatGB(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
