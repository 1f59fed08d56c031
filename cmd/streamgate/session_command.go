package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"streamgate/internal/server"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Session token utilities for local testing",
	}

	var ttl time.Duration
	issueCmd := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "Sign a session token accepted by this gateway",
		Long: `Signs a session JWT with session.secret. Production sessions come from the
login service; this is for exercising the gateway with curl.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			token, err := server.IssueSession(cfg.Session.Secret, userID, ttl)
			if err != nil {
				return fmt.Errorf("sign session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issueCmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	sessionCmd.AddCommand(issueCmd)
	return sessionCmd
}
