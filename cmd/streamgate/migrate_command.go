package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and report the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the database applies pending migrations.
			return ctx.withApp(cmd, false, func(app *application) error {
				status, err := app.db.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !status.Current() {
					return fmt.Errorf("schema at version %d (latest %d, dirty=%v)", status.Version, status.Latest, status.Dirty)
				}
				fmt.Fprintf(out, "Schema at version %d (%s)\n", status.Version, app.db.Path())
				return nil
			})
		},
	}
}
