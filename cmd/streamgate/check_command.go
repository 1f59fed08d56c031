package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"streamgate/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run readiness checks for directories, database and ffmpeg",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, false, func(app *application) error {
				results := preflight.RunAll(commandContextOrBackground(cmd), app.cfg, app.db, preflight.Options{Worker: true})
				rows := make([][]string, 0, len(results))
				for _, result := range results {
					state := "ok"
					switch {
					case !result.Passed && result.Optional:
						state = "warn"
					case !result.Passed:
						state = "FAIL"
					}
					rows = append(rows, []string{result.Name, state, result.Detail})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Check", "State", "Detail"}, rows, nil))
				if failed := preflight.Failed(results); len(failed) > 0 {
					return fmt.Errorf("%d required check(s) failed", len(failed))
				}
				return nil
			})
		},
	}
}
