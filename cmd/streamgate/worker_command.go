package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued originals into HLS, preview and poster renditions",
		Long: `Runs the processing worker. With --once the queue is drained and the
command exits with a summary; otherwise the worker polls until interrupted.
Only one worker may run at a time; a second one exits with an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, true, func(app *application) error {
				w, err := app.newWorker()
				if err != nil {
					return err
				}
				runCtx, stop := signal.NotifyContext(commandContextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
				defer stop()

				if !once {
					return w.Run(runCtx)
				}
				summary, err := w.Drain(runCtx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if summary.Processed() == 0 {
					fmt.Fprintln(out, "No jobs eligible")
					return nil
				}
				fmt.Fprintf(out, "Processed %d job(s): %d ready, %d failed, %d dead, %d skipped\n",
					summary.Processed(), summary.Ready, summary.Failed, summary.Dead, summary.Skipped)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Drain the queue and exit")
	return cmd
}
