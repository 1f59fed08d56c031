package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"streamgate/internal/logging"
	"streamgate/internal/preflight"
	"streamgate/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noWorker bool
	var scan bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway (and the processing worker unless disabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, true, func(app *application) error {
				runCtx, stop := signal.NotifyContext(commandContextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
				defer stop()

				runWorker := app.cfg.Server.RunWorker && !noWorker
				results := preflight.RunAll(runCtx, app.cfg, app.db, preflight.Options{Worker: runWorker})
				for _, result := range results {
					if !result.Passed {
						logging.WarnWithContext(app.logger, "preflight check failed", "preflight_failed",
							logging.String("check", result.Name),
							logging.String("detail", result.Detail),
							logging.Bool("optional", result.Optional),
						)
					}
				}
				if failed := preflight.Failed(results); len(failed) > 0 {
					return fmt.Errorf("preflight: %s: %s", failed[0].Name, failed[0].Detail)
				}

				gw := app.newGateway()
				srv := server.New(server.Deps{
					Config:    app.cfg,
					DB:        app.db,
					Gateway:   gw,
					Passcodes: app.passcodes,
					Logger:    app.logger,
				})

				var wg sync.WaitGroup
				if runWorker {
					w, err := app.newWorker()
					if err != nil {
						return err
					}
					w.OnChange(gw.Forget)
					app.catalog.OnIngest(w.Notify)
					wg.Add(1)
					go func() {
						defer wg.Done()
						if err := w.Run(runCtx); err != nil {
							logging.ErrorWithContext(app.logger, "worker exited", "worker_stopped",
								logging.Error(err),
								logging.String(logging.FieldErrorHint, "another worker may hold the lock; see streamgate worker"),
							)
						}
					}()
					if scan {
						scanContentRoot(runCtx, app)
					}
				}

				err := srv.Run(runCtx)
				stop()
				wg.Wait()
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "Do not run the processing worker in this process")
	cmd.Flags().BoolVar(&scan, "scan", true, "Ingest loose originals under the content root at startup")
	return cmd
}

func scanContentRoot(ctx context.Context, app *application) {
	if err := app.catalog.EnsureCategoryDirs(ctx); err != nil {
		logging.WarnWithContext(app.logger, "content directories not prepared", "ingest_failed", logging.Error(err))
		return
	}
	report, err := app.catalog.Ingest(ctx)
	if err != nil {
		logging.WarnWithContext(app.logger, "startup ingest failed", "ingest_failed", logging.Error(err))
		return
	}
	app.logger.Info("startup ingest complete",
		logging.Int("added", len(report.Added)),
		logging.Int("skipped", report.Skipped),
	)
}
