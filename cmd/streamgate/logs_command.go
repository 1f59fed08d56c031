package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"streamgate/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var level string
	var component string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent entries from the streamgate log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			filter := logs.Filter{Component: component}
			if err := filter.MinLevel.UnmarshalText([]byte(level)); err != nil {
				return fmt.Errorf("invalid --level %q (use debug, info, warn or error)", level)
			}

			out := cmd.OutOrStdout()
			recent, offset, err := logs.Tail(cfg.LogPath(), lines, filter)
			if err != nil {
				return err
			}
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(recent) == 0 {
					fmt.Fprintf(out, "No matching entries in %s\n", cfg.LogPath())
				}
				return nil
			}

			runCtx, stop := signal.NotifyContext(commandContextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return logs.Follow(runCtx, cfg.LogPath(), offset, 500*time.Millisecond, filter, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries until interrupted")
	cmd.Flags().StringVar(&level, "level", slog.LevelInfo.String(), "Minimum level for JSON entries")
	cmd.Flags().StringVar(&component, "component", "", "Only show entries from this component (worker, server, ...)")
	return cmd
}
