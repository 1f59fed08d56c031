package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"streamgate/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, inspect and validate configuration",
	}
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("check config path: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set stream.secret and session.secret (or STREAMGATE_STREAM_SECRET and STREAMGATE_SESSION_SECRET) before starting the server.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func initTarget(raw string) (string, error) {
	if target := strings.TrimSpace(raw); target != "" {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return path, nil
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderPairs(configPairs(cfg)))
			return nil
		},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load and validate the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			source := resolved
			if !exists {
				source = resolved + " (absent, defaults used)"
			}
			fmt.Fprintf(out, "Config: %s\nConfiguration valid\n", source)
			return nil
		},
	}
}

func configPairs(cfg *config.Config) [][2]string {
	return [][2]string{
		{"Content root", cfg.Paths.ContentRoot},
		{"Data directory", cfg.Paths.DataDir},
		{"Database", cfg.DatabasePath()},
		{"Stream secret", redact(cfg.Stream.Secret)},
		{"Token TTL", cfg.TokenTTL().String()},
		{"Session secret", redact(cfg.Session.Secret)},
		{"Session cookie", cfg.Session.CookieName},
		{"Bind", cfg.Server.Bind},
		{"Allowed origins", strings.Join(cfg.Server.AllowedOrigins, ", ")},
		{"In-process worker", yesNo(cfg.Server.RunWorker)},
		{"Default quota", formatGB(cfg.Quota.DefaultGB) + " GB"},
		{"Max attempts", strconv.Itoa(cfg.Worker.MaxAttempts)},
		{"FFmpeg", cfg.Transcoder.FFmpegBinary},
		{"Ntfy topic", cfg.Notifications.NtfyTopic},
		{"Logging", cfg.Logging.Format + "/" + cfg.Logging.Level},
	}
}

func redact(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return fmt.Sprintf("set (%d chars)", len(secret))
}
