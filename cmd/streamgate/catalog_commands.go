package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"streamgate/internal/catalog"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Import loose originals under the content root and queue them",
		Long: `Scans every content type directory under the content root. Loose files in
<root>/<type>/ are moved to <type>/<title>/original/ and queued; series
episodes under <root>/series/<title>/s<N>/ become "<title> S<N>E<k>" entries.
Files already in the catalog are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, false, func(app *application) error {
				if err := app.catalog.EnsureCategoryDirs(cmd.Context()); err != nil {
					return err
				}
				report, err := app.catalog.Ingest(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				if len(report.Added) == 0 {
					fmt.Fprintf(out, "Nothing new to ingest (%d already catalogued)\n", report.Skipped)
					return nil
				}
				rows := make([][]string, 0, len(report.Added))
				for _, added := range report.Added {
					rows = append(rows, []string{
						strconv.FormatInt(added.ContentFileID, 10),
						added.TypeName,
						added.Title,
						added.OriginalPath,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Job", "Type", "Title", "Original"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintf(out, "Queued %d file(s), skipped %d\n", len(report.Added), report.Skipped)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the ingest report as JSON")
	return cmd
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var typeName, title, description string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Add one original to the catalog and queue it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}

			return ctx.withApp(cmd, false, func(app *application) error {
				added, err := app.catalog.AddUpload(cmd.Context(), catalog.Upload{
					TypeName:    typeName,
					Title:       title,
					Description: description,
					SourcePath:  absPath,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %q as job #%d (%s)\n", added.Title, added.ContentFileID, added.OriginalPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&typeName, "type", "t", "", "Content type (for example movies)")
	cmd.Flags().StringVar(&title, "title", "", "Display title")
	cmd.Flags().StringVar(&description, "description", "", "Optional description")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
