package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"semhist/internal/export"
)

var (
	exportOutput   string
	exportFormat   string
	exportCompress bool
	exportPresence bool
	exportDeps     bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the mined history",
	Long: `Writes commits, refs, entities and changes as one JSON or YAML document.
Presence rows and dependencies are large and only included on request.

Examples:
  semhist export -o history.json
  semhist export --format yaml --presence
  semhist export --compress -o history.json.zst`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format (json, yaml)")
	exportCmd.Flags().BoolVar(&exportCompress, "compress", false, "Compress the output with zstd")
	exportCmd.Flags().BoolVar(&exportPresence, "presence", false, "Include presence rows")
	exportCmd.Flags().BoolVar(&exportDeps, "deps", false, "Include imported dependencies")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	start := time.Now()
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	e, err := loadEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()
	db, err := e.openDB()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	opts := export.Options{
		Repo:            filepath.Base(e.root),
		Format:          format,
		Compress:        exportCompress,
		IncludePresence: exportPresence,
		IncludeDeps:     exportDeps,
	}
	snap, err := export.NewExporter(db, e.logger).Collect(ctx, opts)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		return export.Write(os.Stdout, snap, opts)
	}
	if err := export.WriteFile(exportOutput, snap, opts); err != nil {
		return err
	}
	e.logger.Info("Export written",
		"path", exportOutput,
		"commits", len(snap.Commits),
		"entities", len(snap.Entities),
		"duration", time.Since(start).String(),
	)
	fmt.Fprintf(os.Stderr, "Exported %d commits and %d entities to %s\n", len(snap.Commits), len(snap.Entities), exportOutput)
	return nil
}
