package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"semhist/internal/storage"
	"semhist/internal/version"
)

var (
	statusFormat string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how much history has been mined",
	Long:  "Displays row counts, readiness flags of the recorded commits, stored refs and the last ingestion run",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "human", "Output format (human, json, yaml)")
	rootCmd.AddCommand(statusCmd)
}

// StatusResponseCLI contains the status for CLI output
type StatusResponseCLI struct {
	Version string                 `json:"version" yaml:"version"`
	Root    string                 `json:"root" yaml:"root"`
	DBPath  string                 `json:"dbPath" yaml:"dbPath"`
	Summary *storage.StatusSummary `json:"summary" yaml:"summary"`
	Refs    []storage.Ref          `json:"refs,omitempty" yaml:"refs,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(statusFormat)
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
	summary, err := db.Status(ctx)
	if err != nil {
		return err
	}
	refs, err := db.Refs(ctx)
	if err != nil {
		return err
	}

	resp := &StatusResponseCLI{
		Version: version.Version,
		Root:    e.root,
		DBPath:  db.Path(),
		Summary: summary,
		Refs:    refs,
	}
	if format != FormatHuman {
		return writeStructured(os.Stdout, resp, format)
	}
	fmt.Print(formatStatusHuman(resp, time.Now()))
	return nil
}

func formatStatusHuman(resp *StatusResponseCLI, now time.Time) string {
	var b strings.Builder
	s := resp.Summary

	b.WriteString(fmt.Sprintf("semhist v%s\n", resp.Version))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	b.WriteString(fmt.Sprintf("Repository: %s\n", resp.Root))
	b.WriteString(fmt.Sprintf("Database:   %s\n\n", resp.DBPath))

	ratio := func(n int) string {
		if s.Commits == 0 {
			return "-"
		}
		return fmt.Sprintf("%d%%", n*100/s.Commits)
	}
	b.WriteString(fmt.Sprintf("Commits:         %s\n", humanize.Comma(int64(s.Commits))))
	b.WriteString(fmt.Sprintf("  presence:      %s (%s)\n", humanize.Comma(int64(s.WithPresence)), ratio(s.WithPresence)))
	b.WriteString(fmt.Sprintf("  changes:       %s (%s)\n", humanize.Comma(int64(s.WithChanges)), ratio(s.WithChanges)))
	b.WriteString(fmt.Sprintf("  reachability:  %s (%s)\n", humanize.Comma(int64(s.WithReachability)), ratio(s.WithReachability)))
	b.WriteString(fmt.Sprintf("Entities:        %s in %s files\n", humanize.Comma(int64(s.Entities)), humanize.Comma(int64(s.Files))))
	b.WriteString(fmt.Sprintf("Presence rows:   %s\n", humanize.Comma(int64(s.PresenceRows))))
	b.WriteString(fmt.Sprintf("Change rows:     %s\n", humanize.Comma(int64(s.ChangeRows))))
	b.WriteString(fmt.Sprintf("Ancestor pairs:  %s\n", humanize.Comma(int64(s.ReachPairs))))
	if s.Deps > 0 {
		b.WriteString(fmt.Sprintf("Dependencies:    %s\n", humanize.Comma(int64(s.Deps))))
	}

	if len(resp.Refs) > 0 {
		b.WriteString("\nRefs:\n")
		for _, r := range resp.Refs {
			b.WriteString(fmt.Sprintf("  %-30s %s\n", r.Name, shortSHA(r.SHA)))
		}
	}

	if run := s.LastRun; run != nil {
		b.WriteString("\nLast run:\n")
		b.WriteString(fmt.Sprintf("  %s, %s (%s)\n", run.Status, humanize.RelTime(run.StartedAt, now, "ago", "from now"), run.ID))
		b.WriteString(fmt.Sprintf("  %d of %d commits ingested, %d warnings\n", run.CommitsIngested, run.CommitsSeen, run.Warnings))
		if run.FinishedAt != nil {
			b.WriteString(fmt.Sprintf("  took %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)))
		}
		if run.Error != "" {
			b.WriteString(fmt.Sprintf("  error: %s\n", run.Error))
		}
	}
	return b.String()
}
