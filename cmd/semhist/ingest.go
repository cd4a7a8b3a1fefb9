package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"semhist/internal/config"
	"semhist/internal/errors"
	"semhist/internal/git"
	"semhist/internal/ingest"
	"semhist/internal/lang"
	"semhist/internal/version"
)

var (
	ingestAll      bool
	ingestBranches string
	ingestTags     string
	ingestRemotes  string
	ingestGlob     string
	ingestSince    string
	ingestUntil    string
	ingestFormat   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [ref...]",
	Short: "Mine entity history from git commits",
	Long: `Walks the selected commits parent-before-child and records presence, changes
and reachability for each of them. Commits already fully recorded are skipped, so
rerunning is cheap and an interrupted run can simply be restarted.

Without refs, HEAD is ingested. --since, --until and --max-count select a window;
commits at the edge of a window get presence only, and their changes and
reachability are filled in by a later run that covers their parents.
--first-parent skips the side branches of merges, so merges and their
descendants get reachability only from a later run without it.

Examples:
  semhist ingest
  semhist ingest main release/2.x
  semhist ingest --all
  semhist ingest --branches='feature/*' --since=6months
  semhist ingest -n 100 --first-parent`,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.BoolVar(&ingestAll, "all", false, "Ingest every ref")
	f.StringVar(&ingestBranches, "branches", "", "Ingest local branches, optionally matching a glob")
	f.StringVar(&ingestTags, "tags", "", "Ingest tags, optionally matching a glob")
	f.StringVar(&ingestRemotes, "remotes", "", "Ingest remote-tracking branches, optionally matching a glob")
	f.StringVar(&ingestGlob, "glob", "", "Ingest refs matching a glob")
	f.Lookup("branches").NoOptDefVal = "*"
	f.Lookup("tags").NoOptDefVal = "*"
	f.Lookup("remotes").NoOptDefVal = "*"

	f.IntP("max-count", "n", 0, "Ingest at most this many commits")
	f.StringVar(&ingestSince, "since", "", "Only commits after a date (2024-01-31) or age (1year 6months)")
	f.StringVar(&ingestUntil, "until", "", "Only commits before a date or age")
	f.Bool("first-parent", false, "Follow only the first parent of merges")
	f.IntP("workers", "j", 0, "Parallel file workers per commit (default from config)")
	f.StringVar(&ingestFormat, "format", "human", "Output format (human, json, yaml)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	start := time.Now()
	format, err := parseOutputFormat(ingestFormat)
	if err != nil {
		return err
	}

	e, err := loadEnv(cmd, true,
		config.WithFlag("ingest.maxCount", cmd.Flag("max-count")),
		config.WithFlag("ingest.firstParentOnly", cmd.Flag("first-parent")),
		config.WithFlag("ingest.workers", cmd.Flag("workers")),
	)
	if err != nil {
		return err
	}
	defer e.close()

	sel, err := buildSelection(cmd, e.cfg, args, start)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(e)
	if err != nil {
		return err
	}
	adapter, err := git.NewGitAdapter(e.root, e.logger,
		git.WithBinary(e.cfg.Git.Binary),
		git.WithTimeout(e.cfg.GitTimeout()),
	)
	if err != nil {
		return err
	}
	db, err := e.openDB()
	if err != nil {
		return err
	}

	runner, err := ingest.NewRunner(db, adapter, registry, e.logger, ingest.Options{
		Workers:       e.cfg.Ingest.Workers,
		TreeCacheSize: e.cfg.Ingest.TreeCacheSize,
		ParseTimeout:  e.cfg.ParseTimeout(),
		Excludes:      e.cfg.Ingest.Excludes,
		ToolVersion:   version.Info(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := newContext()
	defer cancel()
	stats, err := runner.Run(ctx, sel)
	if err != nil {
		return err
	}

	if format != FormatHuman {
		return writeStructured(os.Stdout, stats, format)
	}
	fmt.Printf("Ingested %d of %d commits (%d already recorded, %d snapshots)\n",
		stats.CommitsIngested, stats.CommitsSeen, stats.CommitsSkipped, stats.Snapshots)
	fmt.Printf("  files analysed:   %d\n", stats.FilesAnalyzed)
	fmt.Printf("  new entities:     %d\n", stats.Entities)
	fmt.Printf("  presence rows:    %d\n", stats.PresenceRows)
	fmt.Printf("  change rows:      %d\n", stats.ChangeRows)
	fmt.Printf("  reachability:     %d pairs\n", stats.ReachPairs)
	if stats.Deferred > 0 {
		fmt.Printf("  deferred:         %d commits (stages left open for a later run)\n", stats.Deferred)
	}
	if stats.Warnings > 0 {
		fmt.Printf("  warnings:         %d (files recorded at file level only)\n", stats.Warnings)
	}
	fmt.Printf("\n(took %s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// buildSelection turns refs and walk flags into a git selection. Config
// supplies max-count and first-parent when the flags are not set.
func buildSelection(cmd *cobra.Command, cfg *config.Config, refs []string, now time.Time) (git.Selection, error) {
	sel := git.Selection{
		Refs:        refs,
		All:         ingestAll,
		Glob:        ingestGlob,
		MaxCount:    cfg.Ingest.MaxCount,
		FirstParent: cfg.Ingest.FirstParentOnly,
	}
	namespace := func(name, value string) git.RefPattern {
		if !cmd.Flags().Changed(name) {
			return git.RefPattern{}
		}
		p := git.RefPattern{Set: true}
		if value != "*" {
			p.Pattern = value
		}
		return p
	}
	sel.Branches = namespace("branches", ingestBranches)
	sel.Tags = namespace("tags", ingestTags)
	sel.Remotes = namespace("remotes", ingestRemotes)

	var err error
	if ingestSince != "" {
		if sel.Since, err = git.ParseTimeSpec(ingestSince, now); err != nil {
			return sel, errors.New(errors.InvalidConfig, "invalid --since", err)
		}
	}
	if ingestUntil != "" {
		if sel.Until, err = git.ParseTimeSpec(ingestUntil, now); err != nil {
			return sel, errors.New(errors.InvalidConfig, "invalid --until", err)
		}
	}
	return sel, nil
}

// buildRegistry loads the enabled grammars and applies languages.toml.
// Sections for languages that are not enabled are ignored.
func buildRegistry(e *cmdEnv) (*lang.Registry, error) {
	registry, err := lang.NewRegistry(e.cfg.Languages.Enabled...)
	if err != nil {
		return nil, err
	}
	path := e.cfg.OverridesPath(e.root)
	if path == "" {
		return registry, nil
	}
	overrides, err := lang.LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	enabled := make(map[string]bool)
	for _, tag := range registry.Tags() {
		enabled[tag] = true
	}
	for tag := range overrides {
		if !enabled[tag] {
			e.logger.Debug("Ignoring overrides for disabled language", "language", tag)
			delete(overrides, tag)
		}
	}
	if err := registry.Apply(overrides); err != nil {
		return nil, err
	}
	return registry, nil
}
