// Package ingest drives the history miner over a commit walk: for every
// commit in parent-before-child order it parses the changed files, matches
// their entities to stored identities, attributes the diff and writes the
// commit's facts in one transaction.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"semhist/internal/diff"
	"semhist/internal/errors"
	"semhist/internal/forest"
	"semhist/internal/git"
	"semhist/internal/identity"
	"semhist/internal/lang"
	"semhist/internal/model"
	"semhist/internal/storage"
)

// Source supplies commits, patches and blobs.
type Source interface {
	ListCommits(ctx context.Context, sel git.Selection) ([]git.Commit, error)
	ResolveRefs(ctx context.Context, sel git.Selection) (map[string]string, error)
	DiffCommit(ctx context.Context, parent, commit string) ([]diff.FileDiff, error)
	ReadBlob(ctx context.Context, blob string) ([]byte, error)
}

// Options tune a Runner.
type Options struct {
	Workers       int
	TreeCacheSize int
	ParseTimeout  time.Duration
	Excludes      []string
	ToolVersion   string
}

// Stats summarises one run.
type Stats struct {
	CommitsSeen     int `json:"commitsSeen" yaml:"commitsSeen"`
	CommitsIngested int `json:"commitsIngested" yaml:"commitsIngested"`
	CommitsSkipped  int `json:"commitsSkipped" yaml:"commitsSkipped"`
	Snapshots       int `json:"snapshots" yaml:"snapshots"`
	FilesAnalyzed   int `json:"filesAnalyzed" yaml:"filesAnalyzed"`
	Warnings        int `json:"warnings" yaml:"warnings"`
	Entities        int `json:"entities" yaml:"entities"`
	PresenceRows    int `json:"presenceRows" yaml:"presenceRows"`
	ChangeRows      int `json:"changeRows" yaml:"changeRows"`
	ReachPairs      int `json:"reachabilityPairs" yaml:"reachabilityPairs"`
	Deferred        int `json:"deferred" yaml:"deferred"`
	Refs            int `json:"refs" yaml:"refs"`
}

// Runner ingests commit walks into a history database.
type Runner struct {
	db       *storage.DB
	src      Source
	registry *lang.Registry
	builder  *forest.Builder
	cache    *forest.TreeCache
	excludes *ignore.GitIgnore
	workers  int
	version  string
	logger   *slog.Logger
}

// NewRunner creates a runner writing to db.
func NewRunner(db *storage.DB, src Source, registry *lang.Registry, logger *slog.Logger, opts Options) (*Runner, error) {
	cache, err := forest.NewTreeCache(opts.TreeCacheSize)
	if err != nil {
		return nil, errors.New(errors.InternalError, "failed to create tree cache", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	var builderOpts []forest.BuilderOption
	if opts.ParseTimeout > 0 {
		builderOpts = append(builderOpts, forest.WithParseTimeout(opts.ParseTimeout))
	}
	return &Runner{
		db:       db,
		src:      src,
		registry: registry,
		builder:  forest.NewBuilder(registry, logger, builderOpts...),
		cache:    cache,
		excludes: ignore.CompileIgnoreLines(opts.Excludes...),
		workers:  workers,
		version:  opts.ToolVersion,
		logger:   logger,
	}, nil
}

// tracked reports whether a path is analysed at all.
func (r *Runner) tracked(path string) (string, bool) {
	if path == "" || r.excludes.MatchesPath(path) {
		return "", false
	}
	tag := r.registry.ForPath(path)
	return tag, tag != ""
}

// Run ingests every commit of the selection. Commits whose facts are all
// stored are skipped, so rerunning a walk is cheap. The run is recorded in
// the runs table whether or not it succeeds.
func (r *Runner) Run(ctx context.Context, sel git.Selection) (stats *Stats, err error) {
	stats = &Stats{}
	run, err := r.db.StartRun(ctx, r.version)
	if err != nil {
		return nil, errors.New(errors.StorageError, "failed to record run", err)
	}
	defer func() {
		run.CommitsSeen = stats.CommitsSeen
		run.CommitsIngested = stats.CommitsIngested
		run.Warnings = stats.Warnings
		if ferr := r.db.FinishRun(context.WithoutCancel(ctx), run, err); ferr != nil {
			r.logger.Error("Failed to finish run", "run", run.ID, "error", ferr.Error())
		}
	}()

	commits, err := r.src.ListCommits(ctx, sel)
	if err != nil {
		return stats, err
	}
	stats.CommitsSeen = len(commits)
	r.logger.Info("Starting ingestion",
		"run", run.ID,
		"commits", len(commits),
		"windowed", sel.Windowed(),
	)

	records := make([]storage.CommitRecord, len(commits))
	for i, c := range commits {
		records[i] = storage.CommitRecord{
			Commit: model.Commit{
				SHA:        c.SHA,
				IsMerge:    c.IsMerge(),
				AuthorDate: c.AuthorDate,
				CommitDate: c.CommitDate,
			},
			Parents: c.Parents,
		}
	}
	ids, err := r.db.RegisterCommits(ctx, records)
	if err != nil {
		return stats, err
	}
	order := make([]int64, len(commits))
	for i, c := range commits {
		order[i] = ids[c.SHA]
	}
	if _, err := r.db.AssignGenerations(ctx, order); err != nil {
		return stats, err
	}

	state, err := r.loadState(ctx)
	if err != nil {
		return stats, err
	}

	for i := range commits {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		c := &commits[i]
		if err := r.ingestCommit(ctx, state, ids[c.SHA], c, sel.Windowed(), stats); err != nil {
			return stats, err
		}
	}

	if err := r.updateRefs(ctx, sel, stats); err != nil {
		return stats, err
	}

	r.logger.Info("Ingestion finished",
		"run", run.ID,
		"ingested", stats.CommitsIngested,
		"skipped", stats.CommitsSkipped,
		"warnings", stats.Warnings,
		"entities", stats.Entities,
	)
	return stats, nil
}

// runState is what the commit loop keeps between commits.
type runState struct {
	table   *identity.Table
	matcher *identity.Matcher
	commits map[string]*model.Commit
	// written holds commits whose presence rows were stored by this run,
	// including degraded ones whose presence flag stays unset.
	written map[string]bool
}

func (r *Runner) loadState(ctx context.Context) (*runState, error) {
	entities, err := r.db.LoadEntities(ctx)
	if err != nil {
		return nil, errors.New(errors.StorageError, "failed to load entities", err)
	}
	table := identity.NewTable()
	if err := table.Load(entities); err != nil {
		return nil, err
	}

	stored, err := r.db.Commits(ctx)
	if err != nil {
		return nil, errors.New(errors.StorageError, "failed to load commits", err)
	}
	commits := make(map[string]*model.Commit, len(stored))
	for i := range stored {
		commits[stored[i].SHA] = &stored[i]
	}
	return &runState{
		table:   table,
		matcher: identity.NewMatcher(table),
		commits: commits,
		written: make(map[string]bool),
	}, nil
}

func (r *Runner) updateRefs(ctx context.Context, sel git.Selection, stats *Stats) error {
	resolved, err := r.src.ResolveRefs(ctx, sel)
	if err != nil {
		return err
	}
	shas := make([]string, 0, len(resolved))
	for _, sha := range resolved {
		shas = append(shas, sha)
	}
	ids, err := r.db.CommitIDs(ctx, shas)
	if err != nil {
		return errors.New(errors.StorageError, "failed to resolve ref commits", err)
	}
	refs := make(map[string]int64, len(resolved))
	for name, sha := range resolved {
		if id, ok := ids[sha]; ok {
			refs[name] = id
		}
	}
	if len(refs) == 0 {
		return nil
	}
	stats.Refs = len(refs)
	return r.db.UpdateRefs(ctx, refs)
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

// warn logs a per-file failure that does not stop the run.
func (r *Runner) warn(stats *Stats, commit, path string, err error) {
	stats.Warnings++
	r.logger.Warn("File degraded to file-level facts",
		"commit", shortSHA(commit),
		"path", path,
		"code", string(errors.CodeOf(err)),
		"error", strings.TrimSpace(err.Error()),
	)
}

func violation(commit string, format string, args ...any) error {
	return errors.New(errors.GraphInvariantViolation,
		fmt.Sprintf("commit %s: ", shortSHA(commit))+fmt.Sprintf(format, args...), nil)
}
