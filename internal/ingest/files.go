package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"semhist/internal/attribution"
	"semhist/internal/diff"
	"semhist/internal/errors"
	"semhist/internal/forest"
	"semhist/internal/identity"
	"semhist/internal/model"
	"semhist/internal/storage"
)

// fileJob is one file transition of a commit.
type fileJob struct {
	diff     diff.FileDiff
	path     string
	language string

	old *forest.Forest // nil when the file is created
	new *forest.Forest // nil when the file is deleted

	// fileOnly is set when the transition can only be charged to the file
	// entity: unusable hunks or an unparsable child version.
	fileOnly bool

	// partialPresence and partialChanges mark the stages a degraded file
	// could not complete.
	partialPresence bool
	partialChanges  bool
}

// release hands parse trees to the cache and drops the forests.
func (j *fileJob) release(cache *forest.TreeCache) {
	if j.old != nil {
		if tree := j.old.TakeTree(); tree != nil {
			cache.Put(forest.TreeKey{Path: j.path, Blob: j.diff.OldBlob}, tree)
		}
		j.old = nil
	}
	if j.new != nil {
		if tree := j.new.TakeTree(); tree != nil {
			cache.Put(forest.TreeKey{Path: j.path, Blob: j.diff.NewBlob}, tree)
		}
		j.new = nil
	}
}

// analyze builds the forests of every job with a bounded worker pool.
// Per-file failures degrade the job; anything else aborts the commit.
func (r *Runner) analyze(ctx context.Context, commit string, jobs []*fileJob, stats *Stats) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, j := range jobs {
		g.Go(func() error {
			warnings, err := r.analyzeFile(gctx, j)
			if err != nil {
				return err
			}
			if len(warnings) > 0 {
				mu.Lock()
				for _, w := range warnings {
					r.warn(stats, commit, j.path, w)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, j := range jobs {
			j.release(r.cache)
		}
		return err
	}
	return nil
}

func (r *Runner) analyzeFile(ctx context.Context, j *fileJob) ([]error, error) {
	var warnings []error
	degrade := func(err error) error {
		if errors.IsFatalForRun(err) {
			return err
		}
		warnings = append(warnings, err)
		return nil
	}

	oldContent, err := r.src.ReadBlob(ctx, j.diff.OldBlob)
	if err != nil {
		return nil, err
	}
	newContent, err := r.src.ReadBlob(ctx, j.diff.NewBlob)
	if err != nil {
		return nil, err
	}

	edits, err := diff.Translate(oldContent, newContent, j.diff.Hunks)
	if err != nil {
		if err := degrade(err); err != nil {
			return nil, err
		}
		j.fileOnly = true
		j.partialChanges = true
		edits = nil
	}

	if j.diff.OldBlob != "" {
		prev := r.cache.Checkout(forest.TreeKey{Path: j.path, Blob: j.diff.OldBlob})
		j.old, err = r.builder.Build(ctx, forest.Input{
			Path:     j.path,
			Language: j.language,
			Content:  oldContent,
			Previous: prev,
		})
		if err != nil {
			if err := degrade(err); err != nil {
				return nil, err
			}
			j.old = forest.NewFileOnly(j.path, j.language, forest.BufferRange(oldContent))
			j.partialChanges = true
		}
	}

	if j.diff.NewBlob != "" {
		in := forest.Input{Path: j.path, Language: j.language, Content: newContent}
		if !j.fileOnly && j.old != nil && j.old.Tree() != nil {
			in.Previous = j.old.Tree().Copy()
			in.Edits = edits
		}
		j.new, err = r.builder.Build(ctx, in)
		if err != nil {
			if err := degrade(err); err != nil {
				return nil, err
			}
			j.new = forest.NewFileOnly(j.path, j.language, forest.BufferRange(newContent))
			j.fileOnly = true
			j.partialPresence = true
			j.partialChanges = true
		}
	}
	return warnings, nil
}

// reconcile matches one analysed file against the parent's stored presence
// and adds its rows to the unit. Files are reconciled one at a time in path
// order so identities are allocated deterministically.
func (r *Runner) reconcile(ctx context.Context, state *runState, unit *storage.CommitUnit, p *plan, j *fileJob) error {
	fileID, known := state.table.Lookup(identity.FileKey(j.path))
	var stored []int64
	if known && p.mode == modeParent {
		var err error
		if stored, err = r.db.StoredPresence(ctx, p.parent.ID, fileID); err != nil {
			return errors.New(errors.StorageError, "failed to read parent presence", err)
		}
	}
	if j.new == nil && len(stored) == 0 {
		// Deleted, but never stored: excluded or unparsed before.
		if known {
			unit.Touched = append(unit.Touched, fileID)
		}
		return nil
	}

	res, err := state.matcher.Match(stored, j.new)
	if err != nil {
		return err
	}
	if id := res.FileID(); id != 0 {
		fileID = id
	}
	unit.Touched = append(unit.Touched, fileID)

	for _, occ := range res.Present {
		unit.Presence = append(unit.Presence, model.Presence{
			CommitID:  unit.CommitID,
			EntityID:  occ.ID,
			FileID:    fileID,
			NameRange: occ.Node.NameRange,
			BodyRange: occ.Node.BodyRange,
		})
	}

	if !p.changes {
		return nil
	}
	if j.fileOnly {
		kind, ok := res.KindOf(fileID)
		if !ok {
			kind = model.Modified
		}
		unit.Changes = append(unit.Changes, attribution.FileOnly(unit.CommitID, fileID, kind, j.diff.Hunks)...)
		if j.new == nil {
			for _, id := range res.Deleted {
				if id != fileID {
					unit.Changes = append(unit.Changes, model.Change{CommitID: unit.CommitID, EntityID: id, Kind: model.Deleted})
				}
			}
		}
		return nil
	}

	in := attribution.Input{
		Hunks: j.diff.Hunks,
		Old:   j.old,
		New:   j.new,
		Match: res,
	}
	if j.old != nil {
		in.OldIDs = state.matcher.Bind(j.old)
	}
	rows, err := attribution.Attribute(unit.CommitID, in)
	if err != nil {
		return err
	}
	unit.Changes = append(unit.Changes, rows...)
	return nil
}
