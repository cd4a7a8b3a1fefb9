package ingest

import (
	"context"
	"sort"

	"semhist/internal/diff"
	"semhist/internal/errors"
	"semhist/internal/git"
	"semhist/internal/model"
	"semhist/internal/storage"
)

// mode says how a commit's files are compared.
type mode int

const (
	// modeRoot diffs a parentless commit against the empty tree.
	modeRoot mode = iota
	// modeParent diffs against the first parent, whose presence is stored.
	modeParent
	// modeSnapshot lists the whole tree because the first parent lies
	// outside the stored history. Changes are deferred.
	modeSnapshot
)

// plan is what ingestCommit decided to compute for one commit.
type plan struct {
	mode      mode
	parent    *model.Commit
	changes   bool
	reach     bool
	parentIDs []int64
}

func (r *Runner) planCommit(ctx context.Context, state *runState, c *git.Commit, windowed bool) (*plan, error) {
	p := &plan{}

	switch {
	case len(c.Parents) == 0:
		p.mode = modeRoot
	default:
		parent := state.commits[c.Parents[0]]
		switch {
		case parent != nil && (parent.HasPresenceInfo || state.written[parent.SHA]):
			p.mode = modeParent
			p.parent = parent
		case windowed:
			p.mode = modeSnapshot
		default:
			return nil, violation(c.SHA, "first parent %s has no presence info", shortSHA(c.Parents[0]))
		}
	}
	// Merge changes are attributed on the merged branch.
	p.changes = p.mode != modeSnapshot && !c.IsMerge()

	reachable := true
	for _, sha := range c.Parents {
		parent := state.commits[sha]
		if parent == nil {
			reachable = false
			continue
		}
		p.parentIDs = append(p.parentIDs, parent.ID)
	}
	if reachable {
		ready, err := r.db.Reachability().Ready(ctx, p.parentIDs)
		if err != nil {
			return nil, errors.New(errors.StorageError, "failed to read reachability flags", err)
		}
		reachable = ready
	}
	switch {
	case reachable:
		p.reach = true
	case windowed:
		p.reach = false
	default:
		for _, sha := range c.Parents {
			if state.commits[sha] == nil {
				return nil, violation(c.SHA, "parent %s was never observed", shortSHA(sha))
			}
		}
		// The index reports the unindexed parent.
		p.reach = true
	}
	return p, nil
}

// ingestCommit computes and stores the facts of one commit.
func (r *Runner) ingestCommit(ctx context.Context, state *runState, id int64, c *git.Commit, windowed bool, stats *Stats) error {
	stored := state.commits[c.SHA]
	if stored == nil {
		return errors.Newf(errors.InternalError, "commit %s was not registered", c.SHA)
	}
	if stored.Complete() {
		stats.CommitsSkipped++
		return nil
	}

	p, err := r.planCommit(ctx, state, c, windowed)
	if err != nil {
		return err
	}
	if stored.HasPresenceInfo && (!p.changes || stored.HasChangeInfo) && (!p.reach || stored.HasReachabilityInfo) {
		// Nothing this run can add.
		stats.CommitsSkipped++
		return nil
	}

	base := ""
	if p.mode == modeParent {
		base = p.parent.SHA
	}
	files, err := r.src.DiffCommit(ctx, base, c.SHA)
	if err != nil {
		return err
	}

	jobs := r.selectFiles(files)
	if err := r.analyze(ctx, c.SHA, jobs, stats); err != nil {
		return err
	}
	defer func() {
		for _, j := range jobs {
			j.release(r.cache)
		}
	}()

	// A degraded file leaves its stage open so a later run retries it.
	presenceDone, changesDone := true, p.changes || (c.IsMerge() && p.mode != modeSnapshot)
	for _, j := range jobs {
		if j.partialPresence {
			presenceDone = false
		}
		if j.partialChanges && p.changes {
			changesDone = false
		}
	}

	unit := &storage.CommitUnit{
		CommitID:     id,
		Parents:      p.parentIDs,
		Reach:        p.reach,
		PresenceDone: presenceDone,
		ChangesDone:  changesDone,
	}
	if p.mode == modeParent {
		unit.CarryFrom = p.parent.ID
	}

	for _, j := range jobs {
		if err := r.reconcile(ctx, state, unit, p, j); err != nil {
			state.table.Discard()
			return err
		}
	}
	unit.Entities = state.table.Pending()

	res, err := r.db.WriteCommitUnit(ctx, unit)
	if err != nil {
		state.table.Discard()
		return err
	}
	state.table.Commit()

	state.written[c.SHA] = true
	stored.HasPresenceInfo = stored.HasPresenceInfo || unit.PresenceDone
	stored.HasChangeInfo = stored.HasChangeInfo || unit.ChangesDone
	stored.HasReachabilityInfo = stored.HasReachabilityInfo || unit.Reach
	if !unit.Reach || !unit.ChangesDone || !unit.PresenceDone {
		stats.Deferred++
	}
	if p.mode == modeSnapshot {
		stats.Snapshots++
	}
	stats.CommitsIngested++
	stats.FilesAnalyzed += len(jobs)
	stats.Entities += res.Entities
	stats.PresenceRows += res.Presence + res.Carried
	stats.ChangeRows += res.Changes
	stats.ReachPairs += res.Reachability

	r.logger.Debug("Ingested commit",
		"commit", shortSHA(c.SHA),
		"files", len(jobs),
		"entities", res.Entities,
		"changes", res.Changes,
		"carried", res.Carried,
	)
	return nil
}

// selectFiles keeps the text files of tracked languages, sorted by path.
func (r *Runner) selectFiles(files []diff.FileDiff) []*fileJob {
	jobs := make([]*fileJob, 0, len(files))
	for _, fd := range files {
		if fd.Binary {
			continue
		}
		if fd.Status == diff.FileModified && len(fd.Hunks) == 0 {
			continue // mode change only
		}
		tag, ok := r.tracked(fd.Path())
		if !ok {
			continue
		}
		jobs = append(jobs, &fileJob{diff: fd, path: fd.Path(), language: tag})
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].path < jobs[k].path })
	return jobs
}
