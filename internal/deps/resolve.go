package deps

import (
	"context"
	"log/slog"
	"sort"

	"semhist/internal/errors"
	"semhist/internal/model"
	"semhist/internal/paths"
	"semhist/internal/storage"
)

// location is an entity present at the commit being resolved against.
type location struct {
	id    int64
	name  string
	depth int
	body  model.Range
}

// Resolver maps endpoints to entities present at one commit.
type Resolver struct {
	files map[string][]location
}

// NewResolver indexes presence rows of a single commit by file path.
func NewResolver(rows []storage.PresenceRow) *Resolver {
	byID := make(map[int64]storage.PresenceRow, len(rows))
	fileNames := make(map[int64]string)
	for _, r := range rows {
		byID[r.EntityID] = r
		if r.ParentID == 0 {
			fileNames[r.FileID] = r.Name
		}
	}

	depth := func(id int64) int {
		d := 0
		for cur := byID[id]; cur.ParentID != 0; cur = byID[cur.ParentID] {
			d++
			if _, ok := byID[cur.ParentID]; !ok {
				break
			}
		}
		return d
	}

	res := &Resolver{files: make(map[string][]location)}
	for _, r := range rows {
		path, ok := fileNames[r.FileID]
		if !ok {
			continue
		}
		res.files[path] = append(res.files[path], location{
			id:    r.EntityID,
			name:  r.Name,
			depth: depth(r.EntityID),
			body:  r.BodyRange,
		})
	}
	for _, locs := range res.files {
		sort.Slice(locs, func(i, j int) bool { return locs[i].id < locs[j].id })
	}
	return res
}

// Resolve returns the entity an endpoint refers to. Candidates are the
// entities whose body spans the endpoint's line; a unique name match wins,
// then a unique deepest candidate. Anything else is ENTITY_NOT_FOUND.
func (r *Resolver) Resolve(ep Endpoint) (int64, error) {
	locs, ok := r.files[ep.File]
	if !ok {
		return 0, errors.Newf(errors.EntityNotFound, "file %s is not present", ep.File)
	}

	var candidates []location
	switch {
	case ep.Type == EndpointFile:
		for _, l := range locs {
			if l.depth == 0 {
				candidates = append(candidates, l)
			}
		}
	case ep.Line <= 0:
		return 0, errors.Newf(errors.EntityNotFound, "%s %s has no line number", ep.Type, ep.Object)
	default:
		for _, l := range locs {
			if l.body.CoversLine(ep.Line) {
				candidates = append(candidates, l)
			}
		}
	}

	switch len(candidates) {
	case 0:
		return 0, errors.Newf(errors.EntityNotFound, "no %s at %s:%d", ep.Type, ep.File, ep.Line)
	case 1:
		return candidates[0].id, nil
	}

	name := ep.Name()
	var named []location
	for _, l := range candidates {
		if l.name == name {
			named = append(named, l)
		}
	}
	if len(named) == 1 {
		return named[0].id, nil
	}

	deepest := candidates[0].depth
	for _, l := range candidates[1:] {
		deepest = max(deepest, l.depth)
	}
	var innermost []location
	for _, l := range candidates {
		if l.depth == deepest {
			innermost = append(innermost, l)
		}
	}
	if len(innermost) == 1 {
		return innermost[0].id, nil
	}
	return 0, errors.Newf(errors.EntityNotFound, "%d entities named %s at %s:%d", len(innermost), name, ep.File, ep.Line)
}

// Result counts what an import did.
type Result struct {
	Read       int `json:"read"`
	Stored     int `json:"stored"`
	Unresolved int `json:"unresolved"`
}

// Importer stores Depends edges against ingested commits.
type Importer struct {
	db       *storage.DB
	repoRoot string
	logger   *slog.Logger
}

// NewImporter creates an importer. Absolute endpoint paths are made
// relative to repoRoot.
func NewImporter(db *storage.DB, repoRoot string, logger *slog.Logger) *Importer {
	return &Importer{db: db, repoRoot: repoRoot, logger: logger}
}

// Import resolves every edge at commit and stores the resolvable ones. The
// commit must have presence info.
func (im *Importer) Import(ctx context.Context, commit *model.Commit, deps []Dep) (*Result, error) {
	if !commit.HasPresenceInfo {
		return nil, errors.Newf(errors.CommitNotFound, "commit %s has no presence info", commit.SHA)
	}
	rows, err := im.db.PresenceAt(ctx, commit.ID, 0)
	if err != nil {
		return nil, errors.New(errors.StorageError, "failed to read presence", err)
	}
	resolver := NewResolver(rows)

	res := &Result{Read: len(deps)}
	edges := make([]storage.Dep, 0, len(deps))
	for _, d := range deps {
		src, err := resolver.Resolve(im.normalize(d.Src))
		if err != nil {
			im.unresolved(res, d, err)
			continue
		}
		dst, err := resolver.Resolve(im.normalize(d.Dest))
		if err != nil {
			im.unresolved(res, d, err)
			continue
		}
		edges = append(edges, storage.Dep{
			CommitID: commit.ID,
			SourceID: src,
			TargetID: dst,
			Kind:     string(d.Type),
			Line:     d.Src.Line,
		})
	}

	n, err := im.db.WriteDeps(ctx, edges)
	if err != nil {
		return nil, errors.New(errors.StorageError, "failed to store dependencies", err)
	}
	res.Stored = n
	im.logger.Info("Imported dependencies",
		"commit", commit.SHA,
		"read", res.Read,
		"stored", res.Stored,
		"unresolved", res.Unresolved,
	)
	return res, nil
}

func (im *Importer) normalize(ep Endpoint) Endpoint {
	if p, err := paths.ToRepoPath(ep.File, im.repoRoot); err == nil {
		ep.File = p
	}
	return ep
}

func (im *Importer) unresolved(res *Result, d Dep, err error) {
	res.Unresolved++
	im.logger.Debug("Skipping unresolved dependency",
		"type", string(d.Type),
		"src", d.Src.Object,
		"dest", d.Dest.Object,
		"error", err.Error(),
	)
}
