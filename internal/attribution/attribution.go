// Package attribution turns the hunks of one file transition into per-entity
// change rows. Each deleted line is charged to the innermost entity of the
// parent version that spans it and each added line to the innermost entity
// of the child version, so ancestors are never charged for a nested change.
package attribution

import (
	"sort"

	"semhist/internal/diff"
	"semhist/internal/errors"
	"semhist/internal/forest"
	"semhist/internal/identity"
	"semhist/internal/model"
)

// Input is one file transition ready for attribution.
type Input struct {
	Hunks []diff.Hunk
	// Old is the parent version's forest, nil for a created file.
	Old *forest.Forest
	// OldIDs binds the nodes of Old to stored ids.
	OldIDs map[*forest.Node]int64
	// New is the child version's forest, nil for a deleted file.
	New *forest.Forest
	// Match reconciles stored presence with New.
	Match *identity.Result
}

type delta struct {
	adds, dels int
}

// Attribute computes the change rows of one file transition. Rows are
// ordered by entity id. Every added and deleted entity gets a row, even one
// whose lines were all charged elsewhere; retained entities get a Modified
// row only when a line was charged to them.
func Attribute(commitID int64, in Input) ([]model.Change, error) {
	if in.Match == nil {
		return nil, errors.Newf(errors.InternalError, "attribution without a match result")
	}
	counts := make(map[int64]*delta)
	charge := func(id int64) *delta {
		d, ok := counts[id]
		if !ok {
			d = &delta{}
			counts[id] = d
		}
		return d
	}

	for _, h := range in.Hunks {
		for line := h.OldStart; line < h.OldStart+h.OldLines; line++ {
			id, err := in.oldOwner(line)
			if err != nil {
				return nil, err
			}
			charge(id).dels++
		}
		for line := h.NewStart; line < h.NewStart+h.NewLines; line++ {
			id, err := in.newOwner(line)
			if err != nil {
				return nil, err
			}
			charge(id).adds++
		}
	}

	for _, id := range in.Match.Added {
		charge(id)
	}
	for _, id := range in.Match.Deleted {
		charge(id)
	}

	out := make([]model.Change, 0, len(counts))
	for id, d := range counts {
		kind, ok := in.Match.KindOf(id)
		if !ok {
			kind = model.Modified
		}
		if kind == model.Modified && d.adds == 0 && d.dels == 0 {
			continue
		}
		out = append(out, model.Change{CommitID: commitID, EntityID: id, Kind: kind, Adds: d.adds, Dels: d.dels})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (in *Input) oldOwner(line int) (int64, error) {
	if in.Old != nil {
		for n := Innermost(in.Old, line); n != nil; n = n.Parent {
			id, ok := in.OldIDs[n]
			if !ok {
				continue
			}
			if _, ok := in.Match.KindOf(id); ok {
				return id, nil
			}
		}
	}
	// The parent version was never stored entity by entity.
	if id := in.Match.FileID(); id != 0 {
		return id, nil
	}
	return 0, errors.Newf(errors.InternalError, "no entity owns deleted line %d", line)
}

func (in *Input) newOwner(line int) (int64, error) {
	if in.New == nil {
		return 0, errors.Newf(errors.InternalError, "added line %d in a deleted file", line)
	}
	n := Innermost(in.New, line)
	id, ok := in.Match.IDs[n]
	if !ok {
		return 0, errors.Newf(errors.InternalError, "node %s %q has no id", n.Kind, n.Name)
	}
	return id, nil
}

// Innermost returns the deepest node whose body spans the 1-based line.
// Among nodes at the same depth the first in document order wins. The file
// entity owns every line no other entity spans.
func Innermost(f *forest.Forest, line int) *forest.Node {
	return descend(f.Root, line)
}

func descend(n *forest.Node, line int) *forest.Node {
	best := n
	for _, c := range n.Children {
		if c.BodyRange.FirstLine() > line {
			break
		}
		if !c.BodyRange.CoversLine(line) {
			continue
		}
		if got := descend(c, line); got.Depth > best.Depth {
			best = got
		}
	}
	return best
}

// FileOnly returns the single file-level row recorded when a transition
// cannot be attributed to entities. It returns nil for a Modified row
// without line changes.
func FileOnly(commitID, fileID int64, kind model.ChangeKind, hunks []diff.Hunk) []model.Change {
	var adds, dels int
	for _, h := range hunks {
		adds += h.NewLines
		dels += h.OldLines
	}
	if kind == model.Modified && adds == 0 && dels == 0 {
		return nil
	}
	return []model.Change{{CommitID: commitID, EntityID: fileID, Kind: kind, Adds: adds, Dels: dels}}
}
