package identity

import (
	"sort"

	"semhist/internal/forest"
	"semhist/internal/model"
)

// Occurrence is the first node of a fresh forest bound to an id. Later
// nodes with the same key (overloads) share the id but not the occurrence.
type Occurrence struct {
	ID   int64
	Node *forest.Node
}

// Result reconciles a file's stored entities at the parent commit with the
// freshly built forest of the child commit.
type Result struct {
	// IDs binds every fresh node, duplicates included.
	IDs map[*forest.Node]int64
	// Present lists one occurrence per id in preorder, file entity first.
	Present []Occurrence

	Added    []int64 // present now, not at the parent
	Deleted  []int64 // present at the parent, not now
	Retained []int64 // present at both
	Created  []int64 // ids allocated by this match

	old map[int64]bool
	now map[int64]bool
}

// FileID returns the id of the file entity, or 0 when the file is gone.
func (r *Result) FileID() int64 {
	if len(r.Present) == 0 {
		return 0
	}
	return r.Present[0].ID
}

// InOld reports whether id was present at the parent.
func (r *Result) InOld(id int64) bool { return r.old[id] }

// InNew reports whether id is present now.
func (r *Result) InNew(id int64) bool { return r.now[id] }

// KindOf classifies id by where it is present. Ids present on both sides
// classify as Modified; ok is false when id is present on neither side.
func (r *Result) KindOf(id int64) (kind model.ChangeKind, ok bool) {
	switch inOld, inNew := r.old[id], r.now[id]; {
	case inOld && inNew:
		return model.Modified, true
	case inNew:
		return model.Added, true
	case inOld:
		return model.Deleted, true
	}
	return "", false
}

// Matcher binds forests to entity ids through a Table.
type Matcher struct {
	table *Table
}

// NewMatcher creates a matcher over table.
func NewMatcher(table *Table) *Matcher {
	return &Matcher{table: table}
}

// Table returns the underlying key table.
func (m *Matcher) Table() *Table {
	return m.table
}

// Match binds fresh (nil when the file was deleted) against the ids stored
// as present in the file at the parent commit.
func (m *Matcher) Match(stored []int64, fresh *forest.Forest) (*Result, error) {
	res := &Result{
		IDs: make(map[*forest.Node]int64),
		old: make(map[int64]bool, len(stored)),
		now: make(map[int64]bool),
	}
	for _, id := range stored {
		res.old[id] = true
	}

	if fresh != nil {
		for _, n := range fresh.Nodes {
			var parent int64
			if n.Parent != nil {
				parent = res.IDs[n.Parent]
			}
			id, created, err := m.table.Resolve(Key{Parent: parent, Kind: n.Kind, Name: n.Name})
			if err != nil {
				return nil, err
			}
			res.IDs[n] = id
			if created {
				res.Created = append(res.Created, id)
			}
			if res.now[id] {
				continue
			}
			res.now[id] = true
			res.Present = append(res.Present, Occurrence{ID: id, Node: n})
			if res.old[id] {
				res.Retained = append(res.Retained, id)
			} else {
				res.Added = append(res.Added, id)
			}
		}
	}

	for _, id := range stored {
		if !res.now[id] {
			res.Deleted = append(res.Deleted, id)
		}
	}
	sort.Slice(res.Deleted, func(i, j int) bool { return res.Deleted[i] < res.Deleted[j] })
	res.Deleted = dedupSorted(res.Deleted)
	return res, nil
}

// Bind looks up ids for the nodes of a parent-version forest without
// allocating. Nodes whose key was never stored are left out.
func (m *Matcher) Bind(f *forest.Forest) map[*forest.Node]int64 {
	ids := make(map[*forest.Node]int64, len(f.Nodes))
	for _, n := range f.Nodes {
		var parent int64
		if n.Parent != nil {
			var ok bool
			if parent, ok = ids[n.Parent]; !ok {
				continue
			}
		}
		if id, ok := m.table.Lookup(Key{Parent: parent, Kind: n.Kind, Name: n.Name}); ok {
			ids[n] = id
		}
	}
	return ids
}

func dedupSorted(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
