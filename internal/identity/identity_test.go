package identity

import (
	"testing"

	"semhist/internal/errors"
	"semhist/internal/forest"
	"semhist/internal/model"
)

// node describes one forest entry; parent indexes an earlier entry.
type node struct {
	parent int
	kind   model.Kind
	name   string
}

func newForest(path string, entries ...node) *forest.Forest {
	root := &forest.Node{Kind: model.KindFile, Name: path}
	f := &forest.Forest{Path: path, Root: root, Nodes: []*forest.Node{root}}
	for _, e := range entries {
		p := f.Nodes[e.parent]
		n := &forest.Node{Kind: e.kind, Name: e.name, Parent: p, Depth: p.Depth + 1, Order: len(f.Nodes)}
		p.Children = append(p.Children, n)
		f.Nodes = append(f.Nodes, n)
	}
	return f
}

func idsOf(res *Result) []int64 {
	out := make([]int64, 0, len(res.Present))
	for _, o := range res.Present {
		out = append(out, o.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entity  model.Entity
		wantErr bool
	}{
		{"file", model.Entity{ID: 1, Name: "A.java", Kind: model.KindFile}, false},
		{"method", model.Entity{ID: 2, ParentID: 1, Name: "m", Kind: model.KindMethod}, false},
		{"file with parent", model.Entity{ID: 3, ParentID: 1, Name: "B.java", Kind: model.KindFile}, true},
		{"orphan method", model.Entity{ID: 4, Name: "m", Kind: model.KindMethod}, true},
		{"empty name", model.Entity{ID: 5, Kind: model.KindFile}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.entity)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTable_ResolveAndCommit(t *testing.T) {
	table := NewTable()
	if err := table.Load([]model.Entity{
		{ID: 1, Name: "A.java", Kind: model.KindFile},
		{ID: 2, ParentID: 1, Name: "A", Kind: model.KindClass},
	}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	id, created, err := table.Resolve(Key{Parent: 1, Kind: model.KindClass, Name: "A"})
	if err != nil || created || id != 2 {
		t.Errorf("Resolve(existing) = %d, %v, %v; want 2, false, nil", id, created, err)
	}

	id, created, err = table.Resolve(Key{Parent: 2, Kind: model.KindMethod, Name: "m"})
	if err != nil || !created || id != 3 {
		t.Errorf("Resolve(new) = %d, %v, %v; want 3, true, nil", id, created, err)
	}

	// A pending id can parent further allocations.
	id, _, err = table.Resolve(Key{Parent: 3, Kind: model.KindClass, Name: "Local"})
	if err != nil || id != 4 {
		t.Errorf("Resolve(child of pending) = %d, %v; want 4, nil", id, err)
	}

	pending := table.Pending()
	if len(pending) != 2 || pending[0].ID != 3 || pending[1].ID != 4 {
		t.Fatalf("Pending() = %+v, want ids 3, 4", pending)
	}

	table.Commit()
	if len(table.Pending()) != 0 {
		t.Error("Pending() after Commit should be empty")
	}
	if table.Len() != 4 {
		t.Errorf("Len() = %d, want 4", table.Len())
	}
	if e, ok := table.Entity(3); !ok || e.Name != "m" || e.ParentID != 2 {
		t.Errorf("Entity(3) = %+v, %v", e, ok)
	}
}

func TestTable_Discard(t *testing.T) {
	table := NewTable()
	first, _, err := table.Resolve(FileKey("A.java"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	table.Discard()

	if _, ok := table.Lookup(FileKey("A.java")); ok {
		t.Error("Lookup() after Discard should miss")
	}
	again, _, err := table.Resolve(FileKey("B.java"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if again != first {
		t.Errorf("Resolve() after Discard = %d, want reused id %d", again, first)
	}
}

func TestTable_Rejects(t *testing.T) {
	table := NewTable()

	if _, _, err := table.Resolve(Key{Parent: 99, Kind: model.KindMethod, Name: "m"}); err == nil {
		t.Error("Resolve() with unknown parent should fail")
	}
	if _, _, err := table.Resolve(Key{Kind: model.KindMethod, Name: "m"}); err == nil {
		t.Error("Resolve() of parentless method should fail")
	}

	err := table.Load([]model.Entity{
		{ID: 1, Name: "A.java", Kind: model.KindFile},
		{ID: 2, Name: "A.java", Kind: model.KindFile},
	})
	if !errors.Is(err, errors.StorageError) {
		t.Errorf("Load(duplicate key) error = %v, want STORAGE_ERROR", err)
	}
}

func TestMatcher_IdentityStability(t *testing.T) {
	m := NewMatcher(NewTable())

	parent := newForest("A.java",
		node{0, model.KindClass, "A"},
		node{1, model.KindMethod, "a"},
		node{1, model.KindMethod, "b"},
	)
	first, err := m.Match(nil, parent)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	m.Table().Commit()

	if len(first.Added) != 4 || len(first.Created) != 4 {
		t.Errorf("first match Added = %v, Created = %v; want 4 each", first.Added, first.Created)
	}

	child := newForest("A.java",
		node{0, model.KindClass, "A"},
		node{1, model.KindMethod, "a"},
		node{1, model.KindMethod, "b"},
		node{1, model.KindMethod, "c"},
	)
	second, err := m.Match(idsOf(first), child)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}

	for i := 0; i < 4; i++ {
		if second.IDs[child.Nodes[i]] != first.IDs[parent.Nodes[i]] {
			t.Errorf("node %d id = %d, want %d", i, second.IDs[child.Nodes[i]], first.IDs[parent.Nodes[i]])
		}
	}
	if !equalIDs(second.Retained, idsOf(first)) {
		t.Errorf("Retained = %v, want %v", second.Retained, idsOf(first))
	}
	if len(second.Added) != 1 || second.Added[0] != second.IDs[child.Nodes[4]] {
		t.Errorf("Added = %v, want id of c", second.Added)
	}
	if len(second.Deleted) != 0 {
		t.Errorf("Deleted = %v, want none", second.Deleted)
	}
	if kind, _ := second.KindOf(second.Added[0]); kind != model.Added {
		t.Errorf("KindOf(c) = %v, want Added", kind)
	}
}

func TestMatcher_DeleteAndReappear(t *testing.T) {
	m := NewMatcher(NewTable())

	v1 := newForest("A.java", node{0, model.KindClass, "A"}, node{1, model.KindMethod, "gone"})
	r1, err := m.Match(nil, v1)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	m.Table().Commit()
	goneID := r1.IDs[v1.Nodes[2]]

	v2 := newForest("A.java", node{0, model.KindClass, "A"})
	r2, err := m.Match(idsOf(r1), v2)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if !equalIDs(r2.Deleted, []int64{goneID}) {
		t.Errorf("Deleted = %v, want [%d]", r2.Deleted, goneID)
	}
	if kind, _ := r2.KindOf(goneID); kind != model.Deleted {
		t.Errorf("KindOf(gone) = %v, want Deleted", kind)
	}

	v3 := newForest("A.java", node{0, model.KindClass, "A"}, node{1, model.KindMethod, "gone"})
	r3, err := m.Match(idsOf(r2), v3)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if got := r3.IDs[v3.Nodes[2]]; got != goneID {
		t.Errorf("reappearing id = %d, want %d", got, goneID)
	}
	if len(r3.Created) != 0 {
		t.Errorf("Created = %v, want none", r3.Created)
	}
}

func TestMatcher_MoveIsDeleteAdd(t *testing.T) {
	m := NewMatcher(NewTable())

	v1 := newForest("A.java",
		node{0, model.KindClass, "A"},
		node{0, model.KindClass, "B"},
		node{1, model.KindMethod, "m"},
	)
	r1, err := m.Match(nil, v1)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	m.Table().Commit()

	v2 := newForest("A.java",
		node{0, model.KindClass, "A"},
		node{0, model.KindClass, "B"},
		node{2, model.KindMethod, "m"},
	)
	r2, err := m.Match(idsOf(r1), v2)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(r2.Added) != 1 || len(r2.Deleted) != 1 {
		t.Fatalf("Added = %v, Deleted = %v; want one each", r2.Added, r2.Deleted)
	}
	if r2.Added[0] == r2.Deleted[0] {
		t.Error("moved method should not keep its id")
	}
}

func TestMatcher_OverloadsCollapse(t *testing.T) {
	m := NewMatcher(NewTable())

	f := newForest("A.java",
		node{0, model.KindClass, "A"},
		node{1, model.KindMethod, "m"},
		node{1, model.KindMethod, "m"},
	)
	res, err := m.Match(nil, f)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if res.IDs[f.Nodes[2]] != res.IDs[f.Nodes[3]] {
		t.Error("overloads should share an id")
	}
	if len(res.Present) != 3 {
		t.Errorf("len(Present) = %d, want 3", len(res.Present))
	}
	if res.Present[2].Node != f.Nodes[2] {
		t.Error("presence should use the first occurrence")
	}
}

func TestMatcher_FileDeleted(t *testing.T) {
	m := NewMatcher(NewTable())
	f := newForest("A.java", node{0, model.KindClass, "A"})
	r1, err := m.Match(nil, f)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	m.Table().Commit()

	r2, err := m.Match(idsOf(r1), nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if r2.FileID() != 0 || len(r2.Present) != 0 {
		t.Errorf("Present = %+v, want none", r2.Present)
	}
	if len(r2.Deleted) != 2 {
		t.Errorf("Deleted = %v, want 2 ids", r2.Deleted)
	}
}

func TestMatcher_Bind(t *testing.T) {
	m := NewMatcher(NewTable())
	stored := newForest("A.java", node{0, model.KindClass, "A"})
	r, err := m.Match(nil, stored)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	m.Table().Commit()

	reparsed := newForest("A.java",
		node{0, model.KindClass, "A"},
		node{1, model.KindMethod, "unseen"},
	)
	ids := m.Bind(reparsed)
	if ids[reparsed.Nodes[1]] != r.IDs[stored.Nodes[1]] {
		t.Errorf("Bind(A) = %d, want %d", ids[reparsed.Nodes[1]], r.IDs[stored.Nodes[1]])
	}
	if _, ok := ids[reparsed.Nodes[2]]; ok {
		t.Error("Bind should not allocate ids for unseen keys")
	}
	if len(m.Table().Pending()) != 0 {
		t.Error("Bind should leave the table untouched")
	}
}
