package identity

import (
	"fmt"
	"sort"
	"sync"

	"semhist/internal/errors"
	"semhist/internal/model"
)

// Table maps identity keys to entity ids. Ids allocated by Resolve stay
// pending until Commit, so a failed commit transaction can Discard them and
// the next attempt allocates the same ids again.
type Table struct {
	mu      sync.Mutex
	ids     map[Key]int64
	byID    map[int64]model.Entity
	pending map[Key]int64
	staged  map[int64]Key
	next    int64
}

// NewTable creates an empty table. Ids start at 1.
func NewTable() *Table {
	return &Table{
		ids:     make(map[Key]int64),
		byID:    make(map[int64]model.Entity),
		pending: make(map[Key]int64),
		staged:  make(map[int64]Key),
		next:    1,
	}
}

// Load adds stored entities. It rejects records that break the parent rule
// or collide on a key.
func (t *Table) Load(entities []model.Entity) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range entities {
		if err := Validate(e); err != nil {
			return errors.New(errors.StorageError, fmt.Sprintf("entity %d", e.ID), err)
		}
		k := KeyOf(e)
		if prev, ok := t.ids[k]; ok && prev != e.ID {
			return errors.Newf(errors.StorageError, "entities %d and %d share key %s", prev, e.ID, k)
		}
		t.ids[k] = e.ID
		t.byID[e.ID] = e
		if e.ID >= t.next {
			t.next = e.ID + 1
		}
	}
	return nil
}

// Lookup returns the id for key, including pending ids.
func (t *Table) Lookup(k Key) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookup(k)
}

func (t *Table) lookup(k Key) (int64, bool) {
	if id, ok := t.ids[k]; ok {
		return id, true
	}
	id, ok := t.pending[k]
	return id, ok
}

// Resolve returns the id for key, allocating a pending one if the key is
// new. created reports whether an id was allocated.
func (t *Table) Resolve(k Key) (id int64, created bool, err error) {
	e := model.Entity{ParentID: k.Parent, Kind: k.Kind, Name: k.Name}
	if err := Validate(e); err != nil {
		return 0, false, errors.New(errors.InternalError, "cannot allocate entity "+k.String(), err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.lookup(k); ok {
		return id, false, nil
	}
	if k.Parent != 0 {
		if _, ok := t.entity(k.Parent); !ok {
			return 0, false, errors.Newf(errors.InternalError, "parent %d of %s is unknown", k.Parent, k)
		}
	}
	id = t.next
	t.next++
	t.pending[k] = id
	t.staged[id] = k
	return id, true, nil
}

// Entity returns the record for id.
func (t *Table) Entity(id int64) (model.Entity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entity(id)
}

func (t *Table) entity(id int64) (model.Entity, bool) {
	if e, ok := t.byID[id]; ok {
		return e, true
	}
	if k, ok := t.staged[id]; ok {
		return model.Entity{ID: id, ParentID: k.Parent, Kind: k.Kind, Name: k.Name}, true
	}
	return model.Entity{}, false
}

// Pending returns the entities allocated since the last Commit or Discard,
// ordered by id so parents precede their children.
func (t *Table) Pending() []model.Entity {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Entity, 0, len(t.pending))
	for k, id := range t.pending {
		out = append(out, model.Entity{ID: id, ParentID: k.Parent, Kind: k.Kind, Name: k.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Commit makes pending ids permanent.
func (t *Table) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, id := range t.pending {
		t.ids[k] = id
		t.byID[id] = model.Entity{ID: id, ParentID: k.Parent, Kind: k.Kind, Name: k.Name}
	}
	t.pending = make(map[Key]int64)
	t.staged = make(map[int64]Key)
}

// Discard forgets pending ids and rewinds allocation.
func (t *Table) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.pending {
		if id < t.next {
			t.next = id
		}
	}
	t.pending = make(map[Key]int64)
	t.staged = make(map[int64]Key)
}

// Len returns the number of committed entities.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
