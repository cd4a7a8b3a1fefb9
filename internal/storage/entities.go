package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"semhist/internal/errors"
	"semhist/internal/model"
)

// LoadEntities returns every entity ordered by id.
func (db *DB) LoadEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, parent_id, name, kind FROM entities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(row interface{ Scan(...any) error }) (model.Entity, error) {
	var e model.Entity
	var parent sql.NullInt64
	if err := row.Scan(&e.ID, &parent, &e.Name, &e.Kind); err != nil {
		return e, fmt.Errorf("failed to scan entity: %w", err)
	}
	e.ParentID = parent.Int64
	return e, nil
}

// Entity returns one entity, or an ENTITY_NOT_FOUND error.
func (db *DB) Entity(ctx context.Context, id int64) (model.Entity, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT id, parent_id, name, kind FROM entities WHERE id = ?", id)
	e, err := scanEntity(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return e, errors.Newf(errors.EntityNotFound, "entity %d does not exist", id)
		}
		return e, err
	}
	return e, nil
}

// EntityPath returns the chain from the file entity down to id.
func (db *DB) EntityPath(ctx context.Context, id int64) ([]model.Entity, error) {
	var chain []model.Entity
	for cur := id; cur != 0; {
		e, err := db.Entity(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, e)
		cur = e.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// QualifiedName joins the names below the file entity with dots.
func QualifiedName(chain []model.Entity) string {
	if len(chain) <= 1 {
		if len(chain) == 1 {
			return chain[0].Name
		}
		return ""
	}
	names := make([]string, 0, len(chain)-1)
	for _, e := range chain[1:] {
		names = append(names, e.Name)
	}
	return strings.Join(names, ".")
}

// FindEntities resolves a file path and a dotted name below it. An empty
// name selects the file entity. Overloaded kinds all match unless kind is
// given.
func (db *DB) FindEntities(ctx context.Context, path, name string, kind model.Kind) ([]model.Entity, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, parent_id, name, kind FROM entities WHERE parent_id IS NULL AND name = ?", path)
	file, err := scanEntity(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.EntityNotFound, "file %s was never ingested", path)
		}
		return nil, err
	}
	if name == "" {
		return []model.Entity{file}, nil
	}

	level := []model.Entity{file}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		var next []model.Entity
		for _, parent := range level {
			children, err := db.children(ctx, parent.ID, part)
			if err != nil {
				return nil, err
			}
			next = append(next, children...)
		}
		level = next
		if len(level) == 0 {
			break
		}
		if i == len(parts)-1 && kind != "" {
			filtered := level[:0]
			for _, e := range level {
				if e.Kind == kind {
					filtered = append(filtered, e)
				}
			}
			level = filtered
		}
	}
	if len(level) == 0 {
		return nil, errors.Newf(errors.EntityNotFound, "no entity %s in %s", name, path)
	}
	return level, nil
}

func (db *DB) children(ctx context.Context, parentID int64, name string) ([]model.Entity, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, parent_id, name, kind FROM entities WHERE parent_id = ? AND name = ? ORDER BY id",
		parentID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
