package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Dep is one dependency edge between two entities at a commit.
type Dep struct {
	CommitID int64  `json:"commitId" yaml:"commitId"`
	SourceID int64  `json:"sourceId" yaml:"sourceId"`
	TargetID int64  `json:"targetId" yaml:"targetId"`
	Kind     string `json:"kind" yaml:"kind"`
	Line     int    `json:"line" yaml:"line"`
}

// WriteDeps stores dependency edges in one transaction and returns how many
// were new.
func (db *DB) WriteDeps(ctx context.Context, deps []Dep) (int, error) {
	written := 0
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO deps (commit_id, source_id, target_id, kind, line)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, d := range deps {
			res, err := stmt.ExecContext(ctx, d.CommitID, d.SourceID, d.TargetID, d.Kind, d.Line)
			if err != nil {
				return fmt.Errorf("failed to insert dep %d->%d: %w", d.SourceID, d.TargetID, err)
			}
			written += affected(res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Deps returns the edges recorded at a commit.
func (db *DB) Deps(ctx context.Context, commitID int64) ([]Dep, error) {
	return db.queryDeps(ctx, `
		SELECT commit_id, source_id, target_id, kind, line FROM deps
		WHERE commit_id = ? ORDER BY source_id, target_id, kind, line`, commitID)
}

// AllDeps returns every recorded edge ordered by commit.
func (db *DB) AllDeps(ctx context.Context) ([]Dep, error) {
	return db.queryDeps(ctx, `
		SELECT commit_id, source_id, target_id, kind, line FROM deps
		ORDER BY commit_id, source_id, target_id, kind, line`)
}

func (db *DB) queryDeps(ctx context.Context, query string, args ...any) ([]Dep, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deps: %w", err)
	}
	defer rows.Close()

	var out []Dep
	for rows.Next() {
		var d Dep
		if err := rows.Scan(&d.CommitID, &d.SourceID, &d.TargetID, &d.Kind, &d.Line); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
