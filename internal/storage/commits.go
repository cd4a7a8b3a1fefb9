package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"semhist/internal/errors"
	"semhist/internal/model"
)

// CommitRecord is an observed commit with its parents in order.
type CommitRecord struct {
	Commit  model.Commit
	Parents []string
}

// RegisterCommits records observed commits and their parent edges. Commits
// already known keep their id and flags. It returns the id of every sha.
func (db *DB) RegisterCommits(ctx context.Context, records []CommitRecord) (map[string]int64, error) {
	ids := make(map[string]int64, len(records))
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		insCommit, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO commits (sha, is_merge, author_date, commit_date)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insCommit.Close()

		selCommit, err := tx.PrepareContext(ctx, "SELECT id FROM commits WHERE sha = ?")
		if err != nil {
			return err
		}
		defer selCommit.Close()

		insParent, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO commit_parents (commit_id, position, parent_sha)
			VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insParent.Close()

		for _, r := range records {
			c := r.Commit
			if _, err := insCommit.ExecContext(ctx, c.SHA, boolInt(c.IsMerge), c.AuthorDate.Unix(), c.CommitDate.Unix()); err != nil {
				return fmt.Errorf("failed to insert commit %s: %w", c.SHA, err)
			}
			var id int64
			if err := selCommit.QueryRowContext(ctx, c.SHA).Scan(&id); err != nil {
				return fmt.Errorf("failed to read commit id %s: %w", c.SHA, err)
			}
			ids[c.SHA] = id
			for pos, parent := range r.Parents {
				if _, err := insParent.ExecContext(ctx, id, pos, parent); err != nil {
					return fmt.Errorf("failed to insert parent of %s: %w", c.SHA, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.New(errors.StorageError, "failed to register commits", err)
	}
	return ids, nil
}

// AssignGenerations numbers commits so that every commit sorts after its
// parents: a root is generation 1, any other commit one more than its
// highest parent. ids must be in parent-before-child order. A commit keeps
// no generation while one of its parents is unregistered or unnumbered; a
// later walk that covers the parents fills it in. It returns how many
// commits were numbered.
func (db *DB) AssignGenerations(ctx context.Context, ids []int64) (int, error) {
	assigned := 0
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE commits SET generation = 1 + COALESCE((
				SELECT MAX(p.generation) FROM commit_parents cp
				JOIN commits p ON p.sha = cp.parent_sha
				WHERE cp.commit_id = commits.id), 0)
			WHERE id = ? AND generation IS NULL
			AND NOT EXISTS (
				SELECT 1 FROM commit_parents cp
				LEFT JOIN commits p ON p.sha = cp.parent_sha
				WHERE cp.commit_id = commits.id AND p.generation IS NULL)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			res, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to number commit %d: %w", id, err)
			}
			assigned += affected(res)
		}
		return nil
	})
	if err != nil {
		return 0, errors.New(errors.StorageError, "failed to assign commit generations", err)
	}
	return assigned, nil
}

const commitColumns = `id, sha, is_merge, author_date, commit_date,
	has_change_info, has_presence_info, has_reachability_info, generation`

func scanCommit(row interface{ Scan(...any) error }) (*model.Commit, error) {
	var c model.Commit
	var isMerge, change, presence, reach int
	var author, committed int64
	var generation sql.NullInt64
	if err := row.Scan(&c.ID, &c.SHA, &isMerge, &author, &committed, &change, &presence, &reach, &generation); err != nil {
		return nil, err
	}
	c.Generation = generation.Int64
	c.IsMerge = isMerge != 0
	c.AuthorDate = time.Unix(author, 0).UTC()
	c.CommitDate = time.Unix(committed, 0).UTC()
	c.HasChangeInfo = change != 0
	c.HasPresenceInfo = presence != 0
	c.HasReachabilityInfo = reach != 0
	return &c, nil
}

// CommitBySHA returns the commit with the given full sha, or a
// COMMIT_NOT_FOUND error.
func (db *DB) CommitBySHA(ctx context.Context, sha string) (*model.Commit, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+commitColumns+" FROM commits WHERE sha = ?", sha)
	c, err := scanCommit(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.CommitNotFound, "commit %s has not been ingested", sha)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return c, nil
}

// CommitByID returns the commit with the given id.
func (db *DB) CommitByID(ctx context.Context, id int64) (*model.Commit, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+commitColumns+" FROM commits WHERE id = ?", id)
	c, err := scanCommit(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.CommitNotFound, "commit %d has not been ingested", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return c, nil
}

// CommitByPrefix resolves an abbreviated sha. An ambiguous prefix is an
// error.
func (db *DB) CommitByPrefix(ctx context.Context, prefix string) (*model.Commit, error) {
	if prefix == "" || strings.Trim(strings.ToLower(prefix), "0123456789abcdef") != "" {
		return nil, errors.Newf(errors.CommitNotFound, "%q is not a commit id", prefix)
	}
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+commitColumns+" FROM commits WHERE sha LIKE ? ORDER BY sha LIMIT 2",
		strings.ToLower(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query commits: %w", err)
	}
	defer rows.Close()

	var found []*model.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		found = append(found, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, errors.Newf(errors.CommitNotFound, "no ingested commit matches %s", prefix)
	case 1:
		return found[0], nil
	}
	return nil, errors.Newf(errors.CommitNotFound, "commit prefix %s is ambiguous", prefix)
}

// CommitIDs maps the known shas among shas to their ids.
func (db *DB) CommitIDs(ctx context.Context, shas []string) (map[string]int64, error) {
	out := make(map[string]int64, len(shas))
	for _, sha := range shas {
		if _, ok := out[sha]; ok {
			continue
		}
		var id int64
		err := db.conn.QueryRowContext(ctx, "SELECT id FROM commits WHERE sha = ?", sha).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get commit id: %w", err)
		}
		out[sha] = id
	}
	return out, nil
}

// ParentSHAs returns the parents of a commit in order.
func (db *DB) ParentSHAs(ctx context.Context, commitID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT parent_sha FROM commit_parents WHERE commit_id = ? ORDER BY position", commitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sha string
		if err := rows.Scan(&sha); err != nil {
			return nil, err
		}
		out = append(out, sha)
	}
	return out, rows.Err()
}

// Commits returns every commit ordered by id.
func (db *DB) Commits(ctx context.Context) ([]model.Commit, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+commitColumns+" FROM commits ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query commits: %w", err)
	}
	defer rows.Close()

	var out []model.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateRefs points each ref name at its commit.
func (db *DB) UpdateRefs(ctx context.Context, refs map[string]int64) error {
	now := time.Now().Unix()
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		for name, id := range refs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO refs (name, commit_id, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(name) DO UPDATE SET commit_id = excluded.commit_id, updated_at = excluded.updated_at`,
				name, id, now); err != nil {
				return fmt.Errorf("failed to store ref %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return errors.New(errors.StorageError, "failed to update refs", err)
	}
	return nil
}

// Ref is a stored ref and its target.
type Ref struct {
	Name     string `json:"name" yaml:"name"`
	CommitID int64  `json:"commitId" yaml:"commitId"`
	SHA      string `json:"sha" yaml:"sha"`
}

// Refs returns stored refs ordered by name.
func (db *DB) Refs(ctx context.Context) ([]Ref, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT r.name, r.commit_id, c.sha FROM refs r
		JOIN commits c ON c.id = r.commit_id
		ORDER BY r.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query refs: %w", err)
	}
	defer rows.Close()

	var out []Ref
	for rows.Next() {
		var r Ref
		if err := rows.Scan(&r.Name, &r.CommitID, &r.SHA); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RefCommit returns the id of the commit a stored ref points at.
func (db *DB) RefCommit(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, "SELECT commit_id FROM refs WHERE name = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get ref: %w", err)
	}
	return id, true, nil
}
