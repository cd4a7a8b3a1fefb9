package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"semhist/internal/errors"
	"semhist/internal/model"
	"semhist/internal/reachability"
)

// CommitUnit holds every derived fact of one commit. It is written in a
// single transaction; readiness flags are raised only for the stages the
// unit marks done.
type CommitUnit struct {
	CommitID int64
	// Entities are ids allocated while analysing this commit.
	Entities []model.Entity
	Presence []model.Presence
	Changes  []model.Change

	// CarryFrom is the commit whose presence rows are copied for every file
	// not listed in Touched. Zero copies nothing.
	CarryFrom int64
	// Touched lists the file entities analysed in this commit, including
	// deleted ones.
	Touched []int64

	// Parents are the parent commit ids fed to the reachability index when
	// Reach is set.
	Parents []int64
	Reach   bool

	PresenceDone bool
	ChangesDone  bool
}

// UnitResult counts the rows a unit added.
type UnitResult struct {
	Entities     int
	Presence     int
	Carried      int
	Changes      int
	Reachability int
}

// WriteCommitUnit stores u atomically. Rows are insert-only; rewriting a
// unit that was already stored adds nothing.
func (db *DB) WriteCommitUnit(ctx context.Context, u *CommitUnit) (*UnitResult, error) {
	res := &UnitResult{}
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		w := &unitWriter{ctx: ctx, tx: tx, ranges: make(map[model.Range]int64)}
		defer w.close()

		n, err := w.entities(u.Entities)
		if err != nil {
			return err
		}
		res.Entities = n

		if res.Presence, err = w.presence(u.CommitID, u.Presence); err != nil {
			return err
		}
		if u.CarryFrom != 0 {
			if res.Carried, err = w.carry(u.CommitID, u.CarryFrom, u.Touched); err != nil {
				return err
			}
		}
		if res.Changes, err = w.changes(u.Changes); err != nil {
			return err
		}
		if u.Reach {
			idx := reachability.New(&sqlReachability{q: tx})
			if res.Reachability, err = idx.Extend(ctx, u.CommitID, u.Parents); err != nil {
				return err
			}
		}
		return w.flags(u)
	})
	if err != nil {
		if errors.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errors.New(errors.StorageError, fmt.Sprintf("failed to write commit %d", u.CommitID), err)
	}
	return res, nil
}

type unitWriter struct {
	ctx    context.Context
	tx     *sql.Tx
	ranges map[model.Range]int64

	insRange *sql.Stmt
	selRange *sql.Stmt
}

func (w *unitWriter) close() {
	if w.insRange != nil {
		w.insRange.Close()
	}
	if w.selRange != nil {
		w.selRange.Close()
	}
}

func (w *unitWriter) entities(entities []model.Entity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	stmt, err := w.tx.PrepareContext(w.ctx,
		"INSERT OR IGNORE INTO entities (id, parent_id, name, kind) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, e := range entities {
		var parent any
		if e.ParentID != 0 {
			parent = e.ParentID
		}
		r, err := stmt.ExecContext(w.ctx, e.ID, parent, e.Name, string(e.Kind))
		if err != nil {
			return 0, fmt.Errorf("failed to insert entity %d: %w", e.ID, err)
		}
		n += affected(r)
	}
	return n, nil
}

// rangeID returns the id of the stored range equal to r, inserting it
// first if needed.
func (w *unitWriter) rangeID(r model.Range) (int64, error) {
	if id, ok := w.ranges[r]; ok {
		return id, nil
	}
	var err error
	if w.insRange == nil {
		if w.insRange, err = w.tx.PrepareContext(w.ctx, `
			INSERT OR IGNORE INTO ranges (start_byte, start_row, start_col, end_byte, end_row, end_col)
			VALUES (?, ?, ?, ?, ?, ?)`); err != nil {
			return 0, err
		}
		if w.selRange, err = w.tx.PrepareContext(w.ctx, `
			SELECT id FROM ranges WHERE start_byte = ? AND start_row = ? AND start_col = ?
			AND end_byte = ? AND end_row = ? AND end_col = ?`); err != nil {
			return 0, err
		}
	}
	args := []any{r.StartByte, r.Start.Row, r.Start.Column, r.EndByte, r.End.Row, r.End.Column}
	if _, err := w.insRange.ExecContext(w.ctx, args...); err != nil {
		return 0, fmt.Errorf("failed to insert range: %w", err)
	}
	var id int64
	if err := w.selRange.QueryRowContext(w.ctx, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read range id: %w", err)
	}
	w.ranges[r] = id
	return id, nil
}

func (w *unitWriter) presence(commitID int64, rows []model.Presence) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := w.tx.PrepareContext(w.ctx, `
		INSERT OR IGNORE INTO presence (commit_id, entity_id, file_id, name_range_id, body_range_id)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, p := range rows {
		if !p.BodyRange.Contains(p.NameRange) {
			return 0, errors.Newf(errors.InternalError,
				"entity %d at commit %d: body range does not contain name range", p.EntityID, commitID)
		}
		nameID, err := w.rangeID(p.NameRange)
		if err != nil {
			return 0, err
		}
		bodyID, err := w.rangeID(p.BodyRange)
		if err != nil {
			return 0, err
		}
		r, err := stmt.ExecContext(w.ctx, commitID, p.EntityID, p.FileID, nameID, bodyID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert presence of %d: %w", p.EntityID, err)
		}
		n += affected(r)
	}
	return n, nil
}

func (w *unitWriter) carry(commitID, from int64, touched []int64) (int, error) {
	if touched == nil {
		touched = []int64{}
	}
	ids, err := json.Marshal(touched)
	if err != nil {
		return 0, err
	}
	r, err := w.tx.ExecContext(w.ctx, `
		INSERT OR IGNORE INTO presence (commit_id, entity_id, file_id, name_range_id, body_range_id)
		SELECT ?, entity_id, file_id, name_range_id, body_range_id
		FROM presence
		WHERE commit_id = ? AND file_id NOT IN (SELECT value FROM json_each(?))`,
		commitID, from, string(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to carry presence from %d: %w", from, err)
	}
	return affected(r), nil
}

func (w *unitWriter) changes(rows []model.Change) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := w.tx.PrepareContext(w.ctx, `
		INSERT OR IGNORE INTO changes (commit_id, entity_id, kind, adds, dels)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, c := range rows {
		if c.Kind == model.Modified && c.Adds+c.Dels == 0 {
			return 0, errors.Newf(errors.InternalError,
				"entity %d at commit %d: modified without changed lines", c.EntityID, c.CommitID)
		}
		r, err := stmt.ExecContext(w.ctx, c.CommitID, c.EntityID, string(c.Kind), c.Adds, c.Dels)
		if err != nil {
			return 0, fmt.Errorf("failed to insert change of %d: %w", c.EntityID, err)
		}
		n += affected(r)
	}
	return n, nil
}

func (w *unitWriter) flags(u *CommitUnit) error {
	if u.PresenceDone {
		if _, err := w.tx.ExecContext(w.ctx,
			"UPDATE commits SET has_presence_info = 1 WHERE id = ? AND has_presence_info = 0", u.CommitID); err != nil {
			return err
		}
	}
	if u.ChangesDone {
		if _, err := w.tx.ExecContext(w.ctx,
			"UPDATE commits SET has_change_info = 1 WHERE id = ? AND has_change_info = 0", u.CommitID); err != nil {
			return err
		}
	}
	return nil
}

func affected(r sql.Result) int {
	n, err := r.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

// sqlReachability keeps closure pairs in the reachability table.
type sqlReachability struct {
	q querier
}

func (s *sqlReachability) Indexed(ctx context.Context, commit int64) (bool, error) {
	var flag int
	err := s.q.QueryRowContext(ctx, "SELECT has_reachability_info FROM commits WHERE id = ?", commit).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read reachability flag: %w", err)
	}
	return flag != 0, nil
}

func (s *sqlReachability) Reaches(ctx context.Context, source, target int64) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx,
		"SELECT 1 FROM reachability WHERE source = ? AND target = ?", source, target).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query reachability: %w", err)
	}
	return true, nil
}

func (s *sqlReachability) Record(ctx context.Context, commit int64, parents []int64) (int, error) {
	if parents == nil {
		parents = []int64{}
	}
	ids, err := json.Marshal(parents)
	if err != nil {
		return 0, err
	}
	direct, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO reachability (source, target)
		SELECT ?, value FROM json_each(?)`, commit, string(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to record parents of %d: %w", commit, err)
	}
	inherited, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO reachability (source, target)
		SELECT ?, target FROM reachability
		WHERE source IN (SELECT value FROM json_each(?))`, commit, string(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to record ancestors of %d: %w", commit, err)
	}
	if _, err := s.q.ExecContext(ctx,
		"UPDATE commits SET has_reachability_info = 1 WHERE id = ? AND has_reachability_info = 0", commit); err != nil {
		return 0, fmt.Errorf("failed to set reachability flag: %w", err)
	}
	return affected(direct) + affected(inherited), nil
}

// Reachability returns an index over the stored closure for queries.
func (db *DB) Reachability() *reachability.Index {
	return reachability.New(&sqlReachability{q: db.conn})
}
