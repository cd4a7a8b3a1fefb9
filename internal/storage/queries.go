package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"semhist/internal/errors"
	"semhist/internal/model"
)

// StoredPresence returns the ids present in a file at a commit, ordered by
// id. The file entity itself is included.
func (db *DB) StoredPresence(ctx context.Context, commitID, fileID int64) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT entity_id FROM presence WHERE commit_id = ? AND file_id = ? ORDER BY entity_id",
		commitID, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query presence: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PresenceRow is a presence row joined with its entity.
type PresenceRow struct {
	model.Presence `yaml:",inline"`
	Name           string     `json:"name" yaml:"name"`
	Kind           model.Kind `json:"kind" yaml:"kind"`
	ParentID       int64      `json:"parentId,omitempty" yaml:"parentId,omitempty"`
}

const presenceSelect = `
	SELECT p.commit_id, p.entity_id, p.file_id,
		n.start_byte, n.start_row, n.start_col, n.end_byte, n.end_row, n.end_col,
		b.start_byte, b.start_row, b.start_col, b.end_byte, b.end_row, b.end_col,
		e.name, e.kind, e.parent_id
	FROM presence p
	JOIN ranges n ON n.id = p.name_range_id
	JOIN ranges b ON b.id = p.body_range_id
	JOIN entities e ON e.id = p.entity_id`

func scanPresence(rows *sql.Rows) (PresenceRow, error) {
	var r PresenceRow
	var parent sql.NullInt64
	nr, br := &r.NameRange, &r.BodyRange
	err := rows.Scan(&r.CommitID, &r.EntityID, &r.FileID,
		&nr.StartByte, &nr.Start.Row, &nr.Start.Column, &nr.EndByte, &nr.End.Row, &nr.End.Column,
		&br.StartByte, &br.Start.Row, &br.Start.Column, &br.EndByte, &br.End.Row, &br.End.Column,
		&r.Name, &r.Kind, &parent)
	r.ParentID = parent.Int64
	return r, err
}

func (db *DB) queryPresence(ctx context.Context, where string, args ...any) ([]PresenceRow, error) {
	rows, err := db.conn.QueryContext(ctx, presenceSelect+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query presence: %w", err)
	}
	defer rows.Close()

	var out []PresenceRow
	for rows.Next() {
		r, err := scanPresence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan presence: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PresenceAt lists the entities present at a commit, optionally limited to
// one file, ordered by file then body start.
func (db *DB) PresenceAt(ctx context.Context, commitID, fileID int64) ([]PresenceRow, error) {
	if fileID != 0 {
		return db.queryPresence(ctx, "WHERE p.commit_id = ? AND p.file_id = ? ORDER BY b.start_byte, b.end_byte DESC, p.entity_id",
			commitID, fileID)
	}
	return db.queryPresence(ctx, "WHERE p.commit_id = ? ORDER BY p.file_id, b.start_byte, b.end_byte DESC, p.entity_id",
		commitID)
}

// AllPresence returns every presence row ordered by commit and entity.
func (db *DB) AllPresence(ctx context.Context) ([]PresenceRow, error) {
	return db.queryPresence(ctx, "ORDER BY p.commit_id, p.entity_id")
}

// HistoryRow is one change of an entity.
type HistoryRow struct {
	SHA        string           `json:"sha" yaml:"sha"`
	CommitDate time.Time        `json:"commitDate" yaml:"commitDate"`
	Kind       model.ChangeKind `json:"kind" yaml:"kind"`
	Adds       int              `json:"adds" yaml:"adds"`
	Dels       int              `json:"dels" yaml:"dels"`
}

// History returns the changes of an entity, parents before children.
// Commits without a generation sort last, by date.
func (db *DB) History(ctx context.Context, entityID int64) ([]HistoryRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.sha, c.commit_date, ch.kind, ch.adds, ch.dels
		FROM changes ch JOIN commits c ON c.id = ch.commit_id
		WHERE ch.entity_id = ?
		ORDER BY c.generation IS NULL, c.generation, c.commit_date, c.id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		var date int64
		var kind string
		if err := rows.Scan(&h.SHA, &date, &kind, &h.Adds, &h.Dels); err != nil {
			return nil, err
		}
		h.CommitDate = time.Unix(date, 0).UTC()
		if h.Kind, err = model.ParseChangeKind(kind); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AllChanges returns every change row ordered by commit and entity.
func (db *DB) AllChanges(ctx context.Context) ([]model.Change, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT commit_id, entity_id, kind, adds, dels FROM changes ORDER BY commit_id, entity_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var out []model.Change
	for rows.Next() {
		var c model.Change
		var kind string
		if err := rows.Scan(&c.CommitID, &c.EntityID, &kind, &c.Adds, &c.Dels); err != nil {
			return nil, err
		}
		if c.Kind, err = model.ParseChangeKind(kind); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PresentWithin reports the most recent commit at or before commitID, by
// ancestry, at which the entity was present and whose commit date is no
// older than window before commitID's. It returns nil when there is none.
func (db *DB) PresentWithin(ctx context.Context, entityID, commitID int64, window time.Duration) (*model.Commit, error) {
	var anchor int64
	var reach int
	err := db.conn.QueryRowContext(ctx,
		"SELECT commit_date, has_reachability_info FROM commits WHERE id = ?", commitID).Scan(&anchor, &reach)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.CommitNotFound, "commit %d has not been ingested", commitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read commit: %w", err)
	}
	if reach == 0 {
		return nil, errors.Newf(errors.GraphInvariantViolation, "commit %d has no reachability info", commitID)
	}

	since := anchor - int64(window/time.Second)
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+joinedCommitColumns+`
		FROM presence p JOIN commits c ON c.id = p.commit_id
		WHERE p.entity_id = ? AND c.commit_date >= ?
		AND (p.commit_id = ? OR p.commit_id IN (SELECT target FROM reachability WHERE source = ?))
		ORDER BY c.commit_date DESC, c.id DESC
		LIMIT 1`, entityID, since, commitID, commitID)
	c, err := scanCommit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query presence window: %w", err)
	}
	return c, nil
}

const joinedCommitColumns = `c.id, c.sha, c.is_merge, c.author_date, c.commit_date,
	c.has_change_info, c.has_presence_info, c.has_reachability_info, c.generation`

// StatusSummary reports how far ingestion has progressed.
type StatusSummary struct {
	Commits          int  `json:"commits" yaml:"commits"`
	WithChanges      int  `json:"withChanges" yaml:"withChanges"`
	WithPresence     int  `json:"withPresence" yaml:"withPresence"`
	WithReachability int  `json:"withReachability" yaml:"withReachability"`
	Entities         int  `json:"entities" yaml:"entities"`
	Files            int  `json:"files" yaml:"files"`
	PresenceRows     int  `json:"presenceRows" yaml:"presenceRows"`
	ChangeRows       int  `json:"changeRows" yaml:"changeRows"`
	ReachPairs       int  `json:"reachabilityPairs" yaml:"reachabilityPairs"`
	Deps             int  `json:"deps" yaml:"deps"`
	LastRun          *Run `json:"lastRun,omitempty" yaml:"lastRun,omitempty"`
}

// Status gathers the readiness summary.
func (db *DB) Status(ctx context.Context) (*StatusSummary, error) {
	s := &StatusSummary{}
	counts := []struct {
		dst   *int
		query string
	}{
		{&s.Commits, "SELECT COUNT(*) FROM commits"},
		{&s.WithChanges, "SELECT COUNT(*) FROM commits WHERE has_change_info = 1"},
		{&s.WithPresence, "SELECT COUNT(*) FROM commits WHERE has_presence_info = 1"},
		{&s.WithReachability, "SELECT COUNT(*) FROM commits WHERE has_reachability_info = 1"},
		{&s.Entities, "SELECT COUNT(*) FROM entities"},
		{&s.Files, "SELECT COUNT(*) FROM entities WHERE parent_id IS NULL"},
		{&s.PresenceRows, "SELECT COUNT(*) FROM presence"},
		{&s.ChangeRows, "SELECT COUNT(*) FROM changes"},
		{&s.ReachPairs, "SELECT COUNT(*) FROM reachability"},
		{&s.Deps, "SELECT COUNT(*) FROM deps"},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	run, err := db.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	s.LastRun = run
	return s, nil
}
