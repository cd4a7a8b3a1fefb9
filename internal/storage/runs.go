package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the state of an ingestion run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run records one ingestion invocation.
type Run struct {
	ID              string     `json:"id" yaml:"id"`
	StartedAt       time.Time  `json:"startedAt" yaml:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	ToolVersion     string     `json:"toolVersion" yaml:"toolVersion"`
	Status          RunStatus  `json:"status" yaml:"status"`
	CommitsSeen     int        `json:"commitsSeen" yaml:"commitsSeen"`
	CommitsIngested int        `json:"commitsIngested" yaml:"commitsIngested"`
	Warnings        int        `json:"warnings" yaml:"warnings"`
	Error           string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// StartRun inserts a running run and returns it.
func (db *DB) StartRun(ctx context.Context, toolVersion string) (*Run, error) {
	run := &Run{
		ID:          uuid.New().String(),
		StartedAt:   time.Now().UTC(),
		ToolVersion: toolVersion,
		Status:      RunRunning,
	}
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, tool_version, status) VALUES (?, ?, ?, ?)",
		run.ID, run.StartedAt.Unix(), run.ToolVersion, string(run.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counters of a run. A non-nil runErr marks the
// run failed.
func (db *DB) FinishRun(ctx context.Context, run *Run, runErr error) error {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = RunSucceeded
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	}

	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, commits_seen = ?,
			commits_ingested = ?, warnings = ?, error = ?
		WHERE id = ?`,
		now.Unix(), string(run.Status), run.CommitsSeen, run.CommitsIngested,
		run.Warnings, errText, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, tool_version, status,
	commits_seen, commits_ingested, warnings, error`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var started int64
	var finished sql.NullInt64
	var status string
	var errText sql.NullString
	if err := row.Scan(&r.ID, &started, &finished, &r.ToolVersion, &status,
		&r.CommitsSeen, &r.CommitsIngested, &r.Warnings, &errText); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		t := time.Unix(finished.Int64, 0).UTC()
		r.FinishedAt = &t
	}
	r.Status = RunStatus(status)
	r.Error = errText.String
	return &r, nil
}

// Runs lists runs, newest first. A limit <= 0 returns all of them.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// LastRun returns the most recent run, or nil if none was recorded.
func (db *DB) LastRun(ctx context.Context) (*Run, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1")
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}
	return r, nil
}
