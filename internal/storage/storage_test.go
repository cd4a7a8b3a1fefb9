package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	semerrors "semhist/internal/errors"
	"semhist/internal/model"
	"semhist/internal/slogutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), ".semhist", "history.db")
	db, err := Open(dbPath, Options{}, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// registerChain registers a linear history c1 <- c2 <- ... one day apart.
func registerChain(t *testing.T, db *DB, shas ...string) []int64 {
	t.Helper()
	records := make([]CommitRecord, len(shas))
	for i, sha := range shas {
		date := epoch.Add(time.Duration(i) * 24 * time.Hour)
		records[i] = CommitRecord{Commit: model.Commit{SHA: sha, AuthorDate: date, CommitDate: date}}
		if i > 0 {
			records[i].Parents = []string{shas[i-1]}
		}
	}
	ids, err := db.RegisterCommits(context.Background(), records)
	if err != nil {
		t.Fatalf("RegisterCommits() error = %v", err)
	}
	out := make([]int64, len(shas))
	for i, sha := range shas {
		out[i] = ids[sha]
	}
	return out
}

func rows(first, last uint32) model.Range {
	return model.Range{
		StartByte: first * 10,
		EndByte:   (last + 1) * 10,
		Start:     model.Point{Row: first},
		End:       model.Point{Row: last + 1},
	}
}

func fileUnit(commitID int64) *CommitUnit {
	return &CommitUnit{
		CommitID: commitID,
		Entities: []model.Entity{
			{ID: 1, Name: "src/A.java", Kind: model.KindFile},
			{ID: 2, ParentID: 1, Name: "A", Kind: model.KindClass},
			{ID: 3, ParentID: 2, Name: "m", Kind: model.KindMethod},
		},
		Presence: []model.Presence{
			{CommitID: commitID, EntityID: 1, FileID: 1, NameRange: rows(0, 0), BodyRange: rows(0, 9)},
			{CommitID: commitID, EntityID: 2, FileID: 1, NameRange: rows(1, 1), BodyRange: rows(1, 8)},
			{CommitID: commitID, EntityID: 3, FileID: 1, NameRange: rows(2, 2), BodyRange: rows(2, 4)},
		},
		Changes: []model.Change{
			{CommitID: commitID, EntityID: 1, Kind: model.Added, Adds: 2},
			{CommitID: commitID, EntityID: 2, Kind: model.Added, Adds: 5},
			{CommitID: commitID, EntityID: 3, Kind: model.Added, Adds: 3},
		},
		Touched:      []int64{1},
		Reach:        true,
		PresenceDone: true,
		ChangesDone:  true,
	}
}

func TestDatabaseInitialization(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(dbPath, Options{}, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("getSchemaVersion() error = %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(dbPath, Options{}, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	if reopened.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", reopened.Path(), dbPath)
	}
}

func TestRegisterCommits(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ids := registerChain(t, db, "aaaa1111", "bbbb2222")
	again := registerChain(t, db, "aaaa1111", "bbbb2222")
	for i := range ids {
		if ids[i] != again[i] {
			t.Errorf("id of commit %d changed: %d -> %d", i, ids[i], again[i])
		}
	}

	parents, err := db.ParentSHAs(ctx, ids[1])
	if err != nil {
		t.Fatalf("ParentSHAs() error = %v", err)
	}
	if len(parents) != 1 || parents[0] != "aaaa1111" {
		t.Errorf("ParentSHAs() = %v, want [aaaa1111]", parents)
	}

	c, err := db.CommitByPrefix(ctx, "bbbb")
	if err != nil {
		t.Fatalf("CommitByPrefix() error = %v", err)
	}
	if c.ID != ids[1] || !c.CommitDate.Equal(epoch.Add(24*time.Hour)) {
		t.Errorf("CommitByPrefix() = %+v", c)
	}
	if c.Complete() {
		t.Error("freshly registered commit should not be complete")
	}

	if _, err := db.CommitBySHA(ctx, "cccc"); !semerrors.Is(err, semerrors.CommitNotFound) {
		t.Errorf("CommitBySHA(unknown) error = %v, want COMMIT_NOT_FOUND", err)
	}

	all, err := db.Commits(ctx)
	if err != nil {
		t.Fatalf("Commits() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(Commits()) = %d, want 2", len(all))
	}
}

func TestWriteCommitUnit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := registerChain(t, db, "c1", "c2")

	res, err := db.WriteCommitUnit(ctx, fileUnit(ids[0]))
	if err != nil {
		t.Fatalf("WriteCommitUnit() error = %v", err)
	}
	if res.Entities != 3 || res.Presence != 3 || res.Changes != 3 {
		t.Errorf("first write = %+v, want 3 entities, presence and changes", res)
	}

	res, err = db.WriteCommitUnit(ctx, fileUnit(ids[0]))
	if err != nil {
		t.Fatalf("rewrite error = %v", err)
	}
	if *res != (UnitResult{}) {
		t.Errorf("rewrite = %+v, want nothing new", res)
	}

	c, err := db.CommitBySHA(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Complete() {
		t.Errorf("flags after unit = %+v, want all set", c)
	}

	// c2 touches no file: everything is carried over.
	res, err = db.WriteCommitUnit(ctx, &CommitUnit{
		CommitID:     ids[1],
		CarryFrom:    ids[0],
		Parents:      []int64{ids[0]},
		Reach:        true,
		PresenceDone: true,
		ChangesDone:  true,
	})
	if err != nil {
		t.Fatalf("carry write error = %v", err)
	}
	if res.Carried != 3 || res.Reachability != 1 {
		t.Errorf("carry write = %+v, want 3 carried and 1 pair", res)
	}

	stored, err := db.StoredPresence(ctx, ids[1], 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 || stored[0] != 1 || stored[2] != 3 {
		t.Errorf("StoredPresence() = %v, want [1 2 3]", stored)
	}

	present, err := db.PresenceAt(ctx, ids[1], 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(present) != 3 {
		t.Fatalf("len(PresenceAt()) = %d, want 3", len(present))
	}
	if present[2].Name != "m" || present[2].BodyRange != rows(2, 4) {
		t.Errorf("PresenceAt()[2] = %+v", present[2])
	}
}

func TestWriteCommitUnit_CarrySkipsTouched(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := registerChain(t, db, "c1", "c2")

	if _, err := db.WriteCommitUnit(ctx, fileUnit(ids[0])); err != nil {
		t.Fatal(err)
	}
	// The file was deleted in c2: touched, nothing present.
	res, err := db.WriteCommitUnit(ctx, &CommitUnit{
		CommitID:  ids[1],
		CarryFrom: ids[0],
		Touched:   []int64{1},
		Changes: []model.Change{
			{CommitID: ids[1], EntityID: 1, Kind: model.Deleted, Dels: 10},
		},
		PresenceDone: true,
		ChangesDone:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Carried != 0 {
		t.Errorf("Carried = %d, want 0", res.Carried)
	}
	stored, err := db.StoredPresence(ctx, ids[1], 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 0 {
		t.Errorf("StoredPresence() = %v, want none", stored)
	}
}

func TestWriteCommitUnit_Atomic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := registerChain(t, db, "c1")

	u := fileUnit(ids[0])
	// Entity 99 does not exist; the foreign key fails after the entities
	// and presence rows were inserted.
	u.Changes = append(u.Changes, model.Change{CommitID: ids[0], EntityID: 99, Kind: model.Added, Adds: 1})

	_, err := db.WriteCommitUnit(ctx, u)
	if !semerrors.Is(err, semerrors.StorageError) {
		t.Fatalf("WriteCommitUnit() error = %v, want STORAGE_ERROR", err)
	}

	entities, err := db.LoadEntities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 0 {
		t.Errorf("entities after rollback = %v, want none", entities)
	}
	c, err := db.CommitBySHA(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.HasPresenceInfo || c.HasChangeInfo || c.HasReachabilityInfo {
		t.Errorf("flags after rollback = %+v, want all false", c)
	}
}

func TestWriteCommitUnit_RejectsBadPresence(t *testing.T) {
	db := setupTestDB(t)
	ids := registerChain(t, db, "c1")

	u := fileUnit(ids[0])
	u.Presence[2].NameRange = rows(7, 7)
	if _, err := db.WriteCommitUnit(context.Background(), u); !semerrors.Is(err, semerrors.InternalError) {
		t.Errorf("WriteCommitUnit() error = %v, want INTERNAL_ERROR", err)
	}
}

func TestWriteCommitUnit_RejectsEmptyModified(t *testing.T) {
	db := setupTestDB(t)
	ids := registerChain(t, db, "c1")

	u := fileUnit(ids[0])
	u.Changes[2] = model.Change{CommitID: ids[0], EntityID: 3, Kind: model.Modified}
	if _, err := db.WriteCommitUnit(context.Background(), u); !semerrors.Is(err, semerrors.InternalError) {
		t.Errorf("WriteCommitUnit() error = %v, want INTERNAL_ERROR", err)
	}
}

func TestReachability(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := registerChain(t, db, "c1", "c2", "c3", "c4")

	for i := 0; i < 3; i++ {
		u := &CommitUnit{CommitID: ids[i], Reach: true}
		if i > 0 {
			u.Parents = []int64{ids[i-1]}
		}
		if _, err := db.WriteCommitUnit(ctx, u); err != nil {
			t.Fatalf("unit %d error = %v", i, err)
		}
	}

	idx := db.Reachability()
	tests := []struct {
		ancestor, commit int64
		want             bool
	}{
		{ids[0], ids[2], true},
		{ids[1], ids[2], true},
		{ids[2], ids[0], false},
		{ids[1], ids[1], false},
	}
	for _, tt := range tests {
		got, err := idx.IsAncestor(ctx, tt.ancestor, tt.commit)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("IsAncestor(%d, %d) = %v, want %v", tt.ancestor, tt.commit, got, tt.want)
		}
	}

	// Parent 99 was never indexed.
	_, err := db.WriteCommitUnit(ctx, &CommitUnit{CommitID: ids[3], Parents: []int64{99}, Reach: true, PresenceDone: true})
	if !semerrors.Is(err, semerrors.GraphInvariantViolation) {
		t.Fatalf("missing parent error = %v, want GRAPH_INVARIANT_VIOLATION", err)
	}
	c, err := db.CommitBySHA(ctx, "c4")
	if err != nil {
		t.Fatal(err)
	}
	if c.HasReachabilityInfo || c.HasPresenceInfo {
		t.Errorf("flags after violation = %+v, want false", c)
	}

	ready, err := idx.Ready(ctx, []int64{ids[2]})
	if err != nil || !ready {
		t.Errorf("Ready(c3) = %v, %v, want true", ready, err)
	}
}

func TestHistoryAndPresentWithin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := registerChain(t, db, "c1", "c2", "c3")

	if _, err := db.WriteCommitUnit(ctx, fileUnit(ids[0])); err != nil {
		t.Fatal(err)
	}
	if _, err := db.WriteCommitUnit(ctx, &CommitUnit{
		CommitID:  ids[1],
		CarryFrom: ids[0],
		Touched:   []int64{1},
		Presence: []model.Presence{
			{CommitID: ids[1], EntityID: 1, FileID: 1, NameRange: rows(0, 0), BodyRange: rows(0, 9)},
			{CommitID: ids[1], EntityID: 2, FileID: 1, NameRange: rows(1, 1), BodyRange: rows(1, 8)},
		},
		Changes: []model.Change{
			{CommitID: ids[1], EntityID: 2, Kind: model.Modified, Dels: 1},
			{CommitID: ids[1], EntityID: 3, Kind: model.Deleted, Dels: 3},
		},
		Parents:      []int64{ids[0]},
		Reach:        true,
		PresenceDone: true,
		ChangesDone:  true,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.WriteCommitUnit(ctx, &CommitUnit{
		CommitID: ids[2], CarryFrom: ids[1], Parents: []int64{ids[1]}, Reach: true, PresenceDone: true, ChangesDone: true,
	}); err != nil {
		t.Fatal(err)
	}

	history, err := db.History(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Kind != model.Added || history[1].Kind != model.Deleted {
		t.Fatalf("History(m) = %+v, want added then deleted", history)
	}
	if history[1].SHA != "c2" || history[1].Dels != 3 {
		t.Errorf("History(m)[1] = %+v", history[1])
	}

	tests := []struct {
		name    string
		window  time.Duration
		wantSHA string
	}{
		{"within three days", 72 * time.Hour, "c1"},
		{"within one day", 24 * time.Hour, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := db.PresentWithin(ctx, 3, ids[2], tt.window)
			if err != nil {
				t.Fatal(err)
			}
			got := ""
			if c != nil {
				got = c.SHA
			}
			if got != tt.wantSHA {
				t.Errorf("PresentWithin() = %q, want %q", got, tt.wantSHA)
			}
		})
	}

	c, err := db.PresentWithin(ctx, 2, ids[2], time.Hour)
	if err != nil || c == nil || c.SHA != "c3" {
		t.Errorf("PresentWithin(class) = %v, %v, want c3", c, err)
	}
}

func TestPresentWithin_NeedsReachability(t *testing.T) {
	db := setupTestDB(t)
	ids := registerChain(t, db, "c1")

	_, err := db.PresentWithin(context.Background(), 1, ids[0], time.Hour)
	if !semerrors.Is(err, semerrors.GraphInvariantViolation) {
		t.Errorf("PresentWithin() error = %v, want GRAPH_INVARIANT_VIOLATION", err)
	}
	_, err = db.PresentWithin(context.Background(), 1, 42, time.Hour)
	if !semerrors.Is(err, semerrors.CommitNotFound) {
		t.Errorf("PresentWithin(unknown) error = %v, want COMMIT_NOT_FOUND", err)
	}
}

func TestFindEntities(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := registerChain(t, db, "c1")
	if _, err := db.WriteCommitUnit(ctx, fileUnit(ids[0])); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		dotted  string
		kind    model.Kind
		wantID  int64
		wantErr semerrors.ErrorCode
	}{
		{"file", "src/A.java", "", "", 1, ""},
		{"method", "src/A.java", "A.m", "", 3, ""},
		{"kind filter", "src/A.java", "A.m", model.KindMethod, 3, ""},
		{"wrong kind", "src/A.java", "A.m", model.KindField, 0, semerrors.EntityNotFound},
		{"missing file", "src/B.java", "", "", 0, semerrors.EntityNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.FindEntities(ctx, tt.path, tt.dotted, tt.kind)
			if tt.wantErr != "" {
				if !semerrors.Is(err, tt.wantErr) {
					t.Errorf("FindEntities() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].ID != tt.wantID {
				t.Errorf("FindEntities() = %v, want id %d", got, tt.wantID)
			}
		})
	}

	chain, err := db.EntityPath(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := QualifiedName(chain); got != "A.m" {
		t.Errorf("QualifiedName() = %q, want %q", got, "A.m")
	}
	if _, err := db.Entity(ctx, 77); !semerrors.Is(err, semerrors.EntityNotFound) {
		t.Errorf("Entity(77) error = %v, want ENTITY_NOT_FOUND", err)
	}
}

func TestRefs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := registerChain(t, db, "c1", "c2")

	if err := db.UpdateRefs(ctx, map[string]int64{"refs/heads/main": ids[0]}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateRefs(ctx, map[string]int64{"refs/heads/main": ids[1]}); err != nil {
		t.Fatal(err)
	}
	id, ok, err := db.RefCommit(ctx, "refs/heads/main")
	if err != nil || !ok || id != ids[1] {
		t.Errorf("RefCommit() = %d, %v, %v, want %d", id, ok, err, ids[1])
	}
	refs, err := db.Refs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].SHA != "c2" {
		t.Errorf("Refs() = %+v", refs)
	}
}

func TestRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	run, err := db.StartRun(ctx, "0.4.0")
	if err != nil {
		t.Fatal(err)
	}
	run.CommitsSeen = 5
	run.CommitsIngested = 4
	run.Warnings = 1
	if err := db.FinishRun(ctx, run, errors.New("boom")); err != nil {
		t.Fatal(err)
	}

	last, err := db.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last.ID != run.ID || last.Status != RunFailed || last.Error != "boom" {
		t.Errorf("LastRun() = %+v", last)
	}
	if last.FinishedAt == nil || last.CommitsIngested != 4 {
		t.Errorf("LastRun() counters = %+v", last)
	}

	runs, err := db.Runs(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("len(Runs()) = %d, want 1", len(runs))
	}
}

func TestDepsAndStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := registerChain(t, db, "c1")
	if _, err := db.WriteCommitUnit(ctx, fileUnit(ids[0])); err != nil {
		t.Fatal(err)
	}

	deps := []Dep{
		{CommitID: ids[0], SourceID: 3, TargetID: 2, Kind: "Call", Line: 3},
		{CommitID: ids[0], SourceID: 3, TargetID: 2, Kind: "Call", Line: 3},
	}
	n, err := db.WriteDeps(ctx, deps)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("WriteDeps() = %d, want 1", n)
	}
	stored, err := db.Deps(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].Kind != "Call" {
		t.Errorf("Deps() = %+v", stored)
	}
	all, err := db.AllDeps(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0] != stored[0] {
		t.Errorf("AllDeps() = %+v, want %+v", all, stored)
	}

	s, err := db.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := StatusSummary{
		Commits: 1, WithChanges: 1, WithPresence: 1, WithReachability: 1,
		Entities: 3, Files: 1, PresenceRows: 3, ChangeRows: 3, Deps: 1,
	}
	if *s != want {
		t.Errorf("Status() = %+v, want %+v", s, want)
	}
}

func TestCommitByID(t *testing.T) {
	db := setupTestDB(t)
	ids := registerChain(t, db, "aaa111", "bbb222")

	c, err := db.CommitByID(context.Background(), ids[1])
	if err != nil {
		t.Fatalf("CommitByID() error = %v", err)
	}
	if c.SHA != "bbb222" {
		t.Errorf("SHA = %q, want %q", c.SHA, "bbb222")
	}
	if _, err := db.CommitByID(context.Background(), 999); !semerrors.Is(err, semerrors.CommitNotFound) {
		t.Errorf("CommitByID(999) error = %v, want COMMIT_NOT_FOUND", err)
	}
}

func TestAssignGenerations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// A window that saw only the tip registers it before its ancestors.
	registered, err := db.RegisterCommits(ctx, []CommitRecord{{
		Commit:  model.Commit{SHA: "c3", AuthorDate: epoch, CommitDate: epoch},
		Parents: []string{"c2"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	tip := []int64{registered["c3"]}
	n, err := db.AssignGenerations(ctx, tip)
	if err != nil {
		t.Fatalf("AssignGenerations(tip) error = %v", err)
	}
	if n != 0 {
		t.Errorf("AssignGenerations(tip) = %d, want 0 while c2 is unknown", n)
	}

	ids := registerChain(t, db, "c1", "c2")
	n, err = db.AssignGenerations(ctx, append(ids, tip[0]))
	if err != nil {
		t.Fatalf("AssignGenerations() error = %v", err)
	}
	if n != 3 {
		t.Errorf("AssignGenerations() = %d, want 3", n)
	}

	for sha, want := range map[string]int64{"c1": 1, "c2": 2, "c3": 3} {
		c, err := db.CommitBySHA(ctx, sha)
		if err != nil {
			t.Fatal(err)
		}
		if c.Generation != want {
			t.Errorf("%s generation = %d, want %d", sha, c.Generation, want)
		}
	}

	n, err = db.AssignGenerations(ctx, append(ids, tip[0]))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second AssignGenerations() = %d, want 0", n)
	}
}
