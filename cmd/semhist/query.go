package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"semhist/internal/errors"
	"semhist/internal/git"
	"semhist/internal/model"
	"semhist/internal/paths"
	"semhist/internal/storage"
)

var (
	historyKind   string
	historyFormat string

	presenceKind   string
	presenceWithin string
	presenceFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history <path> [name]",
	Short: "Show the changes of an entity",
	Long: `Lists every recorded change of an entity in commit order. The entity is a file
path, optionally followed by a dotted name below it (Outer.Inner.method).

Examples:
  semhist history src/main/java/App.java
  semhist history src/main/java/App.java App.run
  semhist history pkg/server.go Server.Start --kind method`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runHistory,
}

var presenceCmd = &cobra.Command{
	Use:   "presence <commit> [path [name]]",
	Short: "Show the entities present at a commit",
	Long: `Lists the entities present at a commit, optionally limited to one file. With a
name and --within, reports the latest commit at or before <commit>, by ancestry,
that still had the entity and is no older than the window.

Examples:
  semhist presence HEAD
  semhist presence v2.0 src/App.java
  semhist presence v2.0 src/App.java App.legacy --within 6months`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runPresence,
}

func init() {
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Entity kind when the name is overloaded (method, field, ...)")
	historyCmd.Flags().StringVar(&historyFormat, "format", "human", "Output format (human, json, yaml)")
	rootCmd.AddCommand(historyCmd)

	presenceCmd.Flags().StringVar(&presenceKind, "kind", "", "Entity kind when the name is overloaded")
	presenceCmd.Flags().StringVar(&presenceWithin, "within", "", "Look back this long through ancestors (e.g. 90d, 1year)")
	presenceCmd.Flags().StringVar(&presenceFormat, "format", "human", "Output format (human, json, yaml)")
	rootCmd.AddCommand(presenceCmd)
}

// HistoryResponseCLI is the history of one entity.
type HistoryResponseCLI struct {
	Entity  model.Entity         `json:"entity" yaml:"entity"`
	Name    string               `json:"name" yaml:"name"`
	Changes []storage.HistoryRow `json:"changes" yaml:"changes"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(historyFormat)
	if err != nil {
		return err
	}
	e, err := loadEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()
	db, err := e.openDB()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	name := ""
	if len(args) == 2 {
		name = args[1]
	}
	ent, err := resolveEntity(ctx, db, e.root, args[0], name, historyKind)
	if err != nil {
		return err
	}
	chain, err := db.EntityPath(ctx, ent.ID)
	if err != nil {
		return err
	}
	rows, err := db.History(ctx, ent.ID)
	if err != nil {
		return err
	}

	resp := &HistoryResponseCLI{Entity: ent, Name: storage.QualifiedName(chain), Changes: rows}
	if format != FormatHuman {
		return writeStructured(os.Stdout, resp, format)
	}

	fmt.Printf("%s %s (%s)\n\n", ent.Kind, resp.Name, args[0])
	if len(rows) == 0 {
		fmt.Println("No recorded changes.")
		return nil
	}
	adds, dels := 0, 0
	for _, r := range rows {
		fmt.Printf("  %s  %s  %-8s +%-5d -%d\n",
			shortSHA(r.SHA), r.CommitDate.Format("2006-01-02"), r.Kind.String(), r.Adds, r.Dels)
		adds += r.Adds
		dels += r.Dels
	}
	fmt.Printf("\n%d changes, +%d -%d\n", len(rows), adds, dels)
	return nil
}

// PresenceResponseCLI lists entities at a commit.
type PresenceResponseCLI struct {
	Commit   *model.Commit         `json:"commit" yaml:"commit"`
	Presence []storage.PresenceRow `json:"presence" yaml:"presence"`
}

// WithinResponseCLI answers a windowed presence query.
type WithinResponseCLI struct {
	Commit  *model.Commit `json:"commit" yaml:"commit"`
	Entity  model.Entity  `json:"entity" yaml:"entity"`
	Window  string        `json:"window" yaml:"window"`
	Present bool          `json:"present" yaml:"present"`
	At      *model.Commit `json:"at,omitempty" yaml:"at,omitempty"`
}

func runPresence(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(presenceFormat)
	if err != nil {
		return err
	}
	if presenceWithin != "" && len(args) < 2 {
		return errors.Newf(errors.InvalidConfig, "--within needs an entity path")
	}
	e, err := loadEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()
	db, err := e.openDB()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	commit, err := resolveCommit(ctx, db, args[0])
	if err != nil {
		return err
	}

	if presenceWithin != "" {
		name := ""
		if len(args) == 3 {
			name = args[2]
		}
		return presenceWithinWindow(ctx, db, e.root, commit, args[1], name, format)
	}

	var fileID int64
	if len(args) >= 2 {
		files, err := db.FindEntities(ctx, repoPath(e.root, args[1]), "", "")
		if err != nil {
			return err
		}
		fileID = files[0].ID
	}
	rows, err := db.PresenceAt(ctx, commit.ID, fileID)
	if err != nil {
		return err
	}
	if len(args) == 3 {
		ent, err := resolveEntity(ctx, db, e.root, args[1], args[2], presenceKind)
		if err != nil {
			return err
		}
		filtered := rows[:0]
		for _, r := range rows {
			if r.EntityID == ent.ID {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	resp := &PresenceResponseCLI{Commit: commit, Presence: rows}
	if format != FormatHuman {
		return writeStructured(os.Stdout, resp, format)
	}
	if !commit.HasPresenceInfo {
		fmt.Printf("Commit %s has no presence info yet.\n", shortSHA(commit.SHA))
		return nil
	}
	fmt.Printf("Presence at %s (%s)\n\n", shortSHA(commit.SHA), commit.CommitDate.Format("2006-01-02"))
	for _, r := range rows {
		indent := "  "
		if r.ParentID == 0 {
			indent = ""
		}
		fmt.Printf("%s%-10s %-40s lines %d-%d\n", indent, r.Kind, r.Name, r.BodyRange.FirstLine(), r.BodyRange.LastLine())
	}
	return nil
}

func presenceWithinWindow(ctx context.Context, db *storage.DB, root string, commit *model.Commit, path, name string, format OutputFormat) error {
	window, err := git.ParseDuration(presenceWithin)
	if err != nil {
		return errors.New(errors.InvalidConfig, "invalid --within", err)
	}
	ent, err := resolveEntity(ctx, db, root, path, name, presenceKind)
	if err != nil {
		return err
	}
	at, err := db.PresentWithin(ctx, ent.ID, commit.ID, window)
	if err != nil {
		return err
	}

	resp := &WithinResponseCLI{Commit: commit, Entity: ent, Window: presenceWithin, Present: at != nil, At: at}
	if format != FormatHuman {
		return writeStructured(os.Stdout, resp, format)
	}
	if at == nil {
		fmt.Printf("%s %s was not present within %s before %s\n", ent.Kind, ent.Name, presenceWithin, shortSHA(commit.SHA))
		return nil
	}
	fmt.Printf("%s %s was present at %s (%s)\n", ent.Kind, ent.Name, shortSHA(at.SHA), at.CommitDate.Format("2006-01-02"))
	return nil
}

// resolveCommit accepts a stored ref (HEAD, main, refs/tags/v1) or a sha
// prefix.
func resolveCommit(ctx context.Context, db *storage.DB, ref string) (*model.Commit, error) {
	candidates := []string{ref}
	if !strings.HasPrefix(ref, "refs/") && ref != "HEAD" {
		candidates = append(candidates, "refs/heads/"+ref, "refs/tags/"+ref, "refs/remotes/"+ref)
	}
	for _, name := range candidates {
		id, ok, err := db.RefCommit(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			return db.CommitByID(ctx, id)
		}
	}
	return db.CommitByPrefix(ctx, ref)
}

// resolveEntity picks exactly one entity, asking for --kind on overloads.
func resolveEntity(ctx context.Context, db *storage.DB, root, path, name, kind string) (model.Entity, error) {
	found, err := db.FindEntities(ctx, repoPath(root, path), name, model.Kind(kind))
	if err != nil {
		return model.Entity{}, err
	}
	if len(found) > 1 {
		kinds := make([]string, len(found))
		for i, f := range found {
			kinds[i] = fmt.Sprintf("%s#%d", f.Kind, f.ID)
		}
		return model.Entity{}, errors.Newf(errors.EntityNotFound,
			"%s is ambiguous (%s); pass --kind", name, strings.Join(kinds, ", "))
	}
	return found[0], nil
}

func repoPath(root, p string) string {
	if rel, err := paths.ToRepoPath(p, root); err == nil {
		return rel
	}
	return p
}
