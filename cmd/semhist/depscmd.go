package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"semhist/internal/deps"
	"semhist/internal/storage"
)

var (
	depsFormat string
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Import and list entity dependencies",
}

var depsImportCmd = &cobra.Command{
	Use:   "import <commit> <depends.json>",
	Short: "Import Depends output for a commit",
	Long: `Reads the JSON written by the Depends extractor for a checkout of <commit> and
stores every edge whose two ends resolve to entities present at that commit. An
endpoint resolves to the entity of its file whose body spans its line; overlaps
are settled by name, then by depth.`,
	Args: cobra.ExactArgs(2),
	RunE: runDepsImport,
}

var depsListCmd = &cobra.Command{
	Use:   "list <commit>",
	Short: "List the dependencies recorded at a commit",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepsList,
}

func init() {
	depsImportCmd.Flags().StringVar(&depsFormat, "format", "human", "Output format (human, json, yaml)")
	depsListCmd.Flags().StringVar(&depsFormat, "format", "human", "Output format (human, json, yaml)")
	depsCmd.AddCommand(depsImportCmd, depsListCmd)
	rootCmd.AddCommand(depsCmd)
}

func runDepsImport(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(depsFormat)
	if err != nil {
		return err
	}
	edges, err := deps.LoadFile(args[1])
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

	commit, err := resolveCommit(ctx, db, args[0])
	if err != nil {
		return err
	}
	res, err := deps.NewImporter(db, e.root, e.logger).Import(ctx, commit, edges)
	if err != nil {
		return err
	}

	if format != FormatHuman {
		return writeStructured(os.Stdout, res, format)
	}
	fmt.Printf("Imported %d of %d dependencies at %s", res.Stored, res.Read, shortSHA(commit.SHA))
	if res.Unresolved > 0 {
		fmt.Printf(" (%d could not be resolved)", res.Unresolved)
	}
	fmt.Println()
	return nil
}

// DepCLI is a dependency with both ends named.
type DepCLI struct {
	storage.Dep `yaml:",inline"`
	Source      string `json:"source" yaml:"source"`
	Target      string `json:"target" yaml:"target"`
}

func runDepsList(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(depsFormat)
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

	commit, err := resolveCommit(ctx, db, args[0])
	if err != nil {
		return err
	}
	edges, err := db.Deps(ctx, commit.ID)
	if err != nil {
		return err
	}

	names := make(map[int64]string)
	name := func(id int64) (string, error) {
		if n, ok := names[id]; ok {
			return n, nil
		}
		chain, err := db.EntityPath(ctx, id)
		if err != nil {
			return "", err
		}
		n := chain[0].Name
		if q := storage.QualifiedName(chain); len(chain) > 1 {
			n += ":" + q
		}
		names[id] = n
		return n, nil
	}

	out := make([]DepCLI, 0, len(edges))
	for _, d := range edges {
		src, err := name(d.SourceID)
		if err != nil {
			return err
		}
		dst, err := name(d.TargetID)
		if err != nil {
			return err
		}
		out = append(out, DepCLI{Dep: d, Source: src, Target: dst})
	}

	if format != FormatHuman {
		return writeStructured(os.Stdout, out, format)
	}
	for _, d := range out {
		fmt.Printf("%-10s %s -> %s (line %d)\n", d.Kind, d.Source, d.Target, d.Line)
	}
	fmt.Printf("\n%d dependencies at %s\n", len(out), shortSHA(commit.SHA))
	return nil
}
