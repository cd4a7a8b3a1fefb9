package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"semhist/internal/config"
	"semhist/internal/errors"
	"semhist/internal/lang"
	"semhist/internal/paths"
)

var (
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize semhist in the current repository",
	Long: `Creates a .semhist/ directory with a default config.json, a languages.toml
template holding the built-in capture rules, and an empty history database.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Rewrite config.json and languages.toml with defaults")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := getRepoRoot()
	if err != nil {
		return err
	}

	if paths.IsInitialized(root) && !initForce {
		// Already initialized is success
		fmt.Println("semhist already initialized.")
		fmt.Printf("Configuration at: %s\n", paths.ConfigPath(root))
		fmt.Println("\nRun 'semhist init --force' to rewrite the defaults.")
		return nil
	}

	if err := os.MkdirAll(paths.StateDir(root), 0755); err != nil {
		return errors.New(errors.InternalError, "failed to create .semhist directory", err)
	}
	cfg := config.DefaultConfig()
	if err := cfg.Save(root); err != nil {
		return errors.New(errors.InternalError, "failed to write config file", err)
	}
	if err := lang.WriteTemplate(paths.LanguagesPath(root), lang.BuiltinTags()...); err != nil {
		return errors.New(errors.InternalError, "failed to write languages template", err)
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
	e.logger.Info("semhist initialized", "root", root, "db", db.Path())

	fmt.Println("semhist initialized successfully!")
	fmt.Printf("Configuration written to: %s\n", paths.ConfigPath(root))
	fmt.Printf("Capture rules template:   %s\n", paths.LanguagesPath(root))
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'semhist ingest' to mine the history of HEAD")
	fmt.Println("  2. Run 'semhist status' to see what was recorded")
	return nil
}
