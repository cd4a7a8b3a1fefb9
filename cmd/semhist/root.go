package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"semhist/internal/config"
	"semhist/internal/errors"
	"semhist/internal/paths"
	"semhist/internal/slogutil"
	"semhist/internal/storage"
	"semhist/internal/version"
)

var (
	repoFlag   string
	verbosity  int
	quietFlag  bool
	jsonErrors bool
)

var rootCmd = &cobra.Command{
	Use:   "semhist",
	Short: "semhist - entity-level git history miner",
	Long: `semhist walks a git history and records, for every commit, which classes,
methods and other syntactic entities were present, which of them changed and by
how many lines. Queries over the resulting database answer "when did this method
last change" or "was this entity present in the six months before that release".`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("semhist version {{.Version}}\n")
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&repoFlag, "repo", "C", "", "Repository root (default: the enclosing git work tree)")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	pf.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress log output")
	pf.BoolVar(&jsonErrors, "json-errors", false, "Print errors as JSON")
	pf.String("log-file", "", "Also append logs to this file")
	pf.String("db", "", "History database path (default: .semhist/history.db)")
}

// getRepoRoot resolves --repo or the git work tree enclosing the working
// directory.
func getRepoRoot() (string, error) {
	start := repoFlag
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", errors.New(errors.InternalError, "failed to get current directory", err)
		}
		start = cwd
	}
	root, err := paths.FindRepoRoot(start)
	if err != nil {
		return "", errors.New(errors.GitError, "not inside a git repository", err)
	}
	return root, nil
}

// newContext returns a context cancelled on interrupt.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// cmdEnv is what every command needs once the repository is located.
type cmdEnv struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	closers []io.Closer
}

// loadEnv locates the repository, loads its configuration with the global
// flags bound over it, and builds the logger. Commands that read the
// history database require an initialized repository.
func loadEnv(cmd *cobra.Command, requireInit bool, opts ...config.Option) (*cmdEnv, error) {
	root, err := getRepoRoot()
	if err != nil {
		return nil, err
	}
	if requireInit && !paths.IsInitialized(root) {
		return nil, errors.Newf(errors.NotInitialized, "%s has no %s directory", root, paths.StateDirName)
	}

	opts = append(opts,
		config.WithFlag("logging.file", cmd.Flag("log-file")),
		config.WithFlag("storage.dbPath", cmd.Flag("db")),
	)
	cfg, err := config.LoadConfig(root, opts...)
	if err != nil {
		return nil, errors.New(errors.InvalidConfig, "failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(errors.InvalidConfig, "invalid configuration", err)
	}

	e := &cmdEnv{root: root, cfg: cfg}
	level := slogutil.LevelFromVerbosity(verbosity, quietFlag, slogutil.LevelFromString(cfg.Logging.Level))
	if cfg.Logging.Level == "silent" && verbosity == 0 {
		level = slogutil.LevelSilent
	}
	if cfg.Logging.File != "" {
		logPath := cfg.Logging.File
		if !filepath.IsAbs(logPath) {
			logPath = paths.JoinRepoPath(root, logPath)
		}
		logger, closer, err := slogutil.NewFileLogger(logPath, level)
		if err != nil {
			return nil, errors.New(errors.InvalidConfig, "failed to open log file", err)
		}
		e.logger = logger
		e.closers = append(e.closers, closer)
	} else {
		e.logger = slogutil.NewLogger(os.Stderr, level)
	}
	return e, nil
}

// openDB opens the configured history database.
func (e *cmdEnv) openDB() (*storage.DB, error) {
	db, err := storage.Open(e.cfg.DBPath(e.root), storage.Options{
		BusyTimeout: time.Duration(e.cfg.Storage.BusyTimeoutMs) * time.Millisecond,
	}, e.logger)
	if err != nil {
		return nil, errors.New(errors.StorageError, "failed to open history database", err)
	}
	e.closers = append(e.closers, db)
	return db, nil
}

func (e *cmdEnv) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			e.logger.Warn("Failed to close", "error", err.Error())
		}
	}
}
