// Package paths locates the .semhist state directory and normalizes
// repository-relative paths.
package paths

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirName is the per-repository state directory
	StateDirName = ".semhist"
	// ConfigFileName is the config file inside the state directory
	ConfigFileName = "config.json"
	// DBFileName is the default history database
	DBFileName = "history.db"
	// LanguagesFileName holds capture rule overrides
	LanguagesFileName = "languages.toml"
)

// ErrNoRepository is returned when no enclosing git work tree is found.
var ErrNoRepository = errors.New("not inside a git repository")

// StateDir returns <repoRoot>/.semhist
func StateDir(repoRoot string) string {
	return filepath.Join(repoRoot, StateDirName)
}

// ConfigPath returns <repoRoot>/.semhist/config.json
func ConfigPath(repoRoot string) string {
	return filepath.Join(repoRoot, StateDirName, ConfigFileName)
}

// LanguagesPath returns <repoRoot>/.semhist/languages.toml
func LanguagesPath(repoRoot string) string {
	return filepath.Join(repoRoot, StateDirName, LanguagesFileName)
}

// IsInitialized reports whether the state directory exists
func IsInitialized(repoRoot string) bool {
	info, err := os.Stat(StateDir(repoRoot))
	return err == nil && info.IsDir()
}

// FindRepoRoot walks up from start to the first directory containing .git
func FindRepoRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoRepository
		}
		dir = parent
	}
}

// CanonicalizePath converts an absolute path to a repo-relative canonical path
// - Resolves symlinks to real paths
// - Makes path relative to repo root
// - Converts backslashes to forward slashes
func CanonicalizePath(absolutePath string, repoRoot string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		// If the file doesn't exist at HEAD, use the path as-is
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	repoRootResolved, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		if os.IsNotExist(err) {
			repoRootResolved = repoRoot
		} else {
			return "", err
		}
	}

	relativePath, err := filepath.Rel(repoRootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(relativePath), nil
}

// ToRepoPath returns p as a forward-slash repo-relative path. Relative
// inputs are cleaned; absolute ones are canonicalized against repoRoot.
func ToRepoPath(p, repoRoot string) (string, error) {
	if filepath.IsAbs(p) {
		return CanonicalizePath(p, repoRoot)
	}
	return strings.TrimPrefix(NormalizePath(filepath.Clean(p)), "./"), nil
}

// IsWithinRepo checks if a path is within the repository root
func IsWithinRepo(path string, repoRoot string) bool {
	canonical, err := CanonicalizePath(path, repoRoot)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// NormalizePath converts backslashes to forward slashes
func NormalizePath(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), "\\", "/")
}

// JoinRepoPath joins a repo root with a canonical path
func JoinRepoPath(repoRoot string, canonicalPath string) string {
	normalizedPath := strings.ReplaceAll(canonicalPath, "\\", "/")
	parts := strings.Split(normalizedPath, "/")
	return filepath.Join(append([]string{repoRoot}, parts...)...)
}
