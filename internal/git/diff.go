package git

import (
	"context"
	"fmt"

	"semhist/internal/diff"
	"semhist/internal/errors"
)

// EmptyTree is the id of the tree with no entries, the diff base of a root
// commit.
const EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// DiffCommit returns the zero-context patch between parent and commit, one
// entry per changed file. An empty parent diffs against the empty tree.
// Renames are reported as a delete and an add; mode-only changes carry no
// hunks.
func (g *GitAdapter) DiffCommit(ctx context.Context, parent, commit string) ([]diff.FileDiff, error) {
	if commit == "" {
		return nil, errors.New(errors.InternalError, "commit is required", nil)
	}
	if parent == "" {
		parent = EmptyTree
	}

	output, err := g.executeGitOutput(ctx,
		"diff-tree", "-r", "-p", "-U0",
		"--full-index", "--no-renames", "--no-color", "--no-ext-diff", "--no-textconv",
		parent, commit, "--")
	if err != nil {
		return nil, err
	}

	files, err := diff.ParseGitDiff(output)
	if err != nil {
		return nil, errors.New(errors.GitError, fmt.Sprintf("failed to parse diff of %s", commit), err)
	}
	return files, nil
}

// ReadBlob returns the raw content of a blob.
func (g *GitAdapter) ReadBlob(ctx context.Context, blob string) ([]byte, error) {
	if blob == "" {
		return nil, nil
	}
	return g.executeGitOutput(ctx, "cat-file", "blob", blob)
}
