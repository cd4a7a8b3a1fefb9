// Package git reads commit graphs, patches and blobs by running git
// plumbing commands in a repository.
package git

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"semhist/internal/errors"
)

// DefaultTimeout bounds one git invocation when none is configured.
const DefaultTimeout = 120 * time.Second

// GitAdapter runs git against one repository.
type GitAdapter struct {
	repoRoot string
	binary   string
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a GitAdapter.
type Option func(*GitAdapter)

// WithBinary selects the git executable.
func WithBinary(binary string) Option {
	return func(g *GitAdapter) {
		if binary != "" {
			g.binary = binary
		}
	}
}

// WithTimeout bounds each git invocation.
func WithTimeout(d time.Duration) Option {
	return func(g *GitAdapter) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGitAdapter creates an adapter for the repository at repoRoot and checks
// that git can see it.
func NewGitAdapter(repoRoot string, logger *slog.Logger, opts ...Option) (*GitAdapter, error) {
	if logger == nil {
		return nil, errors.New(errors.InternalError, "logger is required for GitAdapter", nil)
	}
	g := &GitAdapter{
		repoRoot: repoRoot,
		binary:   "git",
		timeout:  DefaultTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}

	if _, err := g.executeGitCommand(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, errors.New(errors.GitError, "not a git repository: "+repoRoot, err)
	}

	logger.Debug("Git adapter initialized",
		"repoRoot", repoRoot,
		"binary", g.binary,
		"timeout", g.timeout.String(),
	)
	return g, nil
}

// RepoRoot returns the repository the adapter runs in.
func (g *GitAdapter) RepoRoot() string {
	return g.repoRoot
}

// executeGitOutput runs a git command with the adapter timeout and returns
// stdout untouched.
func (g *GitAdapter) executeGitOutput(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = g.repoRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	g.logger.Debug("Executing git command", "args", args)

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.Timeout, "git command timed out", err).
				WithDetails(map[string]interface{}{"args": args, "timeout": g.timeout.String()})
		}
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return nil, errors.New(errors.GitError, "git command failed", err).
				WithDetails(map[string]interface{}{
					"args":   args,
					"stderr": strings.TrimSpace(stderr.String()),
				})
		}
		return nil, errors.New(errors.GitError, "failed to execute git command", err)
	}
	return output, nil
}

// executeGitCommand runs a git command and returns trimmed output.
func (g *GitAdapter) executeGitCommand(ctx context.Context, args ...string) (string, error) {
	output, err := g.executeGitOutput(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// executeGitCommandLines runs a git command and returns its non-empty lines.
func (g *GitAdapter) executeGitCommandLines(ctx context.Context, args ...string) ([]string, error) {
	output, err := g.executeGitCommand(ctx, args...)
	if err != nil {
		return nil, err
	}
	if output == "" {
		return []string{}, nil
	}

	lines := strings.Split(output, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result, nil
}
