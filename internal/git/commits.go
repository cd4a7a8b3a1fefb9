package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"semhist/internal/errors"
)

// Commit is one commit of the walk with its parents in order.
type Commit struct {
	SHA        string
	Parents    []string
	AuthorDate time.Time
	CommitDate time.Time
}

// IsMerge reports whether the commit has more than one parent.
func (c *Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

// RefPattern selects a ref namespace. Set it to include the namespace;
// Pattern is an optional shell glob within it.
type RefPattern struct {
	Set     bool
	Pattern string
}

// Selection chooses the commits of a walk the way git rev-list does.
type Selection struct {
	Refs     []string
	All      bool
	Branches RefPattern
	Tags     RefPattern
	Remotes  RefPattern
	Glob     string

	MaxCount    int
	Since       time.Time
	Until       time.Time
	FirstParent bool
}

// Windowed reports whether the selection may leave out ancestors of the
// commits it lists: it stops before the roots, or it skips the side
// branches of merges.
func (s *Selection) Windowed() bool {
	return s.MaxCount > 0 || !s.Since.IsZero() || !s.Until.IsZero() || s.FirstParent
}

// Empty reports whether no starting point was given.
func (s *Selection) Empty() bool {
	return len(s.Refs) == 0 && !s.All && !s.Branches.Set && !s.Tags.Set && !s.Remotes.Set && s.Glob == ""
}

func (s *Selection) revArgs() []string {
	var args []string
	if s.All {
		args = append(args, "--all")
	}
	args = appendNamespace(args, "--branches", s.Branches)
	args = appendNamespace(args, "--tags", s.Tags)
	args = appendNamespace(args, "--remotes", s.Remotes)
	if s.Glob != "" {
		args = append(args, "--glob="+s.Glob)
	}
	args = append(args, s.Refs...)
	if len(args) == 0 {
		args = append(args, "HEAD")
	}
	return args
}

func appendNamespace(args []string, flag string, p RefPattern) []string {
	if !p.Set {
		return args
	}
	if p.Pattern == "" {
		return append(args, flag)
	}
	return append(args, flag+"="+p.Pattern)
}

// commitFormat is sha, parents, author and committer unix time, NUL separated.
const commitFormat = "%H%x00%P%x00%at%x00%ct"

// ListCommits walks the selection in topological order with parents first.
// MaxCount keeps the newest commits of the walk.
func (g *GitAdapter) ListCommits(ctx context.Context, sel Selection) ([]Commit, error) {
	args := []string{"log", "--topo-order", "--reverse", "--format=" + commitFormat}
	if sel.FirstParent {
		args = append(args, "--first-parent")
	}
	if sel.MaxCount > 0 {
		args = append(args, "--max-count="+strconv.Itoa(sel.MaxCount))
	}
	if !sel.Since.IsZero() {
		args = append(args, "--since="+sel.Since.UTC().Format(time.RFC3339))
	}
	if !sel.Until.IsZero() {
		args = append(args, "--until="+sel.Until.UTC().Format(time.RFC3339))
	}
	args = append(args, sel.revArgs()...)
	args = append(args, "--")

	g.logger.Debug("Listing commits", "args", args)

	lines, err := g.executeGitCommandLines(ctx, args...)
	if err != nil {
		return nil, err
	}

	commits := make([]Commit, 0, len(lines))
	for _, line := range lines {
		c, err := parseCommitLine(line)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, nil
}

func parseCommitLine(line string) (Commit, error) {
	parts := strings.Split(line, "\x00")
	if len(parts) != 4 {
		return Commit{}, errors.Newf(errors.GitError, "malformed git log line %q", line)
	}
	author, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Commit{}, errors.New(errors.GitError, fmt.Sprintf("bad author time in %q", line), err)
	}
	committed, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Commit{}, errors.New(errors.GitError, fmt.Sprintf("bad commit time in %q", line), err)
	}
	return Commit{
		SHA:        parts[0],
		Parents:    strings.Fields(parts[1]),
		AuthorDate: time.Unix(author, 0).UTC(),
		CommitDate: time.Unix(committed, 0).UTC(),
	}, nil
}

// ResolveRefs maps every ref the selection names to the commit it points
// at. Namespace selections expand to their full ref names; plain names are
// kept as given.
func (g *GitAdapter) ResolveRefs(ctx context.Context, sel Selection) (map[string]string, error) {
	out := make(map[string]string)

	var patterns []string
	if sel.All {
		patterns = append(patterns, "refs/")
		if sha, err := g.resolveCommit(ctx, "HEAD"); err == nil {
			out["HEAD"] = sha
		}
	}
	patterns = appendRefPattern(patterns, "refs/heads/", sel.Branches)
	patterns = appendRefPattern(patterns, "refs/tags/", sel.Tags)
	patterns = appendRefPattern(patterns, "refs/remotes/", sel.Remotes)
	if sel.Glob != "" {
		glob := sel.Glob
		if !strings.HasPrefix(glob, "refs/") {
			glob = "refs/" + glob
		}
		patterns = append(patterns, refGlob(glob))
	}

	if len(patterns) > 0 {
		args := append([]string{"for-each-ref", "--format=%(refname)%00%(objectname)%00%(*objectname)"}, patterns...)
		lines, err := g.executeGitCommandLines(ctx, args...)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			parts := strings.Split(line, "\x00")
			if len(parts) != 3 {
				continue
			}
			sha := parts[1]
			if parts[2] != "" {
				sha = parts[2] // annotated tag
			}
			out[parts[0]] = sha
		}
	}

	refs := sel.Refs
	if sel.Empty() {
		refs = []string{"HEAD"}
	}
	for _, name := range refs {
		sha, err := g.resolveCommit(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = sha
	}
	return out, nil
}

func appendRefPattern(patterns []string, prefix string, p RefPattern) []string {
	if !p.Set {
		return patterns
	}
	if p.Pattern == "" {
		return append(patterns, prefix)
	}
	return append(patterns, refGlob(prefix+p.Pattern))
}

// refGlob implies a trailing /* for patterns without glob characters, as
// git rev-list does.
func refGlob(p string) string {
	if strings.ContainsAny(p, "?*[") {
		return p
	}
	return strings.TrimSuffix(p, "/") + "/*"
}

func (g *GitAdapter) resolveCommit(ctx context.Context, name string) (string, error) {
	sha, err := g.executeGitCommand(ctx, "rev-parse", "--verify", "--quiet", name+"^{commit}")
	if err != nil {
		return "", errors.New(errors.GitError, fmt.Sprintf("ref %q not found", name), err)
	}
	return sha, nil
}
