// Package reachability maintains the transitive closure of the commit parent
// relation as (source, ancestor) pairs, extended one commit at a time in
// topological order.
package reachability

import (
	"context"
	"fmt"

	"semhist/internal/errors"
)

// Backend stores closure pairs and the per-commit indexed flag.
type Backend interface {
	// Indexed reports whether commit's ancestor set has been recorded.
	Indexed(ctx context.Context, commit int64) (bool, error)
	// Reaches reports whether target is a recorded ancestor of source.
	Reaches(ctx context.Context, source, target int64) (bool, error)
	// Record stores commit → p and commit → every ancestor of p for each
	// parent p, then marks commit indexed. It returns the pairs added.
	Record(ctx context.Context, commit int64, parents []int64) (int, error)
}

// Index extends and queries the closure.
type Index struct {
	backend Backend
}

// New creates an index over backend.
func New(backend Backend) *Index {
	return &Index{backend: backend}
}

// Ready reports whether every parent is indexed, which Extend requires.
func (x *Index) Ready(ctx context.Context, parents []int64) (bool, error) {
	for _, p := range parents {
		ok, err := x.backend.Indexed(ctx, p)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Extend records the ancestors of commit. Re-extending an indexed commit
// adds nothing. A parent that is not indexed, or a parent edge that would
// close a cycle, fails with GRAPH_INVARIANT_VIOLATION.
func (x *Index) Extend(ctx context.Context, commit int64, parents []int64) (int, error) {
	for _, p := range parents {
		if p == commit {
			return 0, violation(commit, p, "commit is its own parent")
		}
	}

	done, err := x.backend.Indexed(ctx, commit)
	if err != nil {
		return 0, err
	}
	if done {
		return 0, nil
	}

	for _, p := range parents {
		ok, err := x.backend.Indexed(ctx, p)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, violation(commit, p, "parent has no reachability info")
		}
		cyclic, err := x.backend.Reaches(ctx, p, commit)
		if err != nil {
			return 0, err
		}
		if cyclic {
			return 0, violation(commit, p, "parent already reaches commit")
		}
	}

	return x.backend.Record(ctx, commit, dedup(parents))
}

// IsAncestor reports whether ancestor is reachable backward from commit.
// A commit is not its own ancestor.
func (x *Index) IsAncestor(ctx context.Context, ancestor, commit int64) (bool, error) {
	if ancestor == commit {
		return false, nil
	}
	return x.backend.Reaches(ctx, commit, ancestor)
}

func violation(commit, parent int64, msg string) error {
	return errors.New(errors.GraphInvariantViolation,
		fmt.Sprintf("commit %d, parent %d: %s", commit, parent, msg), nil).
		WithDetails(map[string]int64{"commit": commit, "parent": parent})
}

func dedup(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
