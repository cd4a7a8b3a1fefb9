package diff

import (
	"fmt"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// GitDiffParser parses the patch output of git diff-tree into file diffs
type GitDiffParser struct{}

// NewGitDiffParser creates a new GitDiffParser
func NewGitDiffParser() *GitDiffParser {
	return &GitDiffParser{}
}

// Parse parses a multi-file unified diff. Hunk bodies are not retained;
// only the line ranges matter downstream.
func (p *GitDiffParser) Parse(diffContent []byte) ([]FileDiff, error) {
	if len(strings.TrimSpace(string(diffContent))) == 0 {
		return []FileDiff{}, nil
	}

	fileDiffs, err := godiff.ParseMultiFileDiff(diffContent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	result := make([]FileDiff, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		result = append(result, p.parseFileDiff(fd))
	}
	return result, nil
}

// parseFileDiff converts a go-diff FileDiff to our FileDiff
func (p *GitDiffParser) parseFileDiff(fd *godiff.FileDiff) FileDiff {
	origName, newName := fd.OrigName, fd.NewName
	if origName == "" && newName == "" {
		origName, newName = namesFromHeader(fd.Extended)
	}

	f := FileDiff{
		OldPath: cleanPath(origName),
		NewPath: cleanPath(newName),
		Status:  FileModified,
		Hunks:   make([]Hunk, 0, len(fd.Hunks)),
	}

	for _, line := range fd.Extended {
		switch {
		case strings.HasPrefix(line, "new file mode"):
			f.Status = FileAdded
		case strings.HasPrefix(line, "deleted file mode"):
			f.Status = FileDeleted
		case strings.HasPrefix(line, "index "):
			f.OldBlob, f.NewBlob = parseIndexLine(line)
		case strings.HasPrefix(line, "Binary files ") || line == "GIT binary patch":
			f.Binary = true
		}
	}
	if origName == "/dev/null" {
		f.Status = FileAdded
	}
	if newName == "/dev/null" {
		f.Status = FileDeleted
	}

	switch f.Status {
	case FileAdded:
		f.OldPath, f.OldBlob = "", ""
	case FileDeleted:
		f.NewPath, f.NewBlob = "", ""
	}

	for _, h := range fd.Hunks {
		f.Hunks = append(f.Hunks, Hunk{
			OldStart: int(h.OrigStartLine),
			OldLines: int(h.OrigLines),
			NewStart: int(h.NewStartLine),
			NewLines: int(h.NewLines),
		})
	}
	return f
}

// parseIndexLine extracts blob ids from "index <old>..<new> [mode]".
// All-zero ids mean the blob does not exist on that side.
func parseIndexLine(line string) (oldBlob, newBlob string) {
	fields := strings.Fields(strings.TrimPrefix(line, "index "))
	if len(fields) == 0 {
		return "", ""
	}
	parts := strings.SplitN(fields[0], "..", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return nonZero(parts[0]), nonZero(parts[1])
}

func nonZero(id string) string {
	if strings.Trim(id, "0") == "" {
		return ""
	}
	return id
}

// namesFromHeader recovers paths from "diff --git a/x b/x" when the patch
// has no ---/+++ lines.
func namesFromHeader(extended []string) (string, string) {
	for _, line := range extended {
		if !strings.HasPrefix(line, "diff --git ") {
			continue
		}
		rest := strings.TrimPrefix(line, "diff --git ")
		if i := strings.Index(rest, " b/"); i >= 0 {
			return rest[:i], rest[i+1:]
		}
	}
	return "", ""
}

// cleanPath removes the a/ or b/ prefix from git diff paths
func cleanPath(path string) string {
	if path == "" || path == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}

// ParseGitDiff is a convenience function to parse a git diff
func ParseGitDiff(diffContent []byte) ([]FileDiff, error) {
	return NewGitDiffParser().Parse(diffContent)
}
