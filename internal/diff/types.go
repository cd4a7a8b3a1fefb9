// Package diff turns the zero-context unified diff of one commit into hunks
// and translates the hunks of a file transition into edit descriptors for
// incremental re-parsing.
package diff

import (
	"fmt"

	"semhist/internal/model"
)

// Hunk is one @@ block of a zero-context unified diff. Starts are 1-based;
// a pure insertion names the old line it follows, a pure deletion the new
// line it follows.
type Hunk struct {
	OldStart int `json:"oldStart"`
	OldLines int `json:"oldLines"`
	NewStart int `json:"newStart"`
	NewLines int `json:"newLines"`
}

// IsInsertion reports whether the hunk only adds lines.
func (h Hunk) IsInsertion() bool {
	return h.OldLines == 0 && h.NewLines > 0
}

// IsDeletion reports whether the hunk only removes lines.
func (h Hunk) IsDeletion() bool {
	return h.NewLines == 0 && h.OldLines > 0
}

// OldAnchor returns the first old line the hunk replaces. For a pure
// insertion that is the line following the insertion point.
func (h Hunk) OldAnchor() int {
	if h.OldLines == 0 {
		return h.OldStart + 1
	}
	return h.OldStart
}

// NewAnchor returns the first new line the hunk produces, or for a pure
// deletion the line following the deletion point.
func (h Hunk) NewAnchor() int {
	if h.NewLines == 0 {
		return h.NewStart + 1
	}
	return h.NewStart
}

func (h Hunk) String() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
}

// FileStatus is the kind of file transition in a commit.
type FileStatus string

const (
	FileAdded    FileStatus = "added"
	FileDeleted  FileStatus = "deleted"
	FileModified FileStatus = "modified"
)

// FileDiff is the transition of one file within a commit.
type FileDiff struct {
	OldPath string     `json:"oldPath,omitempty"`
	NewPath string     `json:"newPath,omitempty"`
	OldBlob string     `json:"oldBlob,omitempty"` // empty when the file is added
	NewBlob string     `json:"newBlob,omitempty"` // empty when the file is deleted
	Status  FileStatus `json:"status"`
	Binary  bool       `json:"binary,omitempty"`
	Hunks   []Hunk     `json:"hunks"`
}

// Path returns the path the file has on the side where it exists.
func (f *FileDiff) Path() string {
	if f.Status == FileDeleted {
		return f.OldPath
	}
	return f.NewPath
}

// LinesAdded sums NewLines over all hunks.
func (f *FileDiff) LinesAdded() int {
	n := 0
	for _, h := range f.Hunks {
		n += h.NewLines
	}
	return n
}

// LinesDeleted sums OldLines over all hunks.
func (f *FileDiff) LinesDeleted() int {
	n := 0
	for _, h := range f.Hunks {
		n += h.OldLines
	}
	return n
}

// Edit describes one hunk as a byte and point range replacement. Offsets are
// in the coordinates of the buffer after all earlier edits of the same
// transition have been applied, which is the order incremental parsers
// consume them in.
type Edit struct {
	StartByte   uint32      `json:"startByte"`
	OldEndByte  uint32      `json:"oldEndByte"`
	NewEndByte  uint32      `json:"newEndByte"`
	StartPoint  model.Point `json:"startPoint"`
	OldEndPoint model.Point `json:"oldEndPoint"`
	NewEndPoint model.Point `json:"newEndPoint"`
}
