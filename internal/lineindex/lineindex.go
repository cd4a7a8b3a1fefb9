// Package lineindex maps a file version's bytes to line starts and converts
// between byte offsets and zero-based (row, column) positions.
package lineindex

import (
	"bytes"
	"sort"

	"semhist/internal/errors"
	"semhist/internal/model"
)

// Index is a line-start table over one immutable buffer.
type Index struct {
	size  int
	lines int
	// starts holds 0 and the offset following every newline, so a buffer
	// ending in a newline has a final entry equal to size.
	starts []int
}

// New indexes content. The buffer is not retained.
func New(content []byte) *Index {
	idx := &Index{
		size:   len(content),
		starts: make([]int, 1, bytes.Count(content, []byte{'\n'})+1),
	}
	for off := 0; ; {
		i := bytes.IndexByte(content[off:], '\n')
		if i < 0 {
			break
		}
		off += i + 1
		idx.starts = append(idx.starts, off)
	}
	idx.lines = len(idx.starts)
	if len(content) == 0 || content[len(content)-1] == '\n' {
		idx.lines--
	}
	return idx
}

// Size returns the length of the indexed buffer.
func (x *Index) Size() int {
	return x.size
}

// LineCount returns the number of lines. A final line without a trailing
// newline counts; an empty buffer has none.
func (x *Index) LineCount() int {
	return x.lines
}

// LineStart returns the byte offset where the 1-based line begins.
// LineCount()+1 is accepted and yields the end of the buffer.
func (x *Index) LineStart(line int) (int, error) {
	switch {
	case line >= 1 && line <= x.lines:
		return x.starts[line-1], nil
	case line == x.lines+1:
		return x.size, nil
	}
	return 0, errors.Newf(errors.OutOfRange, "line %d outside 1..%d", line, x.lines+1).
		WithDetails(map[string]int{"line": line, "lineCount": x.lines})
}

// LineEnd returns the offset just past the 1-based line, including its newline.
func (x *Index) LineEnd(line int) (int, error) {
	if line < 1 || line > x.lines {
		return 0, errors.Newf(errors.OutOfRange, "line %d outside 1..%d", line, x.lines)
	}
	return x.LineStart(line + 1)
}

// PositionOf returns the zero-based row and byte column of offset.
// Offsets 0 through Size() inclusive are valid; the offset after a final
// newline sits at column 0 of the row past the last line.
func (x *Index) PositionOf(offset int) (model.Point, error) {
	if offset < 0 || offset > x.size {
		return model.Point{}, errors.Newf(errors.OutOfRange, "offset %d outside 0..%d", offset, x.size).
			WithDetails(map[string]int{"offset": offset, "size": x.size})
	}
	row := sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > offset }) - 1
	return model.Point{Row: uint32(row), Column: uint32(offset - x.starts[row])}, nil
}

// LineOf returns the 1-based line holding offset. The end-of-buffer offset
// belongs to the last line.
func (x *Index) LineOf(offset int) (int, error) {
	p, err := x.PositionOf(offset)
	if err != nil {
		return 0, err
	}
	line := int(p.Row) + 1
	if line > x.lines && x.lines > 0 {
		line = x.lines
	}
	return line, nil
}

// Span returns the byte extent of lines [first, first+count).
func (x *Index) Span(first, count int) (start, end int, err error) {
	if start, err = x.LineStart(first); err != nil {
		return 0, 0, err
	}
	if end, err = x.LineStart(first + count); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
