package diff

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"semhist/internal/errors"
	"semhist/internal/lineindex"
	"semhist/internal/model"
)

// fixedLines builds n lines of the form "lineNN\n" (7 bytes each).
func fixedLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line%02d\n", i+1)
	}
	return lines
}

func join(lines []string) []byte {
	return []byte(strings.Join(lines, ""))
}

func TestTranslate_SingleModification(t *testing.T) {
	old := []byte("l1\nl2\nl3\nl4\nl5\n")
	updated := []byte("l1\nl2\nXX3\nl4\nl5\n")

	edits, err := Translate(old, updated, []Hunk{{OldStart: 3, OldLines: 1, NewStart: 3, NewLines: 1}})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	want := Edit{
		StartByte:   6,
		OldEndByte:  9,
		NewEndByte:  10,
		StartPoint:  model.Point{Row: 2},
		OldEndPoint: model.Point{Row: 3},
		NewEndPoint: model.Point{Row: 3},
	}
	if len(edits) != 1 || edits[0] != want {
		t.Errorf("Translate() = %+v, want %+v", edits, want)
	}
}

func TestTranslate_PureInsertion(t *testing.T) {
	oldLines := fixedLines(12)
	inserted := []string{"newA\n", "newB\n", "newC\n"}
	newLines := append(append(append([]string{}, oldLines[:10]...), inserted...), oldLines[10:]...)

	oldIdx := lineindex.New(join(oldLines))
	hunk := Hunk{OldStart: 10, OldLines: 0, NewStart: 11, NewLines: 3}
	if hunk.NewStart != hunk.OldStart+1 {
		t.Fatalf("pure insertion must start one line after old start")
	}

	edits, err := NewTranslator(oldIdx, lineindex.New(join(newLines))).Translate([]Hunk{hunk})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	// Lines are inserted after old line 10, at the start of old line 11.
	insertAt, _ := oldIdx.LineStart(11)
	e := edits[0]
	if int(e.StartByte) != insertAt {
		t.Errorf("StartByte = %d, want %d", e.StartByte, insertAt)
	}
	if e.OldEndByte != e.StartByte {
		t.Errorf("OldEndByte = %d, want empty old range at %d", e.OldEndByte, e.StartByte)
	}
	if e.NewEndByte != e.StartByte+15 {
		t.Errorf("NewEndByte = %d, want %d", e.NewEndByte, e.StartByte+15)
	}
	if e.StartPoint != (model.Point{Row: 10}) || e.OldEndPoint != (model.Point{Row: 10}) || e.NewEndPoint != (model.Point{Row: 13}) {
		t.Errorf("points = %+v %+v %+v", e.StartPoint, e.OldEndPoint, e.NewEndPoint)
	}
}

// threeHunkFixture deletes old lines 2-3, inserts two lines after old line 5
// and rewrites old line 8 with a longer line.
func threeHunkFixture() (old, updated []byte, hunks []Hunk) {
	oldLines := fixedLines(10)
	newLines := []string{oldLines[0], oldLines[3], oldLines[4], "ins-a\n", "ins-b\n", oldLines[5], oldLines[6], "changed-line\n", oldLines[8], oldLines[9]}
	hunks = []Hunk{
		{OldStart: 2, OldLines: 2, NewStart: 1, NewLines: 0},
		{OldStart: 5, OldLines: 0, NewStart: 4, NewLines: 2},
		{OldStart: 8, OldLines: 1, NewStart: 8, NewLines: 1},
	}
	return join(oldLines), join(newLines), hunks
}

func TestTranslate_RunningOffset(t *testing.T) {
	old, updated, hunks := threeHunkFixture()

	edits, err := Translate(old, updated, hunks)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	want := []Edit{
		{StartByte: 7, OldEndByte: 21, NewEndByte: 7, StartPoint: model.Point{Row: 1}, OldEndPoint: model.Point{Row: 3}, NewEndPoint: model.Point{Row: 1}},
		{StartByte: 21, OldEndByte: 21, NewEndByte: 33, StartPoint: model.Point{Row: 3}, OldEndPoint: model.Point{Row: 3}, NewEndPoint: model.Point{Row: 5}},
		{StartByte: 47, OldEndByte: 54, NewEndByte: 60, StartPoint: model.Point{Row: 7}, OldEndPoint: model.Point{Row: 8}, NewEndPoint: model.Point{Row: 8}},
	}
	if !reflect.DeepEqual(edits, want) {
		for i := range want {
			if i < len(edits) && edits[i] != want[i] {
				t.Errorf("edit %d = %+v, want %+v", i, edits[i], want[i])
			}
		}
		if len(edits) != len(want) {
			t.Errorf("len(edits) = %d, want %d", len(edits), len(want))
		}
	}
}

func TestTranslate_ReplayReproducesNewContent(t *testing.T) {
	old, updated, hunks := threeHunkFixture()

	edits, err := Translate(old, updated, hunks)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	// Applying each edit in order to a working buffer must yield the new file.
	buf := append([]byte{}, old...)
	for _, e := range edits {
		replacement := updated[e.StartByte:e.NewEndByte]
		next := append([]byte{}, buf[:e.StartByte]...)
		next = append(next, replacement...)
		buf = append(next, buf[e.OldEndByte:]...)
	}
	if string(buf) != string(updated) {
		t.Errorf("replayed buffer = %q, want %q", buf, updated)
	}
}

func TestTranslate_Deterministic(t *testing.T) {
	old, updated, hunks := threeHunkFixture()
	tr := NewTranslator(lineindex.New(old), lineindex.New(updated))

	first, err := tr.Translate(hunks)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	second, err := tr.Translate(hunks)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Translate() not deterministic: %+v vs %+v", first, second)
	}
}

func TestTranslate_FileCreationAndDeletion(t *testing.T) {
	content := []byte("class A {\n}\n")

	created, err := Translate(nil, content, []Hunk{{OldStart: 0, OldLines: 0, NewStart: 1, NewLines: 2}})
	if err != nil {
		t.Fatalf("creation error = %v", err)
	}
	if created[0].StartByte != 0 || created[0].OldEndByte != 0 || int(created[0].NewEndByte) != len(content) {
		t.Errorf("creation edit = %+v", created[0])
	}

	deleted, err := Translate(content, nil, []Hunk{{OldStart: 1, OldLines: 2, NewStart: 0, NewLines: 0}})
	if err != nil {
		t.Fatalf("deletion error = %v", err)
	}
	if deleted[0].StartByte != 0 || int(deleted[0].OldEndByte) != len(content) || deleted[0].NewEndByte != 0 {
		t.Errorf("deletion edit = %+v", deleted[0])
	}
	if deleted[0].OldEndPoint != (model.Point{Row: 2}) {
		t.Errorf("deletion OldEndPoint = %+v, want row 2", deleted[0].OldEndPoint)
	}
}

func TestTranslate_NoTrailingNewline(t *testing.T) {
	old := []byte("a\nb")
	updated := []byte("a\nb\nc\n")

	edits, err := Translate(old, updated, []Hunk{{OldStart: 2, OldLines: 1, NewStart: 2, NewLines: 2}})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	e := edits[0]
	if e.StartByte != 2 || e.OldEndByte != 3 || e.NewEndByte != 6 {
		t.Errorf("bytes = %d %d %d, want 2 3 6", e.StartByte, e.OldEndByte, e.NewEndByte)
	}
	if e.OldEndPoint != (model.Point{Row: 1, Column: 1}) {
		t.Errorf("OldEndPoint = %+v, want row 1 col 1", e.OldEndPoint)
	}
	if e.NewEndPoint != (model.Point{Row: 3}) {
		t.Errorf("NewEndPoint = %+v, want row 3", e.NewEndPoint)
	}
}

func TestTranslate_Malformed(t *testing.T) {
	old := join(fixedLines(10))
	updated := join(fixedLines(11))

	tests := []struct {
		name     string
		hunks    []Hunk
		wantCode string
	}{
		{
			name:     "chain broken",
			hunks:    []Hunk{{2, 1, 2, 2}, {5, 1, 5, 1}},
			wantCode: ErrCodeChainBroken,
		},
		{
			name:     "out of order",
			hunks:    []Hunk{{5, 1, 5, 1}, {3, 1, 3, 1}},
			wantCode: ErrCodeOutOfOrder,
		},
		{
			name:     "overlapping",
			hunks:    []Hunk{{3, 3, 3, 3}, {4, 1, 4, 1}},
			wantCode: ErrCodeOutOfOrder,
		},
		{
			name:     "zero old start after first hunk",
			hunks:    []Hunk{{2, 1, 2, 1}, {0, 0, 1, 1}},
			wantCode: ErrCodeZeroStart,
		},
		{
			name:     "zero new start with lines",
			hunks:    []Hunk{{1, 1, 0, 1}},
			wantCode: ErrCodeZeroStart,
		},
		{
			name:     "empty hunk",
			hunks:    []Hunk{{4, 0, 5, 0}},
			wantCode: ErrCodeEmptyHunk,
		},
		{
			name:     "past end of old file",
			hunks:    []Hunk{{12, 1, 12, 1}},
			wantCode: ErrCodeOutOfBounds,
		},
		{
			name:     "negative count",
			hunks:    []Hunk{{3, -1, 3, 1}},
			wantCode: ErrCodeInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(old, updated, tt.hunks)
			if !errors.Is(err, errors.MalformedHunk) {
				t.Fatalf("Translate() error = %v, want MALFORMED_HUNK", err)
			}
			var verr *ValidationError
			if !stderrors.As(err, &verr) {
				t.Fatalf("error %v does not carry a ValidationError", err)
			}
			if verr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", verr.Code, tt.wantCode)
			}
		})
	}
}

func TestTranslate_ContentMismatch(t *testing.T) {
	old := []byte("a\nb\nc\n")
	updated := []byte("aaaa\nb\nX\n")

	_, err := Translate(old, updated, []Hunk{{OldStart: 3, OldLines: 1, NewStart: 3, NewLines: 1}})
	if !errors.Is(err, errors.MalformedHunk) {
		t.Errorf("Translate() error = %v, want MALFORMED_HUNK", err)
	}
}
