package lineindex

import (
	"testing"

	"semhist/internal/errors"
	"semhist/internal/model"
)

func TestLineStart(t *testing.T) {
	idx := New([]byte("ab\ncde\n\nf"))

	if idx.LineCount() != 4 {
		t.Fatalf("LineCount() = %d, want 4", idx.LineCount())
	}

	tests := []struct {
		line int
		want int
	}{
		{1, 0},
		{2, 3},
		{3, 7},
		{4, 8},
		{5, 9}, // end-of-buffer sentinel
	}

	for _, tt := range tests {
		got, err := idx.LineStart(tt.line)
		if err != nil {
			t.Fatalf("LineStart(%d) error = %v", tt.line, err)
		}
		if got != tt.want {
			t.Errorf("LineStart(%d) = %d, want %d", tt.line, got, tt.want)
		}
	}
}

func TestLineStart_OutOfRange(t *testing.T) {
	idx := New([]byte("one\ntwo\n"))

	for _, line := range []int{0, -1, 4, 100} {
		_, err := idx.LineStart(line)
		if !errors.Is(err, errors.OutOfRange) {
			t.Errorf("LineStart(%d) error = %v, want OUT_OF_RANGE", line, err)
		}
	}
}

func TestTrailingNewline(t *testing.T) {
	withNL := New([]byte("a\nb\n"))
	withoutNL := New([]byte("a\nb"))

	if withNL.LineCount() != 2 || withoutNL.LineCount() != 2 {
		t.Errorf("LineCount() = %d/%d, want 2/2", withNL.LineCount(), withoutNL.LineCount())
	}
	if end, _ := withNL.LineStart(3); end != 4 {
		t.Errorf("LineStart(3) = %d, want 4", end)
	}
	if end, _ := withoutNL.LineStart(3); end != 3 {
		t.Errorf("LineStart(3) = %d, want 3", end)
	}

	// The end of a buffer ending in a newline starts a new row.
	if p, _ := withNL.PositionOf(4); p != (model.Point{Row: 2, Column: 0}) {
		t.Errorf("PositionOf(4) = %+v, want row 2 col 0", p)
	}
	if p, _ := withoutNL.PositionOf(3); p != (model.Point{Row: 1, Column: 1}) {
		t.Errorf("PositionOf(3) = %+v, want row 1 col 1", p)
	}
	if line, _ := withNL.LineOf(4); line != 2 {
		t.Errorf("LineOf(4) = %d, want 2", line)
	}
}

func TestEmptyBuffer(t *testing.T) {
	idx := New(nil)

	if idx.LineCount() != 0 {
		t.Errorf("LineCount() = %d, want 0", idx.LineCount())
	}
	if off, err := idx.LineStart(1); err != nil || off != 0 {
		t.Errorf("LineStart(1) = %d, %v, want 0, nil", off, err)
	}
	if p, err := idx.PositionOf(0); err != nil || p != (model.Point{}) {
		t.Errorf("PositionOf(0) = %v, %v", p, err)
	}
	if _, err := idx.PositionOf(1); !errors.Is(err, errors.OutOfRange) {
		t.Errorf("PositionOf(1) error = %v, want OUT_OF_RANGE", err)
	}
}

func TestPositionOf(t *testing.T) {
	idx := New([]byte("ab\ncde\n\nf"))

	tests := []struct {
		offset int
		want   model.Point
	}{
		{0, model.Point{Row: 0, Column: 0}},
		{2, model.Point{Row: 0, Column: 2}}, // the newline itself
		{3, model.Point{Row: 1, Column: 0}},
		{6, model.Point{Row: 1, Column: 3}},
		{7, model.Point{Row: 2, Column: 0}},
		{8, model.Point{Row: 3, Column: 0}},
		{9, model.Point{Row: 3, Column: 1}}, // end of buffer
	}

	for _, tt := range tests {
		got, err := idx.PositionOf(tt.offset)
		if err != nil {
			t.Fatalf("PositionOf(%d) error = %v", tt.offset, err)
		}
		if got != tt.want {
			t.Errorf("PositionOf(%d) = %+v, want %+v", tt.offset, got, tt.want)
		}
	}

	if _, err := idx.PositionOf(10); !errors.Is(err, errors.OutOfRange) {
		t.Errorf("PositionOf(10) error = %v, want OUT_OF_RANGE", err)
	}
	if _, err := idx.PositionOf(-1); !errors.Is(err, errors.OutOfRange) {
		t.Errorf("PositionOf(-1) error = %v, want OUT_OF_RANGE", err)
	}
}

func TestPositionOfRoundTrip(t *testing.T) {
	content := []byte("package a\n\nfunc f() {\n\treturn\n}\n")
	idx := New(content)

	for line := 1; line <= idx.LineCount(); line++ {
		off, err := idx.LineStart(line)
		if err != nil {
			t.Fatalf("LineStart(%d) error = %v", line, err)
		}
		p, err := idx.PositionOf(off)
		if err != nil {
			t.Fatalf("PositionOf(%d) error = %v", off, err)
		}
		if int(p.Row) != line-1 || p.Column != 0 {
			t.Errorf("PositionOf(LineStart(%d)) = %+v, want row %d col 0", line, p, line-1)
		}
	}
}

func TestSpanAndLineEnd(t *testing.T) {
	idx := New([]byte("l1\nline2\nl3\n"))

	start, end, err := idx.Span(2, 2)
	if err != nil {
		t.Fatalf("Span() error = %v", err)
	}
	if start != 3 || end != 12 {
		t.Errorf("Span(2, 2) = %d..%d, want 3..12", start, end)
	}

	end, err = idx.LineEnd(2)
	if err != nil || end != 9 {
		t.Errorf("LineEnd(2) = %d, %v, want 9", end, err)
	}
	if _, err := idx.LineEnd(4); !errors.Is(err, errors.OutOfRange) {
		t.Errorf("LineEnd(4) error = %v, want OUT_OF_RANGE", err)
	}
	if _, _, err := idx.Span(3, 2); !errors.Is(err, errors.OutOfRange) {
		t.Errorf("Span(3, 2) error = %v, want OUT_OF_RANGE", err)
	}
}
