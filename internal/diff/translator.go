package diff

import (
	"fmt"

	"semhist/internal/errors"
	"semhist/internal/lineindex"
)

// Translator converts the hunks of one file transition into edit
// descriptors. It holds no state between calls and is safe for concurrent use.
type Translator struct {
	old       *lineindex.Index
	new       *lineindex.Index
	validator *Validator
}

// NewTranslator creates a translator over the old and new versions of a file.
func NewTranslator(oldIdx, newIdx *lineindex.Index) *Translator {
	return &Translator{
		old: oldIdx,
		new: newIdx,
		validator: NewValidator(
			WithOldLineCount(oldIdx.LineCount()),
			WithNewLineCount(newIdx.LineCount()),
		),
	}
}

// Translate returns one edit per hunk, in hunk order. It fails with
// MALFORMED_HUNK when the hunks violate the chaining invariant or do not
// line up with the new content, and with OUT_OF_RANGE when a hunk reaches
// outside either buffer.
func (t *Translator) Translate(hunks []Hunk) ([]Edit, error) {
	edits := make([]Edit, 0, len(hunks))
	var st chainState
	st.reset()
	for i, h := range hunks {
		lineOffset := st.lineOffset
		if err := t.validator.step(&st, i, h); err != nil {
			return nil, err
		}
		e, delta, err := t.translate(i, h, lineOffset, st.byteOffset)
		if err != nil {
			return nil, err
		}
		st.byteOffset += delta
		edits = append(edits, e)
	}
	return edits, nil
}

// translate derives the edit for hunk i given the line and byte offsets
// accumulated by earlier hunks. It also returns the byte delta this hunk
// contributes to the running offset.
func (t *Translator) translate(i int, h Hunk, lineOffset, byteOffset int) (Edit, int, error) {
	oldStart, oldEnd, err := t.old.Span(h.OldAnchor(), h.OldLines)
	if err != nil {
		return Edit{}, 0, fmt.Errorf("hunk %d old side: %w", i, err)
	}
	newStart, newEnd, err := t.new.Span(h.NewAnchor(), h.NewLines)
	if err != nil {
		return Edit{}, 0, fmt.Errorf("hunk %d new side: %w", i, err)
	}

	start := oldStart + byteOffset
	if start != newStart {
		return Edit{}, 0, errors.New(errors.MalformedHunk,
			fmt.Sprintf("hunk %d %s", i, h),
			&ValidationError{
				Code:    ErrCodeChainBroken,
				Message: fmt.Sprintf("edit starts at byte %d of the new file, hunk places it at %d", start, newStart),
				Field:   fmt.Sprintf("hunks[%d].newStart", i),
			})
	}
	inserted := newEnd - newStart
	removed := oldEnd - oldStart

	// The bytes before start already match the new file, and the bytes
	// between start and the old end are still the old file's.
	startPoint, err := t.new.PositionOf(start)
	if err != nil {
		return Edit{}, 0, err
	}
	newEndPoint, err := t.new.PositionOf(start + inserted)
	if err != nil {
		return Edit{}, 0, err
	}
	oldEndPoint, err := t.old.PositionOf(oldEnd)
	if err != nil {
		return Edit{}, 0, err
	}
	oldEndPoint.Row = uint32(int(oldEndPoint.Row) + lineOffset)

	return Edit{
		StartByte:   uint32(start),
		OldEndByte:  uint32(start + removed),
		NewEndByte:  uint32(start + inserted),
		StartPoint:  startPoint,
		OldEndPoint: oldEndPoint,
		NewEndPoint: newEndPoint,
	}, inserted - removed, nil
}

// Translate is a convenience wrapper that indexes both buffers.
func Translate(oldContent, newContent []byte, hunks []Hunk) ([]Edit, error) {
	return NewTranslator(lineindex.New(oldContent), lineindex.New(newContent)).Translate(hunks)
}
