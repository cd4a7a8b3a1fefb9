package diff

import (
	"fmt"

	"semhist/internal/errors"
)

// ValidationError describes which hunk field broke the chain.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validation codes
const (
	ErrCodeInvalidFormat = "INVALID_FORMAT"
	ErrCodeEmptyHunk     = "EMPTY_HUNK"
	ErrCodeZeroStart     = "ZERO_START"
	ErrCodeOutOfOrder    = "OUT_OF_ORDER"
	ErrCodeOutOfBounds   = "OUT_OF_BOUNDS"
	ErrCodeChainBroken   = "CHAIN_BROKEN"
)

// Validator checks the hunk-chaining invariant of one file transition.
type Validator struct {
	oldLineCount int // -1 when unknown
	newLineCount int // -1 when unknown
}

// ValidatorOption configures the validator
type ValidatorOption func(*Validator)

// WithOldLineCount bounds old-side ranges by the old file's line count.
func WithOldLineCount(n int) ValidatorOption {
	return func(v *Validator) {
		v.oldLineCount = n
	}
}

// WithNewLineCount bounds new-side ranges by the new file's line count.
func WithNewLineCount(n int) ValidatorOption {
	return func(v *Validator) {
		v.newLineCount = n
	}
}

// NewValidator creates a hunk chain validator
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{oldLineCount: -1, newLineCount: -1}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks every hunk in order and returns the first violation as a
// MALFORMED_HUNK error.
func (v *Validator) Validate(hunks []Hunk) error {
	var st chainState
	st.reset()
	for i, h := range hunks {
		if err := v.step(&st, i, h); err != nil {
			return err
		}
	}
	return nil
}

// chainState is the running fold over the hunks of one transition.
type chainState struct {
	lineOffset int // sum of NewLines-OldLines over earlier hunks
	byteOffset int // sum of inserted-removed bytes over earlier hunks
	nextOld    int // first old line not yet covered by an earlier hunk
}

func (s *chainState) reset() {
	*s = chainState{nextOld: 1}
}

// expectedNewStart is where the chaining rule places the hunk's new start.
func expectedNewStart(h Hunk, lineOffset int) int {
	switch {
	case h.OldLines == 0:
		return h.OldStart + lineOffset + 1
	case h.NewLines == 0:
		return h.OldStart + lineOffset - 1
	default:
		return h.OldStart + lineOffset
	}
}

// step validates hunk i against the state and advances the state's line
// bookkeeping. Byte bookkeeping is left to the translator.
func (v *Validator) step(st *chainState, i int, h Hunk) error {
	field := func(name string) string { return fmt.Sprintf("hunks[%d].%s", i, name) }

	switch {
	case h.OldLines < 0 || h.NewLines < 0 || h.OldStart < 0 || h.NewStart < 0:
		return malformed(i, h, ErrCodeInvalidFormat, "negative start or count", field("oldStart"))
	case h.OldLines == 0 && h.NewLines == 0:
		return malformed(i, h, ErrCodeEmptyHunk, "hunk changes no lines", field("oldLines"))
	case h.OldStart == 0 && (h.OldLines != 0 || i != 0):
		return malformed(i, h, ErrCodeZeroStart, "old start 0 is only valid for an insertion at the top of the file", field("oldStart"))
	case h.NewStart == 0 && h.NewLines != 0:
		return malformed(i, h, ErrCodeZeroStart, "new start 0 is only valid for a deletion at the top of the file", field("newStart"))
	}

	anchor := h.OldAnchor()
	if anchor < st.nextOld {
		return malformed(i, h, ErrCodeOutOfOrder,
			fmt.Sprintf("old range starts at line %d but earlier hunks reach line %d", anchor, st.nextOld-1), field("oldStart"))
	}
	if v.oldLineCount >= 0 && anchor+h.OldLines-1 > v.oldLineCount {
		return malformed(i, h, ErrCodeOutOfBounds,
			fmt.Sprintf("old range ends past line %d", v.oldLineCount), field("oldLines"))
	}
	if want := expectedNewStart(h, st.lineOffset); h.NewStart != want {
		return malformed(i, h, ErrCodeChainBroken,
			fmt.Sprintf("new start %d, chaining rule gives %d", h.NewStart, want), field("newStart"))
	}
	if v.newLineCount >= 0 && h.NewAnchor()+h.NewLines-1 > v.newLineCount {
		return malformed(i, h, ErrCodeOutOfBounds,
			fmt.Sprintf("new range ends past line %d", v.newLineCount), field("newLines"))
	}

	st.lineOffset += h.NewLines - h.OldLines
	st.nextOld = anchor + h.OldLines
	return nil
}

func malformed(i int, h Hunk, code, message, field string) error {
	return errors.New(errors.MalformedHunk, fmt.Sprintf("hunk %d %s", i, h),
		&ValidationError{Code: code, Message: message, Field: field})
}
