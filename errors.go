package vdet

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrPrecondition is wrapped by every error reporting a caller contract breach,
// such as a bad cap, an unknown frame or a malformed matrix.
var ErrPrecondition = errors.New("precondition violated")

// ProtocolMismatchError is returned when protocols used together describe different videos.
type ProtocolMismatchError struct {
	Want string
	Got  string
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("protocol video mismatch: expected %q, got %q", e.Want, e.Got)
}

// ScoreCountMismatchError is returned when a scorer answers with a different
// number of entries than it was asked for. Classes is set when the mismatch is
// in the length of one score vector rather than in the number of boxes.
type ScoreCountMismatchError struct {
	Frame    int
	Expected int
	Got      int
	Classes  bool
}

func (e *ScoreCountMismatchError) Error() string {
	if e.Classes {
		return fmt.Sprintf("frame %d: score vector has %d classes, expected %d", e.Frame, e.Got, e.Expected)
	}
	return fmt.Sprintf("frame %d: scorer returned %d score vectors for %d boxes", e.Frame, e.Got, e.Expected)
}

// ScoreAlignmentError is returned when a scorer pairs a score vector with a
// box other than the one submitted at that position.
type ScoreAlignmentError struct {
	Frame int
	Index int
	Want  BBox
	Got   BBox
}

func (e *ScoreAlignmentError) Error() string {
	return fmt.Sprintf("frame %d: scored box %d is %v, submitted %v", e.Frame, e.Index, e.Got, e.Want)
}

// ImageNotFoundError is returned by an ImageLoader when a frame image cannot be read.
type ImageNotFoundError struct {
	Path string
	Err  error
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("image not found: %s: %v", e.Path, e.Err)
}

func (e *ImageNotFoundError) Unwrap() error {
	return e.Err
}

func preconditionf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrPrecondition, format, args...)
}
