package tree

import (
	"errors"
	"fmt"
)

var (
	ErrReferential = errors.New("referential error")
	ErrCorruptTree = errors.New("corrupt tree")
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
)

// ReferentialError rejects a write whose session or parent reference is missing
// or crosses a session boundary.
type ReferentialError struct {
	Resource string
	ID       int64
	Reason   string
}

func (e *ReferentialError) Error() string {
	if e == nil {
		return ErrReferential.Error()
	}
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s %d does not exist", ErrReferential, e.Resource, e.ID)
	}
	return fmt.Sprintf("%s: %s %d %s", ErrReferential, e.Resource, e.ID, e.Reason)
}

func (e *ReferentialError) Is(target error) bool { return target == ErrReferential }

// CorruptTreeError reports a parent chain that revisits a node or exceeds the
// maximum depth.
type CorruptTreeError struct {
	MessageID MessageID
	Chain     []MessageID
	Reason    string
}

func (e *CorruptTreeError) Error() string {
	if e == nil {
		return ErrCorruptTree.Error()
	}
	return fmt.Sprintf("%s at message %d: %s (chain length %d)", ErrCorruptTree, e.MessageID, e.Reason, len(e.Chain))
}

func (e *CorruptTreeError) Is(target error) bool { return target == ErrCorruptTree }

// ValidationError reports a malformed payload. Index is the position of the
// offending entry in a batch, or -1.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	switch {
	case e.Index >= 0 && e.Field != "":
		return fmt.Sprintf("%s (%s[%d]): %s", ErrValidation, e.Field, e.Index, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s (%s): %s", ErrValidation, e.Field, e.Reason)
	default:
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
