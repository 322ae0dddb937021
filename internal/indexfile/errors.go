package indexfile

import (
	"errors"

	"github.com/ngina/bplusindex/internal/btree"
	"github.com/ngina/bplusindex/internal/entry"
)

// The eight error kinds: sentinel values checked with errors.Is, wrapped
// with fmt.Errorf("...: %w", err) at each call site the same way the
// pager reports its own failures.
var (
	ErrBadArgument = errors.New("indexfile: bad argument")
	// ErrUniquenessViolation is the same sentinel internal/btree.Insert
	// returns for a unique-comparator collision (P5); aliased here so
	// callers above this package only ever need to check one sentinel
	// regardless of which layer detected the violation.
	ErrUniquenessViolation = btree.ErrUniquenessViolation
	// ErrNullabilityViolation is the same sentinel internal/entry.PackLeaf
	// returns when a value outside the null-bitmap's range is nil.
	ErrNullabilityViolation = entry.ErrNullabilityViolation
	ErrInvalidEscape        = errors.New("indexfile: invalid LIKE escape sequence")
	ErrUnexpected           = errors.New("indexfile: unexpected internal state (treat as corruption)")
	ErrNotSupported         = errors.New("indexfile: unsupported operation")
	ErrVerifyAborted        = errors.New("indexfile: verify detected an inconsistency")
	ErrCancel               = errors.New("indexfile: operation cancelled")
)
