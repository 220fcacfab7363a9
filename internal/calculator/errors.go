package calculator

import (
	"errors"
	"fmt"
)

// ErrInvalidAmount is returned when a commission trigger amount is negative
// or not a finite number.
var ErrInvalidAmount = errors.New("amount must be a finite, non-negative number")

// RatioTolerance is how far a fixed ratio configuration may drift from 100.
const RatioTolerance = 0.01

// TreeIntegrityError reports a referral edge set that cannot form a tree.
// The traversal is abandoned; the edge set is never repaired.
type TreeIntegrityError struct {
	// CycleAt is the user id that appears in its own ancestor chain.
	CycleAt string

	// Duplicate is the user id reached through more than one sponsor.
	Duplicate string
}

func (e *TreeIntegrityError) Error() string {
	if e.Duplicate != "" {
		return fmt.Sprintf("referral tree integrity: user %s placed more than once", e.Duplicate)
	}
	return fmt.Sprintf("referral tree integrity: cycle at user %s", e.CycleAt)
}

// TraversalTimeoutError reports a traversal stopped by its context.
// Callers may retry with a smaller depth bound.
type TraversalTimeoutError struct {
	RootID  string
	Visited int
	Err     error
}

func (e *TraversalTimeoutError) Error() string {
	return fmt.Sprintf("traversal from %s stopped after %d members: %v", e.RootID, e.Visited, e.Err)
}

func (e *TraversalTimeoutError) Unwrap() error {
	return e.Err
}

// InvalidRatioConfigError reports a leg ratio configuration that cannot be used.
type InvalidRatioConfigError struct {
	Sum    float64
	Reason string
}

func (e *InvalidRatioConfigError) Error() string {
	if e.Reason != "" {
		return "invalid leg ratio config: " + e.Reason
	}
	return fmt.Sprintf("invalid leg ratio config: ratios sum to %.4f, want 100", e.Sum)
}
