// Cache-coloring subsystem of a partitioning hypervisor
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cellcolor defines the error taxonomy shared by every component
// of the cache-coloring subsystem: color arithmetic, colored-region
// fragmentation and mapping, and root-cell dynamic recoloring.
package cellcolor

import "fmt"

// Kind classifies the way a coloring operation failed.
type Kind int

const (
	// ConfigInvalid marks a colored-region declaration that cannot be
	// satisfied: colors zero or out of range, a managed region without a
	// root colored pool, or a colored region declared with no unified
	// cache present.
	ConfigInvalid Kind = iota
	// OutOfBounds marks a managed region that extends past the root
	// colored pool, or a manual region that overlaps it.
	OutOfBounds
	// OutOfMemory marks pool exhaustion while installing page-table
	// nodes.
	OutOfMemory
	// NotSupported marks an SMMU operation requested on a cell with no
	// SMMU hook registered.
	NotSupported
	// RootConflict marks a remap-to-root that found a conflicting
	// mapping during DESTROY; callers in warn mode log and continue.
	RootConflict
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "config invalid"
	case OutOfBounds:
		return "out of bounds"
	case OutOfMemory:
		return "out of memory"
	case NotSupported:
		return "not supported"
	case RootConflict:
		return "root conflict"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error raised by any component of the coloring
// subsystem.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cellcolor: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("cellcolor: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so callers
// can do errors.Is(err, &Error{Kind: OutOfBounds}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError wraps err (which may be nil) as a Kind-tagged error raised by
// operation op.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
