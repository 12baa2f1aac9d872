// Colored memory regions and physical fragments
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package region holds the colored-region data model and the
// range-extraction and fragment-planning logic that turns a colored
// region into the sequence of physical fragments driving the region
// operator.
package region

// Flags mirrors the ordinary memory-region encoding plus the two
// coloring-specific bits.
type Flags uint64

const (
	Read Flags = 1 << iota
	Write
	Execute
	Loadable
	Communication
	RootShared
	IO

	// ColoredCell marks a managed-mode colored region on a non-root cell.
	ColoredCell
	// Colored marks the single root-level colored pool.
	Colored
)

// Has reports whether every bit of want is set in f.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// MemRegion is an ordinary, non-colored memory region declared in a
// cell's configuration.
type MemRegion struct {
	PhysStart uint64
	VirtStart uint64
	Size      uint64
	Flags     Flags
}

// ColoredRegion is a colored memory region declared in a cell's
// configuration.
type ColoredRegion struct {
	PhysStart    uint64
	VirtStart    uint64
	Size         uint64
	Flags        Flags
	Colors       uint64
	RebaseOffset uint64

	// virtCursor tracks progress through fragment planning; it is not
	// part of the declared descriptor and resets to VirtStart at the
	// start of every PlanFragments call.
	virtCursor uint64
}

// Fragment is a single contiguous physical/virtual slice produced by the
// fragment planner. Fragments are created and consumed within a single
// operation and never aliased or retained.
type Fragment struct {
	Phys  uint64
	Virt  uint64
	Size  uint64
	Flags Flags
}

// Range is a maximal run [Low, High] of set bits in a color bitmap.
type Range struct {
	Low, High int
}

// Len returns the number of colors the range spans.
func (r Range) Len() int {
	return r.High - r.Low + 1
}
