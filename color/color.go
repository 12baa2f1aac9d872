// Cache-coloring address arithmetic
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package color implements the physical-address bit arithmetic that
// underlies LLC cache coloring: deriving the color-selecting bitmask from
// cache geometry, extracting the color index of a physical page, and
// finding the next page frame belonging to a requested set of colors.
package color

import "math/bits"

// Mask is the subset of a physical address that selects the cache color,
// always a contiguous run of bits above the page offset and below the way
// boundary.
type Mask uint64

// DeriveMask returns the color mask for the given page and way sizes:
// every bit in positions [log2(pageSize), log2(waySize)) is set.
//
// Both sizes must be powers of two with waySize > pageSize, otherwise the
// returned mask is zero (coloring is meaningless on such geometry).
func DeriveMask(pageSize, waySize uint64) Mask {
	if pageSize == 0 || waySize == 0 || !isPow2(pageSize) || !isPow2(waySize) || waySize <= pageSize {
		return 0
	}

	pageShift := bits.TrailingZeros64(pageSize)
	wayShift := bits.TrailingZeros64(waySize)

	var m uint64
	for i := pageShift; i < wayShift; i++ {
		m |= 1 << uint(i)
	}

	return Mask(m)
}

func isPow2(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// Count returns color_count for the mask: the number of distinct colors it
// can select, always a power of two.
func (m Mask) Count() int {
	if m == 0 {
		return 0
	}
	return 1 << bits.OnesCount64(uint64(m))
}

// PageShift returns the position of the mask's lowest set bit, i.e. the
// page_shift the mask was derived against.
func (m Mask) PageShift() int {
	if m == 0 {
		return 0
	}
	return bits.TrailingZeros64(uint64(m))
}

// WayShift returns the position one above the mask's highest set bit.
func (m Mask) WayShift() int {
	if m == 0 {
		return 0
	}
	return 64 - bits.LeadingZeros64(uint64(m))
}

// WaySize returns 1 << WayShift(), the stride between pages of identical
// color.
func (m Mask) WaySize() uint64 {
	if m == 0 {
		return 0
	}
	return 1 << uint(m.WayShift())
}

// Of returns the color index of physical page frame phys: the masked bits
// of the address, shifted down to bit zero.
func (m Mask) Of(phys uint64) uint64 {
	if m == 0 {
		return 0
	}
	return (phys & uint64(m)) >> uint(m.PageShift())
}

// Clamp truncates a color bitmap to the number of bits the mask can
// address.
func (m Mask) Clamp(colors uint64) uint64 {
	n := m.Count()
	if n == 0 || n >= 64 {
		return colors
	}
	return colors & ((uint64(1) << uint(n)) - 1)
}

// withColor replaces the color bits of phys with the given color index,
// leaving every other bit untouched.
func (m Mask) withColor(phys, c uint64) uint64 {
	return (phys &^ uint64(m)) | (c << uint(m.PageShift()))
}

// NextColored returns the lowest physical page frame >= phys whose color
// index is a set bit of colors.
//
// A zero color bitmap disables coloring for this call and phys is returned
// unchanged. The bitmap is clamped to the mask's color count before use.
func NextColored(m Mask, phys uint64, colors uint64) uint64 {
	if colors == 0 || m == 0 {
		return phys
	}

	colors = m.Clamp(colors)
	waySize := m.WaySize()

	for {
		c := m.Of(phys)

		if bit, ok := lowestSetBitAtOrAbove(colors, c); ok {
			return m.withColor(phys, bit)
		}

		// carry: clear the color bits and advance by one way, retry from
		// color 0 in the next stride.
		phys = (phys &^ uint64(m)) + waySize
	}
}

// lowestSetBitAtOrAbove returns the position of the lowest set bit of v at
// position >= from, if any.
func lowestSetBitAtOrAbove(v uint64, from uint64) (uint64, bool) {
	if from >= 64 {
		return 0, false
	}

	masked := v &^ ((uint64(1) << from) - 1)
	if masked == 0 {
		return 0, false
	}

	return uint64(bits.TrailingZeros64(masked)), true
}
