// Last-level cache geometry discovery
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package llc discovers the geometry of the last-level cache at hypervisor
// activation and derives the cache-coloring constants from it.
package llc

import (
	"fmt"

	"github.com/usbarmory/cellcolor/color"
)

// MaxLevels is the number of cache-hierarchy levels walked during probing,
// matching the ARMv8 Cache Level ID register's maximum representable depth.
const MaxLevels = 7

// Level describes one level of the cache hierarchy as reported by the
// cache-identification registers, mirroring the level taxonomy of hwloc's
// topology object types (HWLOC_OBJ_L1CACHE .. L5CACHE, split by
// unified/instruction/data).
type Level struct {
	Number        int
	LineSize      uint64
	Associativity int
	Sets          int
	Unified       bool
	Present       bool
}

// CacheIDReader abstracts the cache-identification register reads that
// discover hierarchy geometry. The default ARM64 implementation reads
// CLIDR_EL1/CCSIDR_EL1; tests supply a fake.
type CacheIDReader interface {
	// Levels returns the cache type reported for each of the first
	// MaxLevels levels (index 0 = L1). An entry with Present == false
	// means that level does not exist.
	Levels() [MaxLevels]Level
}

// Geometry is the immutable, process-wide record of LLC layout computed at
// probe time. Construct once via Probe and never mutate.
type Geometry struct {
	PageShift int
	PageSize  uint64
	PageMask  uint64

	WaySize       uint64
	LineSize      uint64
	Associativity int
	Sets          int

	ColorCount int
	ColorMask  color.Mask
}

// ErrNoUnifiedCache is returned by Probe when the hierarchy contains no
// unified cache level; coloring is then disabled for the platform:
// ColorCount is zero, every colored-region operation becomes a no-op, and
// declaring a colored region is a fatal configuration error.
var ErrNoUnifiedCache = fmt.Errorf("llc: no unified cache level present")

// Probe walks the cache hierarchy from L1 upward, selects the last unified
// level as the coloring target, and derives its geometry.
func Probe(pageSize uint64, reader CacheIDReader) (*Geometry, error) {
	levels := reader.Levels()

	var target *Level
	for i := range levels {
		if levels[i].Present && levels[i].Unified {
			l := levels[i]
			target = &l
		}
	}

	if target == nil {
		return nil, ErrNoUnifiedCache
	}

	// way_size is bytes per associativity way: line_size * sets, the
	// per-way footprint of the cache.
	waySize := target.LineSize * uint64(target.Sets)

	mask := color.DeriveMask(pageSize, waySize)

	g := &Geometry{
		PageShift:     mask.PageShift(),
		PageSize:      pageSize,
		PageMask:      pageSize - 1,
		WaySize:       waySize,
		LineSize:      target.LineSize,
		Associativity: target.Associativity,
		Sets:          target.Sets,
		ColorCount:    mask.Count(),
		ColorMask:     mask,
	}

	return g, nil
}

// Disabled reports whether coloring is inactive for this geometry
// (ColorCount == 0): every colored-region operation is a no-op, and
// declaring a colored region is a configuration error.
func (g *Geometry) Disabled() bool {
	return g == nil || g.ColorCount == 0
}

func (g *Geometry) String() string {
	if g.Disabled() {
		return "llc: coloring disabled (no unified cache)"
	}

	return fmt.Sprintf(
		"llc: page=%d way=%d line=%d assoc=%d sets=%d colors=%d mask=%#x",
		g.PageSize, g.WaySize, g.LineSize, g.Associativity, g.Sets, g.ColorCount, uint64(g.ColorMask),
	)
}
