// Colored-region configuration validator
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package validate checks a colored-region declaration against LLC
// geometry and the root colored pool before the region is handed to
// the lifecycle dispatcher, and resolves managed-allocation regions'
// physical base.
package validate

import (
	"fmt"

	"github.com/usbarmory/cellcolor"
	"github.com/usbarmory/cellcolor/color"
	"github.com/usbarmory/cellcolor/llc"
	"github.com/usbarmory/cellcolor/region"
)

// Validate checks r against geo and the root cell's colored pool
// (root may be nil if none is declared), and resolves r.PhysStart for
// a managed-allocation region (PhysStart == 0 on entry).
//
// Root-cell colored regions are not supported in managed mode: for
// isRootCell regions with PhysStart == 0, the coloring bits are
// silently stripped and the region is treated as an ordinary memory
// region rather than rejected.
func Validate(geo *llc.Geometry, root *region.ColoredRegion, r *region.ColoredRegion, isRootCell bool) error {
	managed := r.PhysStart == 0

	if isRootCell && managed {
		r.Flags &^= region.ColoredCell
		r.Colors = 0
		return nil
	}

	if geo.Disabled() {
		return cellcolor.NewError(cellcolor.ConfigInvalid, "validate",
			fmt.Errorf("colored region declared but no unified cache present"))
	}

	limit := uint64(1) << uint(geo.ColorCount)
	if r.Colors == 0 || r.Colors >= limit {
		return cellcolor.NewError(cellcolor.ConfigInvalid, "validate",
			fmt.Errorf("colors %#x out of range for color_count %d", r.Colors, geo.ColorCount))
	}

	if managed {
		if root == nil {
			return cellcolor.NewError(cellcolor.ConfigInvalid, "validate",
				fmt.Errorf("managed region declared with no root colored pool"))
		}

		r.PhysStart = root.PhysStart

		end := SimulateColoring(geo, r.PhysStart, r.Size, r.Colors)
		rootEnd := root.PhysStart + root.Size

		if end > rootEnd {
			return cellcolor.NewError(cellcolor.OutOfBounds, "validate",
				fmt.Errorf("managed region end %#x exceeds root pool end %#x", end, rootEnd))
		}

		return nil
	}

	end := SimulateColoring(geo, r.PhysStart, r.Size, r.Colors)

	if root != nil {
		rootEnd := root.PhysStart + root.Size
		if r.PhysStart < rootEnd && root.PhysStart < end {
			return cellcolor.NewError(cellcolor.OutOfBounds, "validate",
				fmt.Errorf("manual region [%#x, %#x) overlaps root pool [%#x, %#x)", r.PhysStart, end, root.PhysStart, rootEnd))
		}
	}

	return nil
}

// SimulateColoring walks next_colored page by page, without installing
// any mapping, to compute the highest physical address reached by
// size bytes of the requested colors starting at physStart. The
// returned address is one past the last page touched.
//
// This does not detect two managed regions declaring overlapping color
// bitmaps against the same pool; that cross-cell check is left to the
// configurer.
func SimulateColoring(geo *llc.Geometry, physStart, size, colors uint64) uint64 {
	if geo.Disabled() || size == 0 {
		return physStart
	}

	pages := size / geo.PageSize
	phys := physStart

	for i := uint64(0); i < pages; i++ {
		phys = color.NextColored(geo.ColorMask, phys, colors)
		phys += geo.PageSize
	}

	return phys
}
