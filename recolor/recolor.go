// Root-cell dynamic recoloring
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package recolor implements the in-place copy-coloring of the root
// cell's RAM through temporary hypervisor mappings: Forward converts
// the already-running identity layout to the color-restricted layout
// at hypervisor enable, Reverse restores it at shutdown.
package recolor

import (
	"fmt"

	"github.com/usbarmory/cellcolor/paging"
	"github.com/usbarmory/cellcolor/region"
)

// Memory is the physical byte-addressable backing store the engine
// streams pages through. It stands in for the two HV mappings of the
// algorithm description: the engine still installs and tears down
// those mappings via HV for bookkeeping and TLB-accounting purposes,
// but the actual bytes move through Memory addressed by physical
// frame, the same way gopheros' vmm streams a page through a window
// mapping by copying the bytes the window currently aliases.
type Memory interface {
	ReadAt(phys uint64, buf []byte) error
	WriteAt(phys uint64, buf []byte) error
}

// Engine performs the streaming copy-coloring of one colored region.
type Engine struct {
	HV  paging.HVBackend
	Mem Memory

	PageSize          uint64
	NumTemporaryPages uint64
	RootMapOffset     uint64
	ScratchVirt       uint64

	ColorCount int
	WaySize    uint64
}

// Forward converts r's guest-virtual range from the natural identity
// layout (physical == r.VirtStart + offset) to the color-restricted
// layout described by r (physical frames drawn from r.PhysStart,
// striped by color per region.PlanFragments). The streaming copy runs
// backwards in both slice and page order, since the colored physical
// range may overlap the identity source range.
func (e *Engine) Forward(r *region.ColoredRegion) error {
	return e.run(r, true)
}

// Reverse restores r's guest-virtual range from the colored layout
// back to the identity layout. Same structure as Forward but forward
// order, since at shutdown there is no longer an overlap hazard in
// that direction once the destination (identity) range is known free.
func (e *Engine) Reverse(r *region.ColoredRegion) error {
	return e.run(r, false)
}

func (e *Engine) run(r *region.ColoredRegion, toColored bool) error {
	if r.Size == 0 {
		return nil
	}

	frags := region.PlanFragments(r, e.ColorCount, e.PageSize, e.WaySize)
	if len(frags) == 0 {
		return nil
	}

	op := "forward"
	if !toColored {
		op = "reverse"
	}

	for _, f := range frags {
		if err := e.HV.Create(f.Phys, f.Virt+e.RootMapOffset, f.Size, f.Flags); err != nil {
			return fmt.Errorf("recolor: %s: hv_create colored mapping: %w", op, err)
		}
	}

	copyErr := e.streamCopy(r, frags, toColored)

	for _, f := range frags {
		if err := e.HV.Destroy(f.Virt+e.RootMapOffset, f.Size); err != nil && copyErr == nil {
			copyErr = fmt.Errorf("recolor: %s: hv_destroy colored mapping: %w", op, err)
		}
	}

	return copyErr
}

type sliceRange struct {
	start, end uint64
}

func sliceBounds(total, sliceSize uint64) []sliceRange {
	if sliceSize == 0 {
		sliceSize = total
	}

	var out []sliceRange
	for off := uint64(0); off < total; off += sliceSize {
		end := off + sliceSize
		if end > total {
			end = total
		}
		out = append(out, sliceRange{off, end})
	}

	return out
}

// streamCopy moves every byte of r between the identity and colored
// layouts in slices of at most NumTemporaryPages pages. toColored
// selects the copy direction and, with it, the mandatory order:
// backwards (last slice first, last page of each slice first) when
// copying identity-to-colored, forwards otherwise.
func (e *Engine) streamCopy(r *region.ColoredRegion, frags []region.Fragment, toColored bool) error {
	sliceBytes := e.NumTemporaryPages * e.PageSize

	slices := sliceBounds(r.Size, sliceBytes)

	if toColored {
		for i := len(slices) - 1; i >= 0; i-- {
			if err := e.copySlice(r, frags, slices[i], toColored); err != nil {
				return err
			}
		}
		return nil
	}

	for i := range slices {
		if err := e.copySlice(r, frags, slices[i], toColored); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) copySlice(r *region.ColoredRegion, frags []region.Fragment, sl sliceRange, toColored bool) error {
	op := "forward"
	if !toColored {
		op = "reverse"
	}

	identBase := r.VirtStart + sl.start
	sliceSize := sl.end - sl.start

	if err := e.HV.Create(identBase, e.ScratchVirt, sliceSize, r.Flags); err != nil {
		return fmt.Errorf("recolor: %s: hv_create scratch window: %w", op, err)
	}
	defer e.HV.Destroy(e.ScratchVirt, sliceSize)

	pages := sliceSize / e.PageSize

	pageOrder := make([]uint64, pages)
	for i := range pageOrder {
		pageOrder[i] = uint64(i)
	}
	if toColored {
		for i, j := 0, len(pageOrder)-1; i < j; i, j = i+1, j-1 {
			pageOrder[i], pageOrder[j] = pageOrder[j], pageOrder[i]
		}
	}

	buf := make([]byte, e.PageSize)

	for _, p := range pageOrder {
		voff := sl.start + p*e.PageSize
		identPhys := r.VirtStart + voff
		coloredPhys := lookupPhys(frags, r.VirtStart+voff)

		if toColored {
			if err := e.Mem.ReadAt(identPhys, buf); err != nil {
				return fmt.Errorf("recolor: %s: read identity page: %w", op, err)
			}
			if err := e.Mem.WriteAt(coloredPhys, buf); err != nil {
				return fmt.Errorf("recolor: %s: write colored page: %w", op, err)
			}
			continue
		}

		if err := e.Mem.ReadAt(coloredPhys, buf); err != nil {
			return fmt.Errorf("recolor: %s: read colored page: %w", op, err)
		}
		if err := e.Mem.WriteAt(identPhys, buf); err != nil {
			return fmt.Errorf("recolor: %s: write identity page: %w", op, err)
		}
	}

	return nil
}

// lookupPhys returns the colored physical address backing guest
// virtual page virt, as planned by frags.
func lookupPhys(frags []region.Fragment, virt uint64) uint64 {
	for _, f := range frags {
		if virt >= f.Virt && virt < f.Virt+f.Size {
			return f.Phys + (virt - f.Virt)
		}
	}
	return 0
}
