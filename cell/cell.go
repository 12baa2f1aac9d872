// Cell descriptors
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cell holds the Cell type: an isolated partition as seen by the
// coloring subsystem, with its ordinary and colored memory regions and
// its two independent page-table roots.
package cell

import (
	"github.com/usbarmory/cellcolor/paging"
	"github.com/usbarmory/cellcolor/region"
)

// Cell is an isolated partition: an identifier, its memory regions, and
// the two page-table roots the region operator drives (stage-2 for CPU
// accesses, SMMU for DMA-capable devices assigned to it). SMMU is nil
// for cells with no assigned stream IDs or no SMMU hook at boot.
type Cell struct {
	ID string

	// Root marks the privileged cell the hypervisor was loaded from;
	// only the root cell may hold the colored pool and is the target of
	// unmap_from_root/remap_to_root.
	Root bool

	Memory  []region.MemRegion
	Colored []*region.ColoredRegion

	Stage2 paging.Table
	SMMU   paging.Table
}

// New creates a cell with the given identifier and stage-2 table. SMMU
// is left nil; set it after construction for cells with DMA-capable
// devices assigned.
func New(id string, stage2 paging.Table) *Cell {
	return &Cell{ID: id, Stage2: stage2}
}

// AddColored appends a colored region to the cell's declared
// configuration. It does not validate or map it; see the validate and
// lifecycle packages.
func (c *Cell) AddColored(r *region.ColoredRegion) {
	c.Colored = append(c.Colored, r)
}
