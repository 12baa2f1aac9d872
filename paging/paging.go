// Page-table and pool collaborator interfaces
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package paging implements the collaborator interfaces the region
// operator drives for each fragment: stage-2 table maintenance, SMMU
// table maintenance, root-cell steal/return, hypervisor-local scratch
// mappings, and the page pool backing table nodes.
//
// Stage2, and the Root and HV backends built over it, generalize the
// teacher's flat identity-mapped MMU table writer into a per-fragment
// insert/remove API; none of it is specific to one SoC.
package paging

import "github.com/usbarmory/cellcolor/region"

// FlushKind selects a cache-maintenance-by-virtual-address operation.
type FlushKind int

const (
	Clean FlushKind = iota
	Invalidate
	CleanAndInvalidate
)

func (k FlushKind) String() string {
	switch k {
	case Clean:
		return "clean"
	case Invalidate:
		return "invalidate"
	case CleanAndInvalidate:
		return "clean+invalidate"
	default:
		return "unknown"
	}
}

// RemapMode tags how the caller of RemapToRoot treats a conflicting
// mapping. RemapToRoot itself returns the conflict as an error in both
// modes.
type RemapMode int

const (
	// RemapAbort: the caller treats the conflict as fatal.
	RemapAbort RemapMode = iota
	// RemapWarn: the caller logs the conflict and proceeds, used during
	// DESTROY so that shutdown always makes forward progress.
	RemapWarn
)

// Table is a per-cell page-table root: a stage-2 root for CPU accesses,
// or an SMMU root for DMA-capable devices.
type Table interface {
	// Map inserts fragment f into the table with its translated flags.
	Map(f region.Fragment) error
	// Unmap removes the entry backing fragment f.
	Unmap(f region.Fragment) error
	// Subpage registers a fragment smaller than a page with the MMIO
	// subpage registrar instead of inserting a full table entry.
	Subpage(f region.Fragment) error
}

// RootBackend exposes the operations CREATE/DESTROY/START/LOAD perform
// against the root cell: stealing frames it no longer owns, returning
// them, and installing/removing the rebased loader mapping.
type RootBackend interface {
	UnmapFromRoot(f region.Fragment) error
	RemapToRoot(f region.Fragment, mode RemapMode) error
	MapLoader(f region.Fragment, virt uint64) error
	UnmapLoader(f region.Fragment, virt uint64) error
}

// HVBackend exposes the hypervisor's own address space: the linear
// colored mapping the recoloring engine installs over root RAM, and the
// temporary scratch window DCACHE flushing and recoloring stream
// through.
type HVBackend interface {
	Create(phys, virt, size uint64, flags region.Flags) error
	Destroy(virt, size uint64) error
	FlushByVA(vbase, size uint64, kind FlushKind) error
}

// PoolBackend backs the page-table nodes a Table allocates as it grows.
type PoolBackend interface {
	AllocPages(n int) (uint64, error)
	FreePages(addr uint64, n int)
}
