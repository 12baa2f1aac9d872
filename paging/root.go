// Root-cell steal/return and loader mappings
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package paging

import (
	"fmt"
	"sync"

	"github.com/usbarmory/cellcolor"
	"github.com/usbarmory/cellcolor/region"
)

// Root operates on the root cell's own stage-2 table on behalf of the
// region operator: stealing frames a non-root cell's colored region is
// about to take over, returning them at DESTROY, and installing the
// rebased loader mapping LOAD/START use to let the root write inmate
// images into colored frames it no longer directly maps.
type Root struct {
	mu    sync.Mutex
	table *Stage2
}

// NewRoot wraps the root cell's stage-2 table.
func NewRoot(table *Stage2) *Root {
	return &Root{table: table}
}

// UnmapFromRoot steals fragment f's frames from the root cell. Failure
// is always fatal to the enclosing CREATE: the root must never be left
// believing it owns frames a cell is about to write into.
func (r *Root) UnmapFromRoot(f region.Fragment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.table.Unmap(f); err != nil {
		return cellcolor.NewError(cellcolor.ConfigInvalid, "paging: unmap_from_root", err)
	}

	return nil
}

// RemapToRoot returns fragment f's frames to the root cell at DESTROY.
// A conflicting mapping is returned as a RootConflict error in either
// mode; in RemapWarn mode the caller logs and tolerates it, since
// shutdown must always make forward progress.
func (r *Root) RemapToRoot(f region.Fragment, mode RemapMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, conflict := r.table.Lookup(f.Virt); conflict {
		// The mode itself doesn't change what is returned here; it is
		// the caller (lifecycle.Dispatcher) that decides whether a
		// RootConflict aborts or is logged and tolerated.
		return cellcolor.NewError(cellcolor.RootConflict, "paging: remap_to_root", fmt.Errorf("root already maps %#x", f.Virt))
	}

	return r.table.Map(f)
}

// MapLoader installs the loader mapping for fragment f at the rebased
// virtual address virt, so the root cell can write the inmate image
// into the physically colored frames.
func (r *Root) MapLoader(f region.Fragment, virt uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	loader := region.Fragment{Phys: f.Phys, Virt: virt, Size: f.Size, Flags: f.Flags | region.Read | region.Write}

	return r.table.Map(loader)
}

// UnmapLoader removes the loader mapping installed by MapLoader.
func (r *Root) UnmapLoader(f region.Fragment, virt uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	loader := region.Fragment{Phys: f.Phys, Virt: virt, Size: f.Size, Flags: f.Flags}

	return r.table.Unmap(loader)
}
