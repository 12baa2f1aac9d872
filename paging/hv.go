// Hypervisor-local scratch and linear mappings
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package paging

import (
	"sync"

	"github.com/usbarmory/cellcolor/region"
)

// DCacheFlusher performs a cache-maintenance-by-virtual-address
// operation over [vbase, vbase+size). The HV backend's FlushByVA
// delegates to the one passed to NewHV; tests supply a recording stub,
// and a nil flusher makes FlushByVA a no-op.
type DCacheFlusher func(vbase, size uint64, kind FlushKind) error

// HV is the hypervisor's own address space: a table used exclusively
// for the linear colored mapping the recoloring engine installs over
// root RAM (HV_CREATE/HV_DESTROY) and for the temporary scratch window
// DCACHE and the recoloring engine stream page copies through. Never
// exposed to cells.
type HV struct {
	mu      sync.Mutex
	table   *Stage2
	flusher DCacheFlusher
}

// NewHV builds an HV backend over table, using flusher to implement
// FlushByVA.
func NewHV(table *Stage2, flusher DCacheFlusher) *HV {
	return &HV{table: table, flusher: flusher}
}

// Create installs a mapping at virt covering size bytes starting at
// phys, with the requested flags.
func (h *HV) Create(phys, virt, size uint64, flags region.Flags) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.table.Map(region.Fragment{Phys: phys, Virt: virt, Size: size, Flags: flags})
}

// Destroy removes the mapping installed by Create.
func (h *HV) Destroy(virt, size uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.table.Unmap(region.Fragment{Virt: virt, Size: size})
}

// FlushByVA performs the requested cache-maintenance operation over
// [vbase, vbase+size).
func (h *HV) FlushByVA(vbase, size uint64, kind FlushKind) error {
	if h.flusher == nil {
		return nil
	}
	return h.flusher(vbase, size, kind)
}
