// Stage-2 translation table maintenance
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
	"github.com/usbarmory/cellcolor/bits"
	"github.com/usbarmory/cellcolor/region"
)

// Stage-2 descriptor attribute bits
// (ARM Architecture Reference Manual ARMv8-A, D5.3, "stage 2 translation
// table descriptor formats").
const (
	S2AP_NONE uint64 = 0b00
	S2AP_RO   uint64 = 0b01
	S2AP_WO   uint64 = 0b10
	S2AP_RW   uint64 = 0b11

	S2_XN uint64 = 1 << 53

	// MemAttr encodes the stage-2 memory type in bits [5:2]; Normal
	// Write-Back Cacheable is the only type the coloring subsystem
	// installs for ordinary cell RAM.
	MemAttrNormalWB uint64 = 0xf
	MemAttrDevice   uint64 = 0x0
)

type entry struct {
	phys  uint64
	attrs uint64
	flags region.Flags
}

// Stage2 is a cell's guest-physical-to-host-physical translation table.
// It is a generalized, per-fragment insert/remove form of the teacher's
// flat L1/L2 identity-mapping writer: every entry still packs access
// permission and executable-never bits the same way, but entries are
// addressed individually by virtual page rather than produced by a
// single whole-address-space walk.
type Stage2 struct {
	mu       sync.Mutex
	pageSize uint64
	pool     PoolBackend
	entries  map[uint64]entry
	nodes    int
}

// NewStage2 creates an empty stage-2 table for a cell, backed by pool
// for its internal node allocation.
func NewStage2(pageSize uint64, pool PoolBackend) *Stage2 {
	return &Stage2{
		pageSize: pageSize,
		pool:     pool,
		entries:  make(map[uint64]entry),
	}
}

func translateAttrs(flags region.Flags) uint64 {
	var attrs uint64

	switch {
	case flags.Has(region.Read) && flags.Has(region.Write):
		bits.SetN64(&attrs, 0, 0b11, S2AP_RW)
	case flags.Has(region.Write):
		bits.SetN64(&attrs, 0, 0b11, S2AP_WO)
	case flags.Has(region.Read):
		bits.SetN64(&attrs, 0, 0b11, S2AP_RO)
	default:
		bits.SetN64(&attrs, 0, 0b11, S2AP_NONE)
	}

	if !flags.Has(region.Execute) {
		attrs |= S2_XN
	}

	if flags.Has(region.IO) {
		bits.SetN64(&attrs, 2, 0xf, MemAttrDevice)
	} else {
		bits.SetN64(&attrs, 2, 0xf, MemAttrNormalWB)
	}

	return attrs
}

// Map inserts f into the table, allocating a backing table node from
// the pool the first time the table grows.
func (s *Stage2) Map(f region.Fragment) error {
	if f.Size == 0 || f.Size%s.pageSize != 0 {
		return cellcolor.NewError(cellcolor.ConfigInvalid, "paging: map", fmt.Errorf("fragment size %#x is not a page multiple", f.Size))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nodes == 0 {
		if _, err := s.pool.AllocPages(1); err != nil {
			return cellcolor.NewError(cellcolor.OutOfMemory, "paging: map", err)
		}
		s.nodes++
	}

	pages := f.Size / s.pageSize
	for i := uint64(0); i < pages; i++ {
		v := f.Virt + i*s.pageSize
		p := f.Phys + i*s.pageSize
		s.entries[v] = entry{phys: p, attrs: translateAttrs(f.Flags), flags: f.Flags}
	}

	return nil
}

// Unmap removes the entries backing f. Missing entries are tolerated so
// that DESTROY can be invoked on a partially-applied CREATE.
func (s *Stage2) Unmap(f region.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages := f.Size / s.pageSize
	for i := uint64(0); i < pages; i++ {
		delete(s.entries, f.Virt+i*s.pageSize)
	}

	return nil
}

// Subpage registers a fragment smaller than a page. The coloring core
// never reads it back; the registration is the MMIO subpage
// registrar's responsibility to act on.
func (s *Stage2) Subpage(f region.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[f.Virt] = entry{phys: f.Phys, attrs: translateAttrs(f.Flags), flags: f.Flags}

	return nil
}

// Lookup returns the physical address currently mapped at virtual page
// v, for test and introspection use.
func (s *Stage2) Lookup(v uint64) (phys uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[v]
	return e.phys, ok
}

// Len reports the number of installed entries, for test use.
func (s *Stage2) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
