// SMMU table maintenance
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

// SMMU mirrors a cell's stage-2 mappings in the SMMU's own translation
// tables, for DMA-capable devices assigned to the cell. It is
// restructured from the teacher's numbered-region memory-firewall
// driver: "regions" there become per-cell stream-ID mappings here, and
// the firewall's bypass-register check becomes the not-installed check
// below.
type SMMU struct {
	mu        sync.Mutex
	pageSize  uint64
	streamID  uint32
	installed bool
	entries   map[uint64]uint64
}

// NewSMMU creates an SMMU table for the given device stream ID. installed
// reports whether the SMMU hook was registered at boot; when false every
// operation fails with NotSupported, mirroring a TZASC left in bypass.
func NewSMMU(streamID uint32, pageSize uint64, installed bool) *SMMU {
	return &SMMU{
		streamID:  streamID,
		pageSize:  pageSize,
		installed: installed,
		entries:   make(map[uint64]uint64),
	}
}

func (s *SMMU) checkInstalled(op string) error {
	if !s.installed {
		return cellcolor.NewError(cellcolor.NotSupported, op, fmt.Errorf("smmu: no hook registered for stream %d", s.streamID))
	}
	return nil
}

// Map mirrors CREATE into the SMMU table.
func (s *SMMU) Map(f region.Fragment) error {
	if err := s.checkInstalled("paging: smmu_map"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pages := f.Size / s.pageSize
	for i := uint64(0); i < pages; i++ {
		s.entries[f.Virt+i*s.pageSize] = f.Phys + i*s.pageSize
	}

	return nil
}

// Unmap mirrors DESTROY into the SMMU table.
func (s *SMMU) Unmap(f region.Fragment) error {
	if err := s.checkInstalled("paging: smmu_unmap"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pages := f.Size / s.pageSize
	for i := uint64(0); i < pages; i++ {
		delete(s.entries, f.Virt+i*s.pageSize)
	}

	return nil
}

// Subpage is not meaningful for device DMA mappings; the SMMU only ever
// sees whole-page fragments, so this always reports not-supported.
func (s *SMMU) Subpage(f region.Fragment) error {
	return cellcolor.NewError(cellcolor.NotSupported, "paging: smmu_subpage", nil)
}

// Len reports the number of installed entries, for test use.
func (s *SMMU) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
