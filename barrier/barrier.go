// Stop-the-world CPU parking
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package barrier provides the park/release collaborator the coloring
// core uses around every page-table or SMMU modification, so that no
// other CPU observes a half-applied mapping.
package barrier

// Backend parks every CPU other than the caller before a colored-region
// operation begins, and releases them once TLB invalidation for that
// operation has completed. Both calls must be idempotent with respect
// to nested nonzero-count usage: Dispatcher calls ParkOtherCPUs once per
// batch of fragments, not once per fragment.
type Backend interface {
	ParkOtherCPUs()
	ReleaseCPUs()
}

// SingleCore is the Backend used on platforms with one usable CPU at the
// time coloring operations run: there is no second CPU to park, so the
// barrier degrades to masking local interrupts for the duration of the
// operation, mirroring how a single-core system prevents concurrent
// observation of its own page tables.
type SingleCore struct {
	enable, disable func()
	parked          bool
}

// NewSingleCore builds a SingleCore backend from the platform's
// interrupt enable/disable primitives.
func NewSingleCore(disable, enable func()) *SingleCore {
	return &SingleCore{enable: enable, disable: disable}
}

func (s *SingleCore) ParkOtherCPUs() {
	if s.parked {
		return
	}
	s.parked = true
	if s.disable != nil {
		s.disable()
	}
}

func (s *SingleCore) ReleaseCPUs() {
	if !s.parked {
		return
	}
	s.parked = false
	if s.enable != nil {
		s.enable()
	}
}
