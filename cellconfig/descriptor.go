// Region-descriptor wire format
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cellconfig implements the on-disk/on-wire encoding of a
// colored-region descriptor and the managed/manual allocation shim
// that bridges it to region.ColoredRegion.
package cellconfig

import (
	"encoding/binary"
	"fmt"

	"github.com/usbarmory/cellcolor/region"
)

// descriptorSize is the fixed wire size: six little-endian u64 fields.
const descriptorSize = 6 * 8

// Descriptor is the fixed-layout configuration-contract encoding of one
// colored region: phys_start, virt_start, size, flags, colors,
// rebase_offset, in that field order.
type Descriptor struct {
	PhysStart    uint64
	VirtStart    uint64
	Size         uint64
	Flags        region.Flags
	Colors       uint64
	RebaseOffset uint64
}

// MarshalBinary encodes d into the fixed six-u64 wire layout.
func (d Descriptor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, descriptorSize)

	binary.LittleEndian.PutUint64(buf[0:8], d.PhysStart)
	binary.LittleEndian.PutUint64(buf[8:16], d.VirtStart)
	binary.LittleEndian.PutUint64(buf[16:24], d.Size)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(d.Flags))
	binary.LittleEndian.PutUint64(buf[32:40], d.Colors)
	binary.LittleEndian.PutUint64(buf[40:48], d.RebaseOffset)

	return buf, nil
}

// UnmarshalBinary decodes buf into d. buf must be exactly
// descriptorSize bytes.
func (d *Descriptor) UnmarshalBinary(buf []byte) error {
	if len(buf) != descriptorSize {
		return fmt.Errorf("cellconfig: descriptor is %d bytes, want %d", len(buf), descriptorSize)
	}

	d.PhysStart = binary.LittleEndian.Uint64(buf[0:8])
	d.VirtStart = binary.LittleEndian.Uint64(buf[8:16])
	d.Size = binary.LittleEndian.Uint64(buf[16:24])
	d.Flags = region.Flags(binary.LittleEndian.Uint64(buf[24:32]))
	d.Colors = binary.LittleEndian.Uint64(buf[32:40])
	d.RebaseOffset = binary.LittleEndian.Uint64(buf[40:48])

	return nil
}

// Region converts d to the in-memory region.ColoredRegion the
// validator and lifecycle packages operate on.
func (d Descriptor) Region() *region.ColoredRegion {
	return &region.ColoredRegion{
		PhysStart:    d.PhysStart,
		VirtStart:    d.VirtStart,
		Size:         d.Size,
		Flags:        d.Flags,
		Colors:       d.Colors,
		RebaseOffset: d.RebaseOffset,
	}
}

// FromRegion captures r's current fields (including any PhysStart
// resolved by validate.Validate for a managed region) back into wire
// form.
func FromRegion(r *region.ColoredRegion) Descriptor {
	return Descriptor{
		PhysStart:    r.PhysStart,
		VirtStart:    r.VirtStart,
		Size:         r.Size,
		Flags:        r.Flags,
		Colors:       r.Colors,
		RebaseOffset: r.RebaseOffset,
	}
}

// Managed reports whether d describes a managed-allocation region
// (PhysStart left zero for the subsystem to resolve against the root
// colored pool at validation time).
func (d Descriptor) Managed() bool {
	return d.PhysStart == 0
}
