// Region operator
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package lifecycle implements the region operator (per-fragment
// map/unmap across stage-2, SMMU, root cell and HV scratch mappings)
// and the lifecycle dispatcher that drives it for every colored region
// of a cell across a CREATE/DESTROY/START/LOAD/DCACHE transition.
package lifecycle

import (
	"fmt"

	"github.com/usbarmory/cellcolor"
	"github.com/usbarmory/cellcolor/cell"
	"github.com/usbarmory/cellcolor/paging"
	"github.com/usbarmory/cellcolor/region"
)

// OpKind is the closed enumeration of colored-region operations, the
// flat superset resolving the two historical, mutually inconsistent
// operation-kind encodings into one.
type OpKind int

const (
	Create OpKind = iota
	Destroy
	Start
	Load
	DCache
	HVCreate
	HVDestroy
	SMMUCreate
	SMMUDestroy
)

func (k OpKind) String() string {
	switch k {
	case Create:
		return "CREATE"
	case Destroy:
		return "DESTROY"
	case Start:
		return "START"
	case Load:
		return "LOAD"
	case DCache:
		return "DCACHE"
	case HVCreate:
		return "HV_CREATE"
	case HVDestroy:
		return "HV_DESTROY"
	case SMMUCreate:
		return "SMMU_CREATE"
	case SMMUDestroy:
		return "SMMU_DESTROY"
	default:
		return "UNKNOWN"
	}
}

// Op is a fully-parameterized operation: the kind, plus the knobs that
// only some kinds consult (Flush for DCACHE, Mode for DESTROY's
// remap-to-root).
type Op struct {
	Kind  OpKind
	Flush paging.FlushKind
	Mode  paging.RemapMode
}

// Operator applies one Op to one fragment at a time, per §4.5. It holds
// the collaborators that are global to the hypervisor rather than
// per-cell: the root cell's steal/return/loader backend and the
// hypervisor's own scratch address space.
type Operator struct {
	Root paging.RootBackend
	HV   paging.HVBackend

	RootMapOffset     uint64
	NumTemporaryPages uint64
	PageSize          uint64
	ScratchVirt       uint64
}

// Apply performs op against fragment f of cell c. There is no partial
// rollback within an operation: a half-applied CREATE is cleaned up by
// the caller invoking DESTROY on the same region, which tolerates
// missing mappings.
func (o *Operator) Apply(op Op, c *cell.Cell, f region.Fragment) error {
	switch op.Kind {
	case Create:
		return o.create(c, f)
	case Destroy:
		return o.destroy(c, f, op.Mode)
	case Start:
		return o.start(f)
	case Load:
		return o.load(f)
	case DCache:
		return o.dcacheFlush(f, op.Flush)
	case HVCreate:
		return o.HV.Create(f.Phys, f.Virt+o.RootMapOffset, f.Size, f.Flags)
	case HVDestroy:
		return o.HV.Destroy(f.Virt+o.RootMapOffset, f.Size)
	case SMMUCreate:
		return o.smmu(c, f, true)
	case SMMUDestroy:
		return o.smmu(c, f, false)
	default:
		return cellcolor.NewError(cellcolor.ConfigInvalid, "lifecycle: apply", fmt.Errorf("unknown op kind %v", op.Kind))
	}
}

func (o *Operator) create(c *cell.Cell, f region.Fragment) error {
	if !f.Flags.Has(region.Communication) && !f.Flags.Has(region.RootShared) {
		if err := o.Root.UnmapFromRoot(f); err != nil {
			return fmt.Errorf("lifecycle: create: %w", err)
		}
	}

	if f.Size < o.PageSize {
		if err := c.Stage2.Subpage(f); err != nil {
			return fmt.Errorf("lifecycle: create: %w", err)
		}
		return nil
	}

	if err := c.Stage2.Map(f); err != nil {
		return fmt.Errorf("lifecycle: create: %w", err)
	}

	return nil
}

func (o *Operator) destroy(c *cell.Cell, f region.Fragment, mode paging.RemapMode) error {
	if f.Size >= o.PageSize {
		if err := c.Stage2.Unmap(f); err != nil {
			return fmt.Errorf("lifecycle: destroy: %w", err)
		}
	}

	if !f.Flags.Has(region.Communication) && !f.Flags.Has(region.RootShared) {
		if err := o.Root.RemapToRoot(f, mode); err != nil {
			return fmt.Errorf("lifecycle: destroy: %w", err)
		}
	}

	return nil
}

func (o *Operator) start(f region.Fragment) error {
	if !f.Flags.Has(region.Loadable) {
		return nil
	}
	return o.Root.UnmapLoader(f, f.Virt+o.RootMapOffset)
}

func (o *Operator) load(f region.Fragment) error {
	if !f.Flags.Has(region.Loadable) {
		return nil
	}
	return o.Root.MapLoader(f, f.Virt+o.RootMapOffset)
}

func (o *Operator) smmu(c *cell.Cell, f region.Fragment, create bool) error {
	if c.SMMU == nil {
		return cellcolor.NewError(cellcolor.NotSupported, "lifecycle: smmu", fmt.Errorf("cell %s has no SMMU table", c.ID))
	}

	if create {
		return c.SMMU.Map(f)
	}
	return c.SMMU.Unmap(f)
}

// dcacheFlush performs DCACHE in slices of at most NumTemporaryPages
// pages, through a temporary hypervisor-local mapping reused across
// slices at the same scratch virtual address.
func (o *Operator) dcacheFlush(f region.Fragment, kind paging.FlushKind) error {
	sliceBytes := o.NumTemporaryPages * o.PageSize
	if sliceBytes == 0 {
		sliceBytes = f.Size
	}

	for off := uint64(0); off < f.Size; off += sliceBytes {
		n := sliceBytes
		if remaining := f.Size - off; n > remaining {
			n = remaining
		}

		if err := o.HV.Create(f.Phys+off, o.ScratchVirt, n, f.Flags); err != nil {
			return fmt.Errorf("lifecycle: dcache: %w", err)
		}

		if err := o.HV.FlushByVA(o.ScratchVirt, n, kind); err != nil {
			o.HV.Destroy(o.ScratchVirt, n)
			return fmt.Errorf("lifecycle: dcache: %w", err)
		}

		if err := o.HV.Destroy(o.ScratchVirt, n); err != nil {
			return fmt.Errorf("lifecycle: dcache: %w", err)
		}
	}

	return nil
}
