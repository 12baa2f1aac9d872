// Lifecycle dispatcher
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package lifecycle

import (
	"fmt"

	"github.com/usbarmory/cellcolor/barrier"
	"github.com/usbarmory/cellcolor/cell"
	"github.com/usbarmory/cellcolor/hvlog"
	"github.com/usbarmory/cellcolor/llc"
	"github.com/usbarmory/cellcolor/paging"
	"github.com/usbarmory/cellcolor/region"
)

// Dispatcher drives the Operator for every colored region of a cell on
// one lifecycle transition. Both contexts it runs in are stop-the-world:
// every invocation parks other CPUs before the first fragment and
// releases them only after the last one (or the first fatal error).
type Dispatcher struct {
	Operator *Operator
	Barrier  barrier.Backend
	Geometry *llc.Geometry
	Log      *hvlog.Logger
}

// Drive applies kind to every colored region of c, fragment by fragment,
// in declaration order across regions and ascending virtual order within
// a region. CREATE/START/LOAD fail fast: the first error aborts the
// whole transition. DESTROY is warn-on-error: RootConflict failures are
// logged and the dispatcher proceeds, since shutdown must always make
// forward progress.
func (d *Dispatcher) Drive(kind OpKind, c *cell.Cell, flush paging.FlushKind) error {
	d.Barrier.ParkOtherCPUs()
	defer d.Barrier.ReleaseCPUs()

	warnOnError := kind == Destroy

	mode := paging.RemapAbort
	if warnOnError {
		mode = paging.RemapWarn
	}

	op := Op{Kind: kind, Flush: flush, Mode: mode}

	for _, r := range c.Colored {
		frags := region.PlanFragments(r, d.Geometry.ColorCount, d.Geometry.PageSize, d.Geometry.WaySize)

		for _, f := range frags {
			if err := d.Operator.Apply(op, c, f); err != nil {
				d.logf("cell %s: %v fragment virt=%#x failed: %v", c.ID, kind, f.Virt, err)

				if !warnOnError {
					return fmt.Errorf("lifecycle: dispatch %v: %w", kind, err)
				}
			}
		}

		d.logf("cell %s: %v colored region virt=%#x size=%#x complete", c.ID, kind, r.VirtStart, r.Size)
	}

	return nil
}

// Revert invokes DESTROY across every colored region of c, tolerating
// missing mappings, to unwind a CREATE/LOAD/START that failed partway
// through.
func (d *Dispatcher) Revert(c *cell.Cell) error {
	return d.Drive(Destroy, c, paging.CleanAndInvalidate)
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Log != nil {
		d.Log.Printf(format, args...)
	}
}
