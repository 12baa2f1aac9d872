package validate

import (
	"errors"
	"testing"

	"github.com/usbarmory/cellcolor"
	"github.com/usbarmory/cellcolor/color"
	"github.com/usbarmory/cellcolor/llc"
	"github.com/usbarmory/cellcolor/region"
)

func testGeometry() *llc.Geometry {
	mask := color.DeriveMask(0x1000, 0x10000)
	return &llc.Geometry{
		PageShift:  mask.PageShift(),
		PageSize:   0x1000,
		WaySize:    0x10000,
		ColorCount: mask.Count(),
		ColorMask:  mask,
	}
}

func TestValidateRejectsOutOfRangeColors(t *testing.T) {
	geo := testGeometry()

	r := &region.ColoredRegion{PhysStart: 0x1000, Size: 0x1000, Colors: 0x10000}

	err := Validate(geo, nil, r, false)
	if err == nil {
		t.Fatal("expected ConfigInvalid for colors out of range")
	}

	var cerr *cellcolor.Error
	if !errors.As(err, &cerr) || cerr.Kind != cellcolor.ConfigInvalid {
		t.Fatalf("err = %v, want ConfigInvalid", err)
	}
}

func TestValidateRejectsZeroColors(t *testing.T) {
	geo := testGeometry()

	r := &region.ColoredRegion{PhysStart: 0x1000, Size: 0x1000, Colors: 0}

	if err := Validate(geo, nil, r, false); err == nil {
		t.Fatal("expected ConfigInvalid for zero colors")
	}
}

func TestValidateManagedWithinBounds(t *testing.T) {
	geo := testGeometry()

	root := &region.ColoredRegion{PhysStart: 0x80000000, Size: 0x10000, Colors: 0xffff}
	r := &region.ColoredRegion{Size: 0x10000, Colors: 0xffff}

	if err := Validate(geo, root, r, false); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if r.PhysStart != root.PhysStart {
		t.Fatalf("managed region PhysStart = %#x, want %#x", r.PhysStart, root.PhysStart)
	}
}

func TestValidateManagedExceedsBounds(t *testing.T) {
	geo := testGeometry()

	root := &region.ColoredRegion{PhysStart: 0x80000000, Size: 0x10000, Colors: 0xffff}
	r := &region.ColoredRegion{Size: 0x20000, Colors: 0xffff}

	err := Validate(geo, root, r, false)
	if err == nil {
		t.Fatal("expected OutOfBounds for managed region exceeding root pool")
	}

	var cerr *cellcolor.Error
	if !errors.As(err, &cerr) || cerr.Kind != cellcolor.OutOfBounds {
		t.Fatalf("err = %v, want OutOfBounds", err)
	}
}

func TestValidateManagedWithoutRootPool(t *testing.T) {
	geo := testGeometry()

	r := &region.ColoredRegion{Size: 0x1000, Colors: 0x1}

	if err := Validate(geo, nil, r, false); err == nil {
		t.Fatal("expected ConfigInvalid for managed region with no root pool")
	}
}

func TestValidateManualOverlapsRootPool(t *testing.T) {
	geo := testGeometry()

	root := &region.ColoredRegion{PhysStart: 0x80000000, Size: 0x10000, Colors: 0xffff}
	r := &region.ColoredRegion{PhysStart: 0x80008000, Size: 0x1000, Colors: 0x1}

	err := Validate(geo, root, r, false)
	if err == nil {
		t.Fatal("expected OutOfBounds for manual region overlapping root pool")
	}

	var cerr *cellcolor.Error
	if !errors.As(err, &cerr) || cerr.Kind != cellcolor.OutOfBounds {
		t.Fatalf("err = %v, want OutOfBounds", err)
	}
}

func TestValidateManualDisjointFromRootPool(t *testing.T) {
	geo := testGeometry()

	root := &region.ColoredRegion{PhysStart: 0x80000000, Size: 0x10000, Colors: 0xffff}
	r := &region.ColoredRegion{PhysStart: 0x90000000, Size: 0x1000, Colors: 0x1}

	if err := Validate(geo, root, r, false); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRootCellManagedIsStrippedNotRejected(t *testing.T) {
	geo := testGeometry()

	r := &region.ColoredRegion{Size: 0x1000, Colors: 0x1, Flags: region.ColoredCell}

	if err := Validate(geo, nil, r, true); err != nil {
		t.Fatalf("root-cell managed region should be silently demoted, got %v", err)
	}

	if r.Flags&region.ColoredCell != 0 {
		t.Fatal("ColoredCell flag should have been stripped")
	}
	if r.Colors != 0 {
		t.Fatalf("Colors = %#x, want 0 after demotion", r.Colors)
	}
}

func TestSimulateColoringNoCache(t *testing.T) {
	disabled := &llc.Geometry{}

	if got, want := SimulateColoring(disabled, 0x1000, 0x4000, 0x1), uint64(0x1000); got != want {
		t.Fatalf("SimulateColoring on disabled geometry = %#x, want %#x", got, want)
	}
}
