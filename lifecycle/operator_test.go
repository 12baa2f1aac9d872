package lifecycle

import (
	"errors"
	"testing"

	"github.com/usbarmory/cellcolor"
	"github.com/usbarmory/cellcolor/cell"
	"github.com/usbarmory/cellcolor/paging"
	"github.com/usbarmory/cellcolor/region"
)

func newTestCell(t *testing.T) (*cell.Cell, *paging.Root) {
	t.Helper()

	pool := paging.NewPool(0x90000000, 0x1000, 64)
	cellTable := paging.NewStage2(0x1000, pool)
	rootTable := paging.NewStage2(0x1000, pool)
	root := paging.NewRoot(rootTable)

	c := cell.New("guest-0", cellTable)

	return c, root
}

func TestOperatorCreateUnmapsFromRootThenMaps(t *testing.T) {
	c, root := newTestCell(t)

	pool := paging.NewPool(0xa0000000, 0x1000, 4)
	hvTable := paging.NewStage2(0x1000, pool)
	hv := paging.NewHV(hvTable, nil)

	op := &Operator{Root: root, HV: hv, PageSize: 0x1000, RootMapOffset: 0x40000000, NumTemporaryPages: 4}

	f := region.Fragment{Phys: 0x1000, Virt: 0x80000000, Size: 0x1000, Flags: region.Read | region.Write}

	if err := op.Apply(Op{Kind: Create}, c, f); err != nil {
		t.Fatalf("Apply(Create): %v", err)
	}

	phys, ok := c.Stage2.(*paging.Stage2).Lookup(f.Virt)
	if !ok || phys != f.Phys {
		t.Fatalf("cell stage-2 lookup = (%#x, %v), want (%#x, true)", phys, ok, f.Phys)
	}
}

func TestOperatorCreateSkipsRootUnmapForCommunication(t *testing.T) {
	c, root := newTestCell(t)

	pool := paging.NewPool(0xa0000000, 0x1000, 4)
	hv := paging.NewHV(paging.NewStage2(0x1000, pool), nil)

	op := &Operator{Root: root, HV: hv, PageSize: 0x1000, RootMapOffset: 0x40000000}

	f := region.Fragment{Phys: 0x2000, Virt: 0x80001000, Size: 0x1000, Flags: region.Communication}

	if err := op.Apply(Op{Kind: Create}, c, f); err != nil {
		t.Fatalf("Apply(Create): %v", err)
	}
}

func TestOperatorCreateRoutesSubpage(t *testing.T) {
	c, root := newTestCell(t)

	pool := paging.NewPool(0xa0000000, 0x1000, 4)
	hv := paging.NewHV(paging.NewStage2(0x1000, pool), nil)
	op := &Operator{Root: root, HV: hv, PageSize: 0x1000, RootMapOffset: 0x40000000}

	f := region.Fragment{Phys: 0x3000, Virt: 0x80002000, Size: 0x10, Flags: region.IO | region.RootShared}

	if err := op.Apply(Op{Kind: Create}, c, f); err != nil {
		t.Fatalf("Apply(Create) subpage: %v", err)
	}

	phys, ok := c.Stage2.(*paging.Stage2).Lookup(f.Virt)
	if !ok || phys != f.Phys {
		t.Fatalf("subpage entry missing: (%#x, %v)", phys, ok)
	}
}

func TestOperatorDestroyWarnOnConflict(t *testing.T) {
	c, root := newTestCell(t)

	pool := paging.NewPool(0xa0000000, 0x1000, 4)
	hv := paging.NewHV(paging.NewStage2(0x1000, pool), nil)
	op := &Operator{Root: root, HV: hv, PageSize: 0x1000, RootMapOffset: 0x40000000}

	f := region.Fragment{Phys: 0x1000, Virt: 0x80000000, Size: 0x1000, Flags: region.Read}

	if err := op.Apply(Op{Kind: Create}, c, f); err != nil {
		t.Fatalf("seed create: %v", err)
	}

	// force a conflict: the root already maps f.Virt from a previous
	// remap, so DESTROY's RemapToRoot fails; RemapWarn mode still returns
	// the error (it is the dispatcher's job to log and continue).
	if err := root.RemapToRoot(f, paging.RemapWarn); err != nil {
		t.Fatalf("unexpected conflict on empty root: %v", err)
	}

	err := op.Apply(Op{Kind: Destroy, Mode: paging.RemapWarn}, c, f)
	if err == nil {
		t.Fatal("expected RootConflict from DESTROY of a fragment the root already maps")
	}

	var cerr *cellcolor.Error
	if !errors.As(err, &cerr) || cerr.Kind != cellcolor.RootConflict {
		t.Fatalf("err = %v, want RootConflict", err)
	}
}

func TestOperatorSMMUNotSupported(t *testing.T) {
	c, root := newTestCell(t)

	pool := paging.NewPool(0xa0000000, 0x1000, 4)
	hv := paging.NewHV(paging.NewStage2(0x1000, pool), nil)
	op := &Operator{Root: root, HV: hv, PageSize: 0x1000}

	err := op.Apply(Op{Kind: SMMUCreate}, c, region.Fragment{Size: 0x1000})
	if err == nil {
		t.Fatal("expected NotSupported for a cell with no SMMU table")
	}

	var cerr *cellcolor.Error
	if !errors.As(err, &cerr) || cerr.Kind != cellcolor.NotSupported {
		t.Fatalf("err = %v, want NotSupported", err)
	}
}

func TestOperatorLoadStartOnlyAffectLoadable(t *testing.T) {
	c, root := newTestCell(t)

	pool := paging.NewPool(0xa0000000, 0x1000, 4)
	hv := paging.NewHV(paging.NewStage2(0x1000, pool), nil)
	op := &Operator{Root: root, HV: hv, PageSize: 0x1000, RootMapOffset: 0x40000000}

	nonLoadable := region.Fragment{Phys: 0x1000, Virt: 0x1000, Size: 0x1000}

	if err := op.Apply(Op{Kind: Load}, c, nonLoadable); err != nil {
		t.Fatalf("Load on non-loadable fragment should be a no-op, got %v", err)
	}
	if err := op.Apply(Op{Kind: Start}, c, nonLoadable); err != nil {
		t.Fatalf("Start on non-loadable fragment should be a no-op, got %v", err)
	}

	loadable := region.Fragment{Phys: 0x2000, Virt: 0x2000, Size: 0x1000, Flags: region.Loadable}

	if err := op.Apply(Op{Kind: Load}, c, loadable); err != nil {
		t.Fatalf("Apply(Load): %v", err)
	}

	if err := op.Apply(Op{Kind: Start}, c, loadable); err != nil {
		t.Fatalf("Apply(Start): %v", err)
	}
}

func TestOperatorDCacheSlicesAcrossFragment(t *testing.T) {
	c, root := newTestCell(t)

	var flushed []uint64

	pool := paging.NewPool(0xb0000000, 0x1000, 16)
	hvTable := paging.NewStage2(0x1000, pool)
	hv := paging.NewHV(hvTable, func(vbase, size uint64, kind paging.FlushKind) error {
		flushed = append(flushed, size)
		return nil
	})

	op := &Operator{Root: root, HV: hv, PageSize: 0x1000, NumTemporaryPages: 2, ScratchVirt: 0xf0000000}

	f := region.Fragment{Phys: 0x100000, Virt: 0x80000000, Size: 5 * 0x1000, Flags: region.Read | region.Write}

	if err := op.Apply(Op{Kind: DCache, Flush: paging.CleanAndInvalidate}, c, f); err != nil {
		t.Fatalf("Apply(DCache): %v", err)
	}

	// 5 pages sliced 2 at a time -> slices of 2, 2, 1 pages
	want := []uint64{0x2000, 0x2000, 0x1000}
	if len(flushed) != len(want) {
		t.Fatalf("flushed = %+v, want %d slices", flushed, len(want))
	}
	for i, w := range want {
		if flushed[i] != w {
			t.Fatalf("slice %d size = %#x, want %#x", i, flushed[i], w)
		}
	}
}
