package paging

import (
	"errors"
	"testing"

	"github.com/usbarmory/cellcolor"
)

func TestPoolAllocFree(t *testing.T) {
	p := NewPool(0x90000000, 0x1000, 16)

	a, err := p.AllocPages(4)
	if err != nil {
		t.Fatalf("AllocPages: %v", err)
	}
	if a != 0x90000000 {
		t.Fatalf("first alloc = %#x, want base address", a)
	}

	b, err := p.AllocPages(4)
	if err != nil {
		t.Fatalf("AllocPages: %v", err)
	}
	if b != 0x90004000 {
		t.Fatalf("second alloc = %#x, want contiguous with first", b)
	}

	if got := p.Available(); got != 8 {
		t.Fatalf("Available() = %d, want 8", got)
	}

	p.FreePages(a, 4)
	p.FreePages(b, 4)

	if got := p.Available(); got != 16 {
		t.Fatalf("Available() after free = %d, want 16 (defragmented)", got)
	}

	// the pool must be reusable as one contiguous block again
	c, err := p.AllocPages(16)
	if err != nil {
		t.Fatalf("AllocPages after defrag: %v", err)
	}
	if c != 0x90000000 {
		t.Fatalf("alloc after defrag = %#x, want base address", c)
	}
}

func TestPoolOutOfMemory(t *testing.T) {
	p := NewPool(0, 0x1000, 4)

	if _, err := p.AllocPages(5); err == nil {
		t.Fatal("expected out-of-memory error")
	} else {
		var cerr *cellcolor.Error
		if !errors.As(err, &cerr) || cerr.Kind != cellcolor.OutOfMemory {
			t.Fatalf("err = %v, want OutOfMemory", err)
		}
	}
}

func TestPoolFreeUnknownAddrIsNoop(t *testing.T) {
	p := NewPool(0, 0x1000, 4)

	p.FreePages(0xdead, 1) // must not panic or corrupt state

	if got := p.Available(); got != 4 {
		t.Fatalf("Available() = %d, want 4", got)
	}
}
