package color

import "testing"

func TestDeriveMask(t *testing.T) {
	m := DeriveMask(4096, 65536)

	if m != 0xf000 {
		t.Fatalf("mask = %#x, want 0xf000", uint64(m))
	}

	if got := m.Count(); got != 16 {
		t.Fatalf("count = %d, want 16", got)
	}

	if got := m.PageShift(); got != 12 {
		t.Fatalf("page shift = %d, want 12", got)
	}

	if got := m.WaySize(); got != 65536 {
		t.Fatalf("way size = %d, want 65536", got)
	}
}

func TestDeriveMaskRejectsBadGeometry(t *testing.T) {
	cases := []struct {
		page, way uint64
	}{
		{0, 65536},
		{4096, 0},
		{4096, 4096},
		{4096, 6000}, // not a power of two
		{3000, 65536},
	}

	for _, c := range cases {
		if m := DeriveMask(c.page, c.way); m != 0 {
			t.Fatalf("DeriveMask(%d, %d) = %#x, want 0", c.page, c.way, uint64(m))
		}
	}
}

func TestMaskOf(t *testing.T) {
	m := DeriveMask(4096, 65536)

	cases := []struct {
		phys uint64
		want uint64
	}{
		{0x0000, 0},
		{0x1000, 1},
		{0x4000, 4},
		{0xf000, 15},
		{0x1f000, 15},
	}

	for _, c := range cases {
		if got := m.Of(c.phys); got != c.want {
			t.Errorf("Of(%#x) = %d, want %d", c.phys, got, c.want)
		}
	}
}

func TestNextColoredDisabled(t *testing.T) {
	m := DeriveMask(4096, 65536)

	if got := NextColored(m, 0x1234, 0); got != 0x1234 {
		t.Fatalf("NextColored with col_val=0 = %#x, want unchanged 0x1234", got)
	}

	if got := NextColored(0, 0x1234, 0xffff); got != 0x1234 {
		t.Fatalf("NextColored with zero mask = %#x, want unchanged 0x1234", got)
	}
}

// S2 — already the requested color.
func TestNextColoredBaseCase(t *testing.T) {
	m := DeriveMask(4096, 65536)

	if got := NextColored(m, 0x0000, 0x0001); got != 0x0000 {
		t.Fatalf("NextColored = %#x, want 0x0000", got)
	}
}

// S3 — carry into the next stride. 0x10000 is the lowest page at or above
// 0x1000 whose color index is in col_val=0x0001: 0x10000 has color index
// 0, which is set in the bitmap, satisfying the function's own
// "color_bit(phys') & col_val != 0" contract.
func TestNextColoredCarry(t *testing.T) {
	m := DeriveMask(4096, 65536)

	got := NextColored(m, 0x1000, 0x0001)
	if got != 0x10000 {
		t.Fatalf("NextColored = %#x, want 0x10000", got)
	}

	if c := m.Of(got); (uint64(1)<<c)&0x0001 == 0 {
		t.Fatalf("result %#x has color %d, not in col_val 0x0001", got, c)
	}
}

// S4 — skip forward within the same stride to the lowest eligible color.
func TestNextColoredSkip(t *testing.T) {
	m := DeriveMask(4096, 65536)

	if got := NextColored(m, 0x0000, 0x00f0); got != 0x4000 {
		t.Fatalf("NextColored = %#x, want 0x4000", got)
	}
}

// The carry step resets the color search to position 0 and a nonzero
// col_val always has some bit at position >= 0, so the search never needs
// more than a single carry regardless of starting color or requested
// bitmap.
func TestNextColoredNeverCarriesTwice(t *testing.T) {
	m := DeriveMask(4096, 65536)

	for c := 0; c < m.Count(); c++ {
		phys := uint64(c) << uint(m.PageShift())

		for _, colors := range []uint64{0x0001, 0x0003, 0x8001, 0xffff, 1 << 15} {
			got := NextColored(m, phys, colors)
			waySize := m.WaySize()

			if got > phys+waySize {
				t.Fatalf("NextColored(phys=%#x color=%d, colors=%#x) = %#x, more than one way beyond phys", phys, c, colors, got)
			}
		}
	}
}

func TestNextColoredResultAlwaysPageAligned(t *testing.T) {
	m := DeriveMask(4096, 65536)

	for phys := uint64(0); phys < 0x30000; phys += 0x1000 {
		for _, colors := range []uint64{0x0001, 0x0003, 0x8001, 0xffff} {
			got := NextColored(m, phys, colors)

			if got&0xfff != 0 {
				t.Fatalf("NextColored(%#x, %#x) = %#x is not page-aligned", phys, colors, got)
			}

			if got < phys {
				t.Fatalf("NextColored(%#x, %#x) = %#x is below phys", phys, colors, got)
			}

			c := m.Of(got)
			if (uint64(1)<<c)&m.Clamp(colors) == 0 {
				t.Fatalf("NextColored(%#x, %#x) = %#x has ineligible color %d", phys, colors, got, c)
			}
		}
	}
}
