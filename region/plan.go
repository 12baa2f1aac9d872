// Fragment planning
// https://github.com/usbarmory/cellcolor

package region

// PlanFragments expands a colored region into the sequence of physical
// fragments that back its guest-virtual range.
//
// Fragments are emitted in strictly increasing virtual-address order: for
// each stride r = 0, 1, 2, ... the planner walks the color ranges of
// R.Colors (as produced by ExtractRanges) and emits one fragment per
// range, advancing a running virtual cursor. It stops once the cursor
// reaches R.VirtStart + R.Size; the final fragment is clamped to that
// boundary so the sum of fragment sizes is always exactly R.Size, even
// when R.Size is not a multiple of a range's width.
//
// colorCount is the LLC geometry's color count (the number of bits
// ExtractRanges considers); pageSize is the page size and wayOffset is
// the cache way size fragments are strided by.
func PlanFragments(r *ColoredRegion, colorCount int, pageSize, wayOffset uint64) []Fragment {
	if r.Size == 0 {
		return nil
	}

	ranges := ExtractRanges(r.Colors, colorCount)
	if len(ranges) == 0 {
		return nil
	}

	r.virtCursor = r.VirtStart
	end := r.VirtStart + r.Size

	var frags []Fragment

	for stride := uint64(0); r.virtCursor < end; stride++ {
		for _, rng := range ranges {
			if r.virtCursor >= end {
				break
			}

			size := uint64(rng.Len()) * pageSize
			if remaining := end - r.virtCursor; size > remaining {
				size = remaining
			}

			frags = append(frags, Fragment{
				Phys:  r.PhysStart + uint64(rng.Low)*pageSize + stride*wayOffset + r.RebaseOffset,
				Virt:  r.virtCursor,
				Size:  size,
				Flags: r.Flags,
			})

			r.virtCursor += size
		}
	}

	return frags
}
