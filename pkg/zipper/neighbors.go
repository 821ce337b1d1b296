package zipper

// resolveNeighbors decides which sides of each run can supply a value and
// records the literal neighbour pixels. Runs with no usable side are dropped
// and counted in stats.NoNeighbors.
//
// The invalid-source bits only exist for single-epoch images, so they are
// consulted when scanning rows. Coadds, which are interpolated along
// columns, carry no such flag.
func resolveNeighbors(runs []Run, img *Image, mask *Mask, g geometry, invalidMask uint32, stats *Stats) []Run {
	last := g.length() - 1
	checkInvalid := g.axis == AxisRow && invalidMask != 0

	resolved := make([]Run, 0, len(runs))
	for _, r := range runs {
		before := max(r.Start-1, 0)
		after := min(r.End, last)

		r.HasBefore = r.Start >= 1
		r.HasAfter = r.End <= last
		if checkInvalid {
			r.HasBefore = r.HasBefore && mask.Bits[g.index(r.Line, before)]&invalidMask == 0
			r.HasAfter = r.HasAfter && mask.Bits[g.index(r.Line, after)]&invalidMask == 0
		}
		r.BeforeValue = img.Pix[g.index(r.Line, before)]
		r.AfterValue = img.Pix[g.index(r.Line, after)]

		if !r.HasBefore && !r.HasAfter {
			stats.NoNeighbors++
			continue
		}
		resolved = append(resolved, r)
	}
	return resolved
}
