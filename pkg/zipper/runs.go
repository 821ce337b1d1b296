package zipper

import "fmt"

// geometry maps (line, position) along the scan axis onto row-major offsets.
type geometry struct {
	axis Axis
	rows int
	cols int
}

func newGeometry(axis Axis, rows, cols int) (geometry, error) {
	if axis != AxisRow && axis != AxisColumn {
		return geometry{}, fmt.Errorf("%w: got %d", ErrInvalidAxis, int(axis))
	}
	return geometry{axis: axis, rows: rows, cols: cols}, nil
}

// lines is the number of scan lines.
func (g geometry) lines() int {
	if g.axis == AxisRow {
		return g.rows
	}
	return g.cols
}

// length is the number of pixels along one scan line.
func (g geometry) length() int {
	if g.axis == AxisRow {
		return g.cols
	}
	return g.rows
}

// crossLength is the extent across the scan axis.
func (g geometry) crossLength() int { return g.lines() }

func (g geometry) index(line, pos int) int {
	if g.axis == AxisRow {
		return line*g.cols + pos
	}
	return pos*g.cols + line
}

// DetectRuns returns every run of the flagged field (mask & interpMask) along
// axis that passes the length and border filters in p. The mask is not
// modified and repeated calls on the same input yield the same runs.
// A nil p uses NewParams().
func DetectRuns(mask *Mask, interpMask uint32, axis Axis, p *Params) ([]Run, error) {
	if p == nil {
		p = NewParams()
	}
	g, err := newGeometry(axis, mask.Rows, mask.Cols)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	runs, err := scanRuns(mask, interpMask, g)
	if err != nil {
		return nil, err
	}
	var stats Stats
	return acceptRuns(runs, g, p, &stats), nil
}

// scanRuns finds all maximal flagged spans. Starts and ends are located
// independently and then paired, so a pairing failure surfaces as
// ErrInconsistentRuns rather than as a silently wrong span.
func scanRuns(mask *Mask, interpMask uint32, g geometry) ([]Run, error) {
	n := g.length()
	flagged := func(line, pos int) bool {
		return mask.Bits[g.index(line, pos)]&interpMask != 0
	}

	var startLines, starts, endLines, ends []int
	for line := 0; line < g.lines(); line++ {
		for pos := 0; pos < n; pos++ {
			if !flagged(line, pos) {
				continue
			}
			if pos == 0 || !flagged(line, pos-1) {
				startLines = append(startLines, line)
				starts = append(starts, pos)
			}
			if pos == n-1 || !flagged(line, pos+1) {
				endLines = append(endLines, line)
				ends = append(ends, pos+1)
			}
		}
	}

	if len(starts) != len(ends) {
		return nil, fmt.Errorf("%w: %d starts, %d ends", ErrInconsistentRuns, len(starts), len(ends))
	}

	runs := make([]Run, len(starts))
	for i := range starts {
		if startLines[i] != endLines[i] || ends[i] <= starts[i] {
			return nil, fmt.Errorf("%w: run %d spans line %d:%d to line %d:%d",
				ErrInconsistentRuns, i, startLines[i], starts[i], endLines[i], ends[i])
		}
		runs[i] = Run{Line: startLines[i], Start: starts[i], End: ends[i]}
	}
	return runs, nil
}

// acceptRuns drops runs that touch either end of the axis or fall outside
// the configured length range. Border runs are never clipped.
func acceptRuns(runs []Run, g geometry, p *Params, stats *Stats) []Run {
	stats.Detected += len(runs)
	n := g.length()
	accepted := make([]Run, 0, len(runs))
	for _, r := range runs {
		if r.Start <= 0 || r.End >= n {
			stats.OnBorder++
			continue
		}
		if r.Len() < p.MinRunLength || (p.MaxRunLength > 0 && r.Len() > p.MaxRunLength) {
			stats.OutOfRange++
			continue
		}
		accepted = append(accepted, r)
	}
	return accepted
}
