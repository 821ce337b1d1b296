package zipper

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// WriteRegion writes one "line x1 y1 x2 y2" record per run, using the
// written span of each run in 1-based inclusive pixel coordinates
// (x = column, y = row).
func WriteRegion(w io.Writer, runs []Run, axis Axis) error {
	bw := bufio.NewWriter(w)
	for _, r := range runs {
		x1, y1, x2, y2 := regionEndpoints(r, axis)
		if _, err := fmt.Fprintf(bw, "line %d %d %d %d\n", x1, y1, x2, y2); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteRegionFile creates path and writes the runs to it with WriteRegion.
func WriteRegionFile(path string, runs []Run, axis Axis) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteRegion(f, runs, axis); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func regionEndpoints(r Run, axis Axis) (x1, y1, x2, y2 int) {
	start, end := r.WriteStart, r.WriteEnd
	if end <= start {
		start, end = r.Start, r.End
	}
	if axis == AxisColumn {
		return r.Line + 1, start + 1, r.Line + 1, end
	}
	return start + 1, r.Line + 1, end, r.Line + 1
}

// Footprint marks every pixel written by runs in a rows x cols grid,
// row-major.
func Footprint(runs []Run, axis Axis, rows, cols int) []bool {
	out := make([]bool, rows*cols)
	for _, r := range runs {
		x1, y1, x2, y2 := regionEndpoints(r, axis)
		for y := y1 - 1; y < y2; y++ {
			for x := x1 - 1; x < x2; x++ {
				if y >= 0 && y < rows && x >= 0 && x < cols {
					out[y*cols+x] = true
				}
			}
		}
	}
	return out
}
