package zipper

import (
	"fmt"
)

// Interpolate replaces every accepted run of pixels flagged by interpMask
// along axis with a value derived from its neighbours.
//
// The pass works in three stages. Runs are detected and their neighbours
// resolved from the input; every representative value is then computed
// from the same input; only then are the values written, into copies of img
// and mask. The inputs are never modified, so runs cannot observe each
// other's writes even when dilated spans overlap a neighbour's window.
//
// A nil p uses NewParams(). On error no output is produced.
func Interpolate(img *Image, mask *Mask, interpMask uint32, axis Axis, p *Params) (*Result, error) {
	if p == nil {
		p = NewParams()
	}
	g, err := newGeometry(axis, img.Rows, img.Cols)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := checkShapes(img, mask); err != nil {
		return nil, err
	}

	log := p.logger()
	log.Info("zipper interpolation", "axis", axis.String(), "variant", p.Variant.String(),
		"rows", img.Rows, "cols", img.Cols)

	var stats Stats
	runs, err := scanRuns(mask, interpMask, g)
	if err != nil {
		return nil, err
	}
	runs = acceptRuns(runs, g, p, &stats)
	runs = resolveNeighbors(runs, img, mask, g, p.InvalidMask, &stats)

	smp := newSampler(img, mask, g, interpMask, p)
	values := make([]float64, len(runs))
	for i, r := range runs {
		v, degenerate := smp.value(r)
		values[i] = v
		if degenerate {
			stats.DegenerateSamples++
		}
	}

	out := img.Clone()
	outMask := mask.Clone()
	syn := newSynthesizer(out, outMask, g, p)
	for i := range runs {
		if syn.write(&runs[i], values[i]) {
			stats.NoisyRuns++
		}
		stats.Interpolated++
		stats.PixelsWritten += runs[i].WriteEnd - runs[i].WriteStart
	}

	if p.RegionFile != "" {
		if err := WriteRegionFile(p.RegionFile, runs, axis); err != nil {
			return nil, fmt.Errorf("writing region file: %w", err)
		}
	}

	log.Debug("zipper interpolation done", "axis", axis.String(),
		"detected", stats.Detected, "on_border", stats.OnBorder, "out_of_range", stats.OutOfRange,
		"no_neighbors", stats.NoNeighbors, "interpolated", stats.Interpolated,
		"pixels", stats.PixelsWritten, "degenerate", stats.DegenerateSamples)

	return &Result{Image: out, Mask: outMask, Runs: runs, Stats: stats}, nil
}

// InterpolateRows runs Interpolate along rows.
func InterpolateRows(img *Image, mask *Mask, interpMask uint32, p *Params) (*Result, error) {
	return Interpolate(img, mask, interpMask, AxisRow, p)
}

// InterpolateColumns runs Interpolate along columns.
func InterpolateColumns(img *Image, mask *Mask, interpMask uint32, p *Params) (*Result, error) {
	return Interpolate(img, mask, interpMask, AxisColumn, p)
}

func checkShapes(img *Image, mask *Mask) error {
	if img.Rows != mask.Rows || img.Cols != mask.Cols {
		return fmt.Errorf("%w: image %dx%d, mask %dx%d", ErrShapeMismatch, img.Rows, img.Cols, mask.Rows, mask.Cols)
	}
	if len(img.Pix) != img.Rows*img.Cols {
		return fmt.Errorf("%w: image has %d pixels for %dx%d", ErrShapeMismatch, len(img.Pix), img.Rows, img.Cols)
	}
	if len(mask.Bits) != mask.Rows*mask.Cols {
		return fmt.Errorf("%w: mask has %d cells for %dx%d", ErrShapeMismatch, len(mask.Bits), mask.Rows, mask.Cols)
	}
	return nil
}
