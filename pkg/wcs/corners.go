package wcs

import (
	"errors"
	"fmt"
)

// Corners holds the sky positions of the image centre and its four corners.
// Corner 1 is pixel (1,1), corner 2 (NAXIS1,1), corner 3 (NAXIS1,NAXIS2)
// and corner 4 (1,NAXIS2), each moved inwards by the border.
type Corners struct {
	RA0, Dec0 float64
	RA        [4]float64
	Dec       [4]float64
}

// Corners evaluates the centre and corner positions of the image. The
// image size comes from ZNAXIS1/2 when present, otherwise NAXIS1/2.
func (w *WCS) Corners(border int) (*Corners, error) {
	if w.Width <= 0 || w.Height <= 0 {
		return nil, fmt.Errorf("%w: image dimensions", ErrMissingKey)
	}
	nx, ny := float64(w.Width), float64(w.Height)
	b := float64(border)
	pix := [4][2]float64{
		{1 + b, 1 + b},
		{nx - b, 1 + b},
		{nx - b, ny - b},
		{1 + b, ny - b},
	}
	c := &Corners{}
	for i, p := range pix {
		c.RA[i], c.Dec[i] = w.ImageToSky(p[0], p[1])
	}
	c.RA0, c.Dec0 = w.ImageToSky(nx/2, ny/2)
	return c, nil
}

// Extent is the bounding box of a set of corners.
type Extent struct {
	RACMin  float64
	RACMax  float64
	DecCMin float64
	DecCMax float64
	// CrossRA0 is set when the image spans RA 0h, in which case RACMin is
	// the western edge (near 360) and RACMax the eastern one (near 0).
	CrossRA0 bool
}

// Extent computes the bounding box of the corners.
func (c *Corners) Extent() Extent {
	e, _ := ExtentOf(c.RA[:], c.Dec[:])
	return e
}

// ExtentOf computes the RA/Dec bounding box of the given positions. When the
// RA span exceeds 180 degrees the positions are taken to straddle RA 0: RAs
// below 180 are shifted by 360 before taking the extremes, and the maximum
// is shifted back.
func ExtentOf(ras, decs []float64) (Extent, error) {
	if len(ras) == 0 || len(ras) != len(decs) {
		return Extent{}, errors.New("wcs: need matching, non-empty RA and Dec lists")
	}
	var e Extent
	raMin, raMax := minMax(ras)
	if raMax-raMin > 180 {
		shifted := make([]float64, len(ras))
		for i, ra := range ras {
			shifted[i] = ra
			if ra < 180 {
				shifted[i] = ra + 360
			}
		}
		lo, hi := minMax(shifted)
		e.CrossRA0 = true
		e.RACMin = lo
		e.RACMax = hi - 360
	} else {
		e.RACMin, e.RACMax = raMin, raMax
	}
	e.DecCMin, e.DecCMax = minMax(decs)
	return e, nil
}

func minMax(v []float64) (float64, float64) {
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return lo, hi
}
