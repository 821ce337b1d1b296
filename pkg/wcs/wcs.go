// Package wcs evaluates celestial FITS world coordinate systems of the
// gnomonic (TAN) family, including SCAMP's TPV polynomial distortion.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnsupported = errors.New("wcs: unsupported projection")
	ErrMissingKey  = errors.New("wcs: missing keyword")
	ErrSingular    = errors.New("wcs: singular linear transformation")
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	// maxTerms is the number of TPV polynomial terms per axis (up to 7th order).
	maxTerms = 40
)

// Header is the keyword lookup the WCS is read from.
type Header interface {
	GetFloat(key string) (float64, bool)
	GetString(key string) string
}

// WCS maps 1-based FITS pixel coordinates to (RA, Dec) in degrees.
type WCS struct {
	CType  [2]string
	CRPix  [2]float64
	CRVal  [2]float64
	CD     [2][2]float64
	PV     [2][maxTerms]float64
	HasPV  bool
	Width  int
	Height int
}

// FromHeader reads the WCS keywords of h. The linear part comes from CDi_j,
// or failing that from CDELTi combined with PCi_j or CROTA2. PVi_j terms are
// applied whenever present, which covers both RA---TPV and the older
// RA---TAN plus PV convention.
func FromHeader(h Header) (*WCS, error) {
	w := &WCS{}
	for i := 0; i < 2; i++ {
		n := strconv.Itoa(i + 1)
		w.CType[i] = strings.ToUpper(strings.TrimSpace(h.GetString("CTYPE" + n)))
		var ok bool
		if w.CRPix[i], ok = h.GetFloat("CRPIX" + n); !ok {
			return nil, fmt.Errorf("%w: CRPIX%s", ErrMissingKey, n)
		}
		if w.CRVal[i], ok = h.GetFloat("CRVAL" + n); !ok {
			return nil, fmt.Errorf("%w: CRVAL%s", ErrMissingKey, n)
		}
	}
	if err := w.checkProjection(); err != nil {
		return nil, err
	}
	if err := w.readLinear(h); err != nil {
		return nil, err
	}
	w.readPV(h)

	if nx, ny, ok := dims(h); ok {
		w.Width, w.Height = nx, ny
	}
	return w, nil
}

func (w *WCS) checkProjection() error {
	if !strings.HasPrefix(w.CType[0], "RA") || !strings.HasPrefix(w.CType[1], "DEC") {
		return fmt.Errorf("%w: axes %q/%q, want RA/DEC", ErrUnsupported, w.CType[0], w.CType[1])
	}
	for _, ct := range w.CType {
		proj := ct
		if len(ct) >= 8 {
			proj = ct[5:8]
		}
		if proj != "TAN" && proj != "TPV" {
			return fmt.Errorf("%w: %q", ErrUnsupported, ct)
		}
	}
	return nil
}

func (w *WCS) readLinear(h Header) error {
	cd11, ok11 := h.GetFloat("CD1_1")
	cd22, ok22 := h.GetFloat("CD2_2")
	if ok11 || ok22 {
		cd12, _ := h.GetFloat("CD1_2")
		cd21, _ := h.GetFloat("CD2_1")
		w.CD = [2][2]float64{{cd11, cd12}, {cd21, cd22}}
	} else {
		cdelt1, ok1 := h.GetFloat("CDELT1")
		cdelt2, ok2 := h.GetFloat("CDELT2")
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: neither CDi_j nor CDELTi", ErrMissingKey)
		}
		pc := [2][2]float64{{1, 0}, {0, 1}}
		_, hasPC11 := h.GetFloat("PC1_1")
		_, hasPC12 := h.GetFloat("PC1_2")
		if hasPC11 || hasPC12 {
			for i := 0; i < 2; i++ {
				for j := 0; j < 2; j++ {
					if v, ok := h.GetFloat(fmt.Sprintf("PC%d_%d", i+1, j+1)); ok {
						pc[i][j] = v
					}
				}
			}
		} else if rot, ok := h.GetFloat("CROTA2"); ok {
			s, c := math.Sincos(rot * deg2rad)
			pc = [2][2]float64{{c, -s * cdelt2 / cdelt1}, {s * cdelt1 / cdelt2, c}}
		}
		w.CD = [2][2]float64{
			{cdelt1 * pc[0][0], cdelt1 * pc[0][1]},
			{cdelt2 * pc[1][0], cdelt2 * pc[1][1]},
		}
	}
	if w.CD[0][0]*w.CD[1][1]-w.CD[0][1]*w.CD[1][0] == 0 {
		return ErrSingular
	}
	return nil
}

func (w *WCS) readPV(h Header) {
	for i := 0; i < 2; i++ {
		w.PV[i][1] = 1
		for k := 0; k < maxTerms; k++ {
			if v, ok := h.GetFloat(fmt.Sprintf("PV%d_%d", i+1, k)); ok {
				w.PV[i][k] = v
				w.HasPV = true
			}
		}
	}
}

func dims(h Header) (int, int, bool) {
	get := func(k string) (int, bool) {
		v, ok := h.GetFloat(k)
		return int(v), ok && v > 0
	}
	if nx, ok1 := get("ZNAXIS1"); ok1 {
		if ny, ok2 := get("ZNAXIS2"); ok2 {
			return nx, ny, true
		}
	}
	nx, ok1 := get("NAXIS1")
	ny, ok2 := get("NAXIS2")
	return nx, ny, ok1 && ok2
}

// ImageToSky converts 1-based pixel coordinates to (RA, Dec) in degrees,
// with RA in [0, 360).
func (w *WCS) ImageToSky(x, y float64) (ra, dec float64) {
	dx := x - w.CRPix[0]
	dy := y - w.CRPix[1]
	xi := w.CD[0][0]*dx + w.CD[0][1]*dy
	eta := w.CD[1][0]*dx + w.CD[1][1]*dy
	if w.HasPV {
		xi, eta = tpv(&w.PV[0], xi, eta), tpv(&w.PV[1], eta, xi)
	}
	return deproject(w.CRVal[0], w.CRVal[1], xi*deg2rad, eta*deg2rad)
}

// tpv evaluates one axis of the TPV polynomial. For the second axis the
// caller swaps u and v.
func tpv(c *[maxTerms]float64, u, v float64) float64 {
	r := math.Hypot(u, v)
	var t [maxTerms]float64
	t[0] = 1
	t[1], t[2], t[3] = u, v, r
	k := 4
	up := [8]float64{1, u, u * u, u * u * u}
	vp := [8]float64{1, v, v * v, v * v * v}
	for n := 4; n < 8; n++ {
		up[n] = up[n-1] * u
		vp[n] = vp[n-1] * v
	}
	for order := 2; order <= 7; order++ {
		for j := 0; j <= order; j++ {
			t[k] = up[order-j] * vp[j]
			k++
		}
		if order%2 == 1 {
			t[k] = math.Pow(r, float64(order))
			k++
		}
	}
	var sum float64
	for i := range t {
		sum += c[i] * t[i]
	}
	return sum
}

// deproject inverts the gnomonic projection about (ra0, dec0) for tangent
// plane coordinates in radians.
func deproject(ra0, dec0, xi, eta float64) (ra, dec float64) {
	sd, cd := math.Sincos(dec0 * deg2rad)
	den := cd - eta*sd
	ra = ra0 + math.Atan2(xi, den)*rad2deg
	dec = math.Atan2(eta*cd+sd, math.Hypot(xi, den)) * rad2deg
	ra = math.Mod(ra, 360)
	if ra < 0 {
		ra += 360
	}
	return ra, dec
}
