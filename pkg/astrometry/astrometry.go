// Package astrometry holds small sky-coordinate helpers: great-circle
// separations, sexagesimal conversion and the area of sky polygons.
package astrometry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

var ErrBadSexagesimal = errors.New("astrometry: malformed sexagesimal value")

// sterad2degsq converts steradians to square degrees.
const sterad2degsq = (180 / math.Pi) * (180 / math.Pi)

// Coord is a position on the sky in degrees.
type Coord struct {
	RA  float64
	Dec float64
}

func (c Coord) latLng() s2.LatLng { return s2.LatLngFromDegrees(c.Dec, c.RA) }

// Separation returns the great-circle angle between a and b.
func Separation(a, b Coord) s1.Angle {
	return a.latLng().Distance(b.latLng())
}

// CircleDistance returns the great-circle distance in degrees between
// (ra1, dec1) and (ra2, dec2), all in degrees.
func CircleDistance(ra1, dec1, ra2, dec2 float64) float64 {
	return Separation(Coord{ra1, dec1}, Coord{ra2, dec2}).Degrees()
}

// SkyArea returns the solid angle in square degrees enclosed by the polygon
// with the given vertices (degrees). Edges are great-circle arcs and the
// smaller of the two regions bounded by the polygon is returned, so vertex
// order does not matter.
func SkyArea(ra, dec []float64) (float64, error) {
	if len(ra) != len(dec) {
		return 0, fmt.Errorf("astrometry: %d RA values but %d Dec values", len(ra), len(dec))
	}
	if len(ra) < 3 {
		return 0, fmt.Errorf("astrometry: polygon needs at least 3 vertices, got %d", len(ra))
	}
	pts := make([]s2.Point, len(ra))
	for i := range ra {
		pts[i] = s2.PointFromLatLng(Coord{ra[i], dec[i]}.latLng())
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return loop.Area() * sterad2degsq, nil
}

// Deg2Dec converts a sexagesimal string such as "-00:30:15.2" to decimal
// degrees (or hours). A leading minus applies to all three fields, including
// when the degree field is "-00".
func Deg2Dec(s, sep string) (float64, error) {
	if sep == "" {
		sep = ":"
	}
	s = strings.TrimSpace(s)
	vals := strings.Split(s, sep)
	if len(vals) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadSexagesimal, s)
	}
	var f [3]float64
	for i, v := range vals {
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadSexagesimal, s)
		}
		f[i] = x
	}
	dd, mm, ss := f[0], f[1]/60, f[2]/3600
	if strings.HasPrefix(s, "-") {
		mm, ss = -mm, -ss
	}
	return dd + mm + ss, nil
}

// Form selects the output layout of Dec2Deg.
type Form int

const (
	// FormLong is [-]DD:MM:SS.s
	FormLong Form = iota
	// FormShort is [-]DD:MM
	FormShort
	// FormRA is [-]DD:MM.t, with t the tenths of a minute.
	FormRA
)

// Split breaks decimal degrees into sign, whole degrees, whole minutes and
// seconds. Seconds within 1e-3 of 60 roll over into the minutes, and 60
// minutes into the degrees.
func Split(dec float64) (neg bool, dd, mm int, ss float64) {
	neg = dec < 0
	a := math.Abs(dec)
	dd = int(a)
	frac := (a - float64(dd)) * 60
	mm = int(frac)
	ss = (frac - float64(mm)) * 60
	if math.Abs(ss-60) < 1e-3 {
		ss = 0
		mm++
	}
	if mm == 60 {
		mm = 0
		dd++
	}
	return neg, dd, mm, ss
}

// Dec2Deg formats decimal degrees as a sexagesimal string.
func Dec2Deg(dec float64, form Form, sep string) string {
	if sep == "" {
		sep = ":"
	}
	neg, dd, mm, ss := Split(dec)
	sign := ""
	if neg {
		sign = "-"
	}
	switch form {
	case FormShort:
		return fmt.Sprintf("%s%02d%s%02d", sign, dd, sep, mm)
	case FormRA:
		return fmt.Sprintf("%s%02d%s%02d.%1d", sign, dd, sep, mm, int(ss/6))
	default:
		// Two decimals, truncated to one.
		s := fmt.Sprintf("%s%02d%s%02d%s%05.2f", sign, dd, sep, mm, sep, ss)
		return s[:len(s)-1]
	}
}
