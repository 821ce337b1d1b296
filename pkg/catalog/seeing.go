package catalog

import (
	"sort"

	"github.com/samber/lo"
)

// Star selection thresholds.
const (
	ClassStarMin   = 0.75
	MagErrMax      = 0.1
	MinFWHM        = 0.5
	DefaultFWHM    = 4.0
	DefaultEllipse = 0.0
)

// Source is one catalog object that passed the point-source selection.
type Source struct {
	X, Y        float64
	FWHM        float64
	Ellipticity float64
}

// Seeing summarises the selected sources.
type Seeing struct {
	FWHM        float64
	Ellipticity float64
	Count       int
}

// SelectStars returns the clean point sources of t: FLAGS < 1,
// CLASS_STAR > 0.75, MAGERR_AUTO < 0.1, FWHM_IMAGE > 0.5 and
// ELLIPTICITY >= 0. Positions are filled in when X_IMAGE and Y_IMAGE exist.
func SelectStars(t Table) ([]Source, error) {
	cols := make(map[string][]float64, len(requiredColumns)+2)
	for _, name := range requiredColumns {
		v, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		cols[name] = v
	}
	withPos := t.HasColumn("X_IMAGE") && t.HasColumn("Y_IMAGE")
	if withPos {
		for _, name := range []string{"X_IMAGE", "Y_IMAGE"} {
			v, err := t.Column(name)
			if err != nil {
				return nil, err
			}
			cols[name] = v
		}
	}

	var out []Source
	for i := 0; i < t.NumRows(); i++ {
		fwhm, ellp := cols["FWHM_IMAGE"][i], cols["ELLIPTICITY"][i]
		if cols["FLAGS"][i] >= 1 || cols["CLASS_STAR"][i] <= ClassStarMin ||
			cols["MAGERR_AUTO"][i] >= MagErrMax || fwhm <= MinFWHM || ellp < 0 {
			continue
		}
		s := Source{FWHM: fwhm, Ellipticity: ellp}
		if withPos {
			s.X, s.Y = cols["X_IMAGE"][i], cols["Y_IMAGE"][i]
		}
		out = append(out, s)
	}
	return out, nil
}

// MeasureSeeing returns the median FWHM and ellipticity of sources, or
// DefaultFWHM and DefaultEllipse when there are none.
func MeasureSeeing(sources []Source) Seeing {
	if len(sources) == 0 {
		return Seeing{FWHM: DefaultFWHM, Ellipticity: DefaultEllipse}
	}
	return Seeing{
		FWHM:        median(lo.Map(sources, func(s Source, _ int) float64 { return s.FWHM })),
		Ellipticity: median(lo.Map(sources, func(s Source, _ int) float64 { return s.Ellipticity })),
		Count:       len(sources),
	}
}

// Measure selects stars from t and summarises them.
func Measure(t Table) (Seeing, []Source, error) {
	sources, err := SelectStars(t)
	if err != nil {
		return Seeing{}, nil, err
	}
	return MeasureSeeing(sources), sources, nil
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}
