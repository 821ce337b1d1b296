package zipper

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// sampler reduces the neighbourhood of a run to one representative value.
// It only ever reads the input snapshot.
type sampler struct {
	img        *Image
	mask       *Mask
	g          geometry
	variant    Variant
	block      int
	crossBlock int
	// exclude holds the bits that disqualify a window pixel: the bits being
	// interpolated, plus the invalid-source bits when scanning rows.
	exclude uint32
	log     *slog.Logger

	buf []float64
}

func newSampler(img *Image, mask *Mask, g geometry, interpMask uint32, p *Params) *sampler {
	exclude := interpMask
	if g.axis == AxisRow {
		exclude |= p.InvalidMask
	}
	return &sampler{
		img:        img,
		mask:       mask,
		g:          g,
		variant:    p.Variant,
		block:      p.Block,
		crossBlock: p.CrossBlock,
		exclude:    exclude,
		log:        p.logger(),
	}
}

// value returns the representative value for r and whether the sample was
// degenerate (all zeros, resolved by the raw mean).
func (s *sampler) value(r Run) (float64, bool) {
	if s.variant == VariantBasic {
		return literalMean(r), false
	}

	s.buf = s.buf[:0]
	if r.HasBefore {
		s.collect(r.Line, r.Start-s.block, r.Start)
	}
	if r.HasAfter {
		s.collect(r.Line, r.End, r.End+s.block)
	}
	if len(s.buf) == 0 {
		// Every window pixel was excluded; the anchors are still valid.
		return literalMean(r), false
	}

	nonZero := make([]float64, 0, len(s.buf))
	for _, v := range s.buf {
		if v != 0 {
			nonZero = append(nonZero, v)
		}
	}
	if len(nonZero) > 0 {
		return medianFloat64(nonZero), false
	}

	mean := stat.Mean(s.buf, nil)
	s.log.Info("zero-valued neighbourhood, using raw mean",
		"axis", s.g.axis.String(), "line", r.Line, "start", r.Start, "end", r.End, "samples", len(s.buf))
	return mean, true
}

// collect appends window pixels at positions [from, to) along the axis and
// within crossBlock lines of line, truncated at the array edges.
func (s *sampler) collect(line, from, to int) {
	from = max(from, 0)
	to = min(to, s.g.length())
	lo := max(line-s.crossBlock, 0)
	hi := min(line+s.crossBlock, s.g.crossLength()-1)
	for l := lo; l <= hi; l++ {
		for pos := from; pos < to; pos++ {
			idx := s.g.index(l, pos)
			if s.mask.Bits[idx]&s.exclude != 0 {
				continue
			}
			s.buf = append(s.buf, float64(s.img.Pix[idx]))
		}
	}
}

func literalMean(r Run) float64 {
	switch {
	case r.HasBefore && r.HasAfter:
		return 0.5 * (float64(r.BeforeValue) + float64(r.AfterValue))
	case r.HasBefore:
		return float64(r.BeforeValue)
	default:
		return float64(r.AfterValue)
	}
}

func medianFloat64(values []float64) float64 {
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
