package zipper

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// synthesizer writes representative values into the output buffers.
type synthesizer struct {
	out       *Image
	outMask   *Mask
	g         geometry
	dilate    int
	badpix    uint32
	addNoise  bool
	threshold float64
	src       rand.Source
}

func newSynthesizer(out *Image, outMask *Mask, g geometry, p *Params) *synthesizer {
	s := &synthesizer{
		out:       out,
		outMask:   outMask,
		g:         g,
		dilate:    p.Dilate,
		badpix:    p.BadpixInterp,
		addNoise:  p.AddNoise,
		threshold: p.NoiseThreshold,
	}
	if p.AddNoise {
		s.src = p.Noise
		if s.src == nil {
			s.src = rand.NewPCG(p.NoiseSeed, p.NoiseSeed^0x9e3779b97f4a7c15)
		}
	}
	return s
}

// span returns the write span of r, widened by the dilation and clamped to
// the axis.
func (s *synthesizer) span(r Run) (int, int) {
	return max(r.Start-s.dilate, 0), min(r.End+s.dilate, s.g.length())
}

// write fills the span of r with value, or with Poisson draws around it when
// noise is enabled and value is above the threshold. It reports whether
// noise was drawn.
func (s *synthesizer) write(r *Run, value float64) bool {
	start, end := s.span(*r)
	r.Value = value
	r.WriteStart = start
	r.WriteEnd = end

	noisy := s.addNoise && value > s.threshold
	var poisson distuv.Poisson
	if noisy {
		poisson = distuv.Poisson{Lambda: value, Src: s.src}
	}

	for pos := start; pos < end; pos++ {
		idx := s.g.index(r.Line, pos)
		v := value
		if noisy {
			v = poisson.Rand()
		}
		s.out.Pix[idx] = float32(v)
		if s.badpix != 0 {
			s.outMask.Bits[idx] |= s.badpix
		}
	}
	return noisy
}
