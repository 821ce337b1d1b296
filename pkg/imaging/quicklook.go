// Package imaging renders quicklook images of interpolated science planes.
//
// Two backends implement the pixel operations: OpenCV through gocv by
// default, and pure Go under the purego (or js) build tag.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
)

var (
	ErrBadShape = errors.New("imaging: buffer length does not match rows x cols")
	ErrEncode   = errors.New("imaging: unsupported image format")
)

// Stretch maps normalised intensities onto display levels.
type Stretch int

const (
	StretchLinear Stretch = iota
	StretchAsinh
)

// asinhSoftening sets how strongly StretchAsinh lifts faint levels.
const asinhSoftening = 10.0

func (s Stretch) String() string {
	if s == StretchLinear {
		return "linear"
	}
	return "asinh"
}

func (s *Stretch) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "linear":
		*s = StretchLinear
	case "asinh":
		*s = StretchAsinh
	default:
		return fmt.Errorf("imaging: unknown stretch %q", text)
	}
	return nil
}

// Options controls Render.
type Options struct {
	Stretch Stretch `yaml:"stretch"`
	// Low and High bound the display range in units of the background
	// sigma below and above the background mean.
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
	// Smooth applies a 3x3 median filter before stretching.
	Smooth bool `yaml:"smooth"`
	// HighlightRadius grows the highlighted footprint by this many pixels.
	HighlightRadius int `yaml:"highlight_radius"`
}

func DefaultOptions() Options {
	return Options{Stretch: StretchAsinh, Low: 2, High: 30, HighlightRadius: 1}
}

// Render draws a rows x cols row-major plane as an 8-bit image with FITS
// row 0 at the bottom. Pixels marked in highlight (which may be nil) are
// tinted red.
func Render(pix []float32, rows, cols int, highlight []bool, opts Options) (*image.RGBA, error) {
	if rows <= 0 || cols <= 0 || len(pix) != rows*cols {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrBadShape, len(pix), rows, cols)
	}
	if highlight != nil && len(highlight) != rows*cols {
		return nil, fmt.Errorf("%w: highlight has %d entries for %dx%d", ErrBadShape, len(highlight), rows, cols)
	}

	raw := NewMatWithSize(rows, cols)
	defer raw.Close()
	copy(raw.DataFloat32(), pix)
	src := raw
	if opts.Smooth {
		smoothed := NewMatWithSize(rows, cols)
		defer smoothed.Close()
		medianBlur(raw, &smoothed, 3)
		src = smoothed
	}

	bg := EstimateBackground(src, 3, 0, 10)
	lo := bg.Mean - opts.Low*bg.Sigma
	hi := bg.Mean + opts.High*bg.Sigma
	if !(hi > lo) {
		hi = lo + 1
	}

	tint := highlightMask(highlight, rows, cols, opts.HighlightRadius)

	out := image.NewRGBA(image.Rect(0, 0, cols, rows))
	data := src.DataFloat32()
	for r := 0; r < rows; r++ {
		y := rows - 1 - r
		for c := 0; c < cols; c++ {
			i := r*cols + c
			g := level(float64(data[i]), lo, hi, opts.Stretch)
			px := color.RGBA{g, g, g, 255}
			if tint != nil && tint[i] {
				px = color.RGBA{128 + g/2, g / 2, g / 2, 255}
			}
			out.SetRGBA(c, y, px)
		}
	}
	return out, nil
}

func level(v, lo, hi float64, s Stretch) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	t := math.Min(math.Max((v-lo)/(hi-lo), 0), 1)
	if s == StretchAsinh {
		t = math.Asinh(t*asinhSoftening) / math.Asinh(asinhSoftening)
	}
	return uint8(math.Round(t * 255))
}

func highlightMask(highlight []bool, rows, cols, radius int) []bool {
	if highlight == nil {
		return nil
	}
	m := NewMatWithSize(rows, cols)
	defer m.Close()
	data := m.DataFloat32()
	for i, on := range highlight {
		if on {
			data[i] = 1
		} else {
			data[i] = 0
		}
	}
	if radius > 0 {
		dilated := NewMatWithSize(rows, cols)
		defer dilated.Close()
		morphDilateEllipse(m, &dilated, 2*radius+1, 1)
		data = dilated.DataFloat32()
	}
	out := make([]bool, rows*cols)
	for i, v := range data {
		out[i] = v > 0
	}
	return out
}

// WriteQuicklook renders the plane and writes it to path; the extension
// selects the format.
func WriteQuicklook(path string, pix []float32, rows, cols int, highlight []bool, opts Options) error {
	img, err := Render(pix, rows, cols, highlight, opts)
	if err != nil {
		return err
	}
	return encodeImage(path, img)
}
