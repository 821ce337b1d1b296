package imaging

import (
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matOf(rows, cols int, pix []float32) Mat {
	m := NewMatWithSize(rows, cols)
	copy(m.DataFloat32(), pix)
	return m
}

func TestEstimateBackground(t *testing.T) {
	pix := make([]float32, 1000)
	for i := range pix {
		pix[i] = 99
		if i%2 == 1 {
			pix[i] = 101
		}
	}
	pix[10] = 1e4
	pix[500] = 1e4
	pix[11] = float32(math.NaN())

	m := matOf(40, 25, pix)
	defer m.Close()
	bg := EstimateBackground(m, 3, 0, 10)
	assert.InDelta(t, 100.0, bg.Mean, 0.01)
	assert.InDelta(t, 1.0, bg.Sigma, 0.01)
	assert.Greater(t, bg.Iterations, 1)
	assert.LessOrEqual(t, bg.Iterations, 10)
}

func TestEstimateBackgroundFlat(t *testing.T) {
	pix := make([]float32, 16)
	for i := range pix {
		pix[i] = 7
	}
	m := matOf(4, 4, pix)
	defer m.Close()
	bg := EstimateBackground(m, 3, 0, 10)
	assert.Equal(t, 7.0, bg.Mean)
	assert.Zero(t, bg.Sigma)
	assert.Equal(t, 2, bg.Iterations)
}

func ramp(rows, cols int) []float32 {
	pix := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			pix[r*cols+c] = float32(r)
		}
	}
	return pix
}

func TestRenderOrientation(t *testing.T) {
	img, err := Render(ramp(4, 3), 4, 3, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())

	top := img.RGBAAt(1, 0)
	bottom := img.RGBAAt(1, 3)
	assert.Greater(t, top.R, bottom.R, "FITS row 0 is drawn at the bottom")
	assert.Equal(t, top.R, top.G)
	assert.Equal(t, top.G, top.B)
}

func TestRenderStretches(t *testing.T) {
	pix := ramp(4, 3)
	lin := DefaultOptions()
	lin.Stretch = StretchLinear
	a, err := Render(pix, 4, 3, nil, lin)
	require.NoError(t, err)
	b, err := Render(pix, 4, 3, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Greater(t, b.RGBAAt(0, 0).R, a.RGBAAt(0, 0).R, "asinh lifts faint levels")
}

func TestRenderHighlight(t *testing.T) {
	rows, cols := 7, 7
	pix := make([]float32, rows*cols)
	for i := range pix {
		pix[i] = float32(10 + i%3)
	}
	hl := make([]bool, rows*cols)
	hl[3*cols+3] = true

	opts := DefaultOptions()
	img, err := Render(pix, rows, cols, hl, opts)
	require.NoError(t, err)

	// FITS (row 3, col 3) is drawn at y = 3 in a 7-row image.
	center := img.RGBAAt(3, 3)
	assert.Greater(t, center.R, center.G)
	side := img.RGBAAt(4, 3)
	assert.Greater(t, side.R, side.G, "radius 1 grows the footprint")
	far := img.RGBAAt(5, 3)
	assert.Equal(t, far.R, far.G)

	opts.HighlightRadius = 0
	img, err = Render(pix, rows, cols, hl, opts)
	require.NoError(t, err)
	side = img.RGBAAt(4, 3)
	assert.Equal(t, side.R, side.G)
}

func TestRenderSmooth(t *testing.T) {
	rows, cols := 5, 5
	pix := make([]float32, rows*cols)
	for i := range pix {
		pix[i] = float32(100 + i%2)
	}
	pix[2*cols+2] = 5000
	opts := DefaultOptions()
	opts.Smooth = true
	img, err := Render(pix, rows, cols, nil, opts)
	require.NoError(t, err)
	spike := img.RGBAAt(2, 2)
	neighbour := img.RGBAAt(1, 2)
	assert.InDelta(t, float64(neighbour.R), float64(spike.R), 64, "median removes the spike")
}

func TestRenderErrors(t *testing.T) {
	_, err := Render(make([]float32, 5), 2, 3, nil, DefaultOptions())
	assert.True(t, errors.Is(err, ErrBadShape))
	_, err = Render(make([]float32, 6), 2, 3, make([]bool, 5), DefaultOptions())
	assert.True(t, errors.Is(err, ErrBadShape))
	_, err = Render(nil, 0, 0, nil, DefaultOptions())
	assert.True(t, errors.Is(err, ErrBadShape))
}

func TestStretchText(t *testing.T) {
	var s Stretch
	require.NoError(t, s.UnmarshalText([]byte("Linear")))
	assert.Equal(t, StretchLinear, s)
	require.NoError(t, s.UnmarshalText([]byte("asinh")))
	assert.Equal(t, StretchAsinh, s)
	assert.Equal(t, "asinh", s.String())
	assert.Error(t, s.UnmarshalText([]byte("log")))
}

func TestWriteQuicklookPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ql.png")
	require.NoError(t, WriteQuicklook(path, ramp(6, 4), 6, 4, nil, DefaultOptions()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())
}
