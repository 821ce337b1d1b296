//go:build purego || js

package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/image/tiff"
)

// Mat is a pure Go single-channel float32 matrix.
type Mat struct {
	data []float32
	rows int
	cols int
}

func NewMatWithSize(rows, cols int) Mat {
	return Mat{data: make([]float32, rows*cols), rows: rows, cols: cols}
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return m.data == nil || m.rows == 0 || m.cols == 0 }

func (m *Mat) Close() {
	m.data = nil
	m.rows = 0
	m.cols = 0
}

func (m Mat) DataFloat32() []float32 { return m.data }

func (m *Mat) ensure(rows, cols int) {
	if m.rows != rows || m.cols != cols || m.data == nil {
		*m = NewMatWithSize(rows, cols)
	}
}

func reflectIndex(idx, size int) int {
	if size == 1 {
		return 0
	}
	if idx < 0 {
		idx = -idx
	}
	for idx >= size {
		idx = 2*size - 2 - idx
		if idx < 0 {
			idx = -idx
		}
	}
	return idx
}

func clampIndex(idx, size int) int {
	return min(max(idx, 0), size-1)
}

// medianBlur replicates edge pixels, as OpenCV does.
func medianBlur(src Mat, dst *Mat, ksize int) {
	rows, cols := src.rows, src.cols
	half := ksize / 2
	result := make([]float32, rows*cols)
	window := make([]float32, 0, ksize*ksize)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			window = window[:0]
			for dr := -half; dr <= half; dr++ {
				rr := clampIndex(r+dr, rows)
				for dc := -half; dc <= half; dc++ {
					window = append(window, src.data[rr*cols+clampIndex(c+dc, cols)])
				}
			}
			slices.Sort(window)
			result[r*cols+c] = window[len(window)/2]
		}
	}
	dst.ensure(rows, cols)
	copy(dst.data, result)
}

func morphDilateEllipse(src Mat, dst *Mat, kernelSize, iterations int) {
	rows, cols := src.rows, src.cols
	half := kernelSize / 2

	type off struct{ dr, dc int }
	var offsets []off
	for dr := -half; dr <= half; dr++ {
		for dc := -half; dc <= half; dc++ {
			nr := float64(dr) / float64(half)
			nc := float64(dc) / float64(half)
			if half == 0 || nr*nr+nc*nc <= 1.0 {
				offsets = append(offsets, off{dr, dc})
			}
		}
	}

	current := slices.Clone(src.data)
	result := make([]float32, rows*cols)
	for iter := 0; iter < iterations; iter++ {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				v := current[r*cols+c]
				for _, o := range offsets {
					v = max(v, current[reflectIndex(r+o.dr, rows)*cols+reflectIndex(c+o.dc, cols)])
				}
				result[r*cols+c] = v
			}
		}
		current, result = result, current
	}
	dst.ensure(rows, cols)
	copy(dst.data, current)
}

func inRangeScalar(src Mat, lower, upper float32, dst *Mat) {
	dst.ensure(src.rows, src.cols)
	for i, v := range src.data {
		if v >= lower && v <= upper {
			dst.data[i] = 1
		} else {
			dst.data[i] = 0
		}
	}
}

// encodeImage picks the encoder from the file extension: TIFF, JPEG or PNG.
func encodeImage(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing quicklook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case ".png":
		err = png.Encode(f, img)
	default:
		return fmt.Errorf("writing quicklook %s: %w", path, ErrEncode)
	}
	if err != nil {
		return fmt.Errorf("writing quicklook %s: %w", path, err)
	}
	return nil
}
