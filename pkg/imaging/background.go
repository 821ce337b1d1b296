/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package imaging

import "math"

// Background is the sky level and noise of an image.
type Background struct {
	Mean       float64
	Sigma      float64
	Iterations int
}

// EstimateBackground runs kappa-sigma clipping: pixels outside
// mean ± kappa·sigma are dropped and the statistics recomputed until sigma
// changes by no more than tolerance or maxIterations is reached. NaN and
// infinite pixels are always excluded.
func EstimateBackground(img Mat, kappa, tolerance float64, maxIterations int) Background {
	mask := NewMatWithSize(img.Rows(), img.Cols())
	defer mask.Close()

	lower, upper := float32(-math.MaxFloat32), float32(math.MaxFloat32)
	var bg Background
	for bg.Iterations < maxIterations {
		inRangeScalar(img, lower, upper, &mask)
		mean, sigma := meanStdDevWithMask(img, mask)
		bg.Iterations++
		if bg.Iterations > 1 && math.Abs(sigma-bg.Sigma) <= tolerance {
			bg.Mean, bg.Sigma = mean, sigma
			break
		}
		bg.Mean, bg.Sigma = mean, sigma
		lower = float32(mean - kappa*sigma)
		upper = float32(mean + kappa*sigma)
	}
	return bg
}

// meanStdDevWithMask computes mean and stddev of pixels where mask is non-zero.
func meanStdDevWithMask(img Mat, mask Mat) (float64, float64) {
	imgData := img.DataFloat32()
	maskData := mask.DataFloat32()
	numPixels := img.Rows() * img.Cols()

	var sum float64
	var count int64
	for i := 0; i < numPixels; i++ {
		if maskData[i] != 0 {
			sum += float64(imgData[i])
			count++
		}
	}
	if count == 0 {
		return 0, 0
	}
	mean := sum / float64(count)

	var sse float64
	for i := 0; i < numPixels; i++ {
		if maskData[i] != 0 {
			diff := float64(imgData[i]) - mean
			sse += diff * diff
		}
	}
	return mean, math.Sqrt(sse / float64(count))
}
