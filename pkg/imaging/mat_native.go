//go:build !purego && !js

package imaging

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps a single-channel CV_32F gocv.Mat.
type Mat struct {
	m gocv.Mat
}

func NewMatWithSize(rows, cols int) Mat {
	return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)}
}

func (mat Mat) Rows() int   { return mat.m.Rows() }
func (mat Mat) Cols() int   { return mat.m.Cols() }
func (mat Mat) Empty() bool { return mat.m.Empty() }
func (mat *Mat) Close()     { mat.m.Close() }

func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

func medianBlur(src Mat, dst *Mat, ksize int) {
	gocv.MedianBlur(src.m, &dst.m, ksize)
}

func morphDilateEllipse(src Mat, dst *Mat, kernelSize, iterations int) {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(kernelSize, kernelSize))
	defer kernel.Close()
	gocv.MorphologyExWithParams(src.m, &dst.m, gocv.MorphDilate, kernel, iterations, gocv.BorderReflect)
}

func inRangeScalar(src Mat, lower, upper float32, dst *Mat) {
	lo := gocv.NewMatFromScalar(gocv.NewScalar(float64(lower), 0, 0, 0), gocv.MatTypeCV32F)
	defer lo.Close()
	hi := gocv.NewMatFromScalar(gocv.NewScalar(float64(upper), 0, 0, 0), gocv.MatTypeCV32F)
	defer hi.Close()
	mask8 := gocv.NewMat()
	defer mask8.Close()
	gocv.InRange(src.m, lo, hi, &mask8)
	// InRange yields CV_8U; DataFloat32 needs CV_32F.
	mask8.ConvertTo(&dst.m, gocv.MatTypeCV32F)
}

// encodeImage writes img with OpenCV, which picks the format from the
// file extension.
func encodeImage(path string, img image.Image) error {
	m, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return fmt.Errorf("converting quicklook: %w", err)
	}
	defer m.Close()
	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("writing quicklook %s: %w", path, ErrEncode)
	}
	return nil
}
