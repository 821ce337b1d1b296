package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrNoField = errors.New("catalog: no field analysis to render")

const (
	overlayWidth   = 800
	overlaySummary = 60
	overlayQuality = 90
)

// WriteOverlay renders the zone map as a JPEG.
func WriteOverlay(w io.Writer, field *FieldSeeing, width, height int) error {
	img, err := renderOverlay(field, width, height)
	if err != nil {
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: overlayQuality})
}

// WriteOverlayFile is WriteOverlay to a named file.
func WriteOverlayFile(path string, field *FieldSeeing, width, height int) error {
	var buf bytes.Buffer
	if err := WriteOverlay(&buf, field, width, height); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing overlay: %w", err)
	}
	return nil
}

func renderOverlay(field *FieldSeeing, width, height int) (*image.RGBA, error) {
	if field == nil || width <= 0 || height <= 0 {
		return nil, ErrNoField
	}

	scale := float64(overlayWidth) / float64(width)
	imgW := overlayWidth
	imgH := max(int(float64(height)*scale), 100)

	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH+overlaySummary))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)

	xLo := int(float64(imgW) * zoneEdgeFraction)
	xHi := int(float64(imgW) * (1 - zoneEdgeFraction))
	yLo := int(float64(imgH) * zoneEdgeFraction)
	yHi := int(float64(imgH) * (1 - zoneEdgeFraction))
	xb := [3][2]int{{0, xLo}, {xLo, xHi}, {xHi, imgW}}
	yb := [3][2]int{{0, yLo}, {yLo, yHi}, {yHi, imgH}}

	center := field.Zones[ZoneCenter].MedianFWHM
	face := basicfont.Face7x13
	white := color.RGBA{255, 255, 255, 255}

	for i, z := range allZones {
		row, col := i/3, i%3
		zs := field.Zones[z]
		cell := image.Rect(xb[col][0], yb[row][0], xb[col][1], yb[row][1])
		draw.Draw(img, cell, image.NewUniform(ratioColor(zs.MedianFWHM, center)), image.Point{}, draw.Src)

		cx, cy := (cell.Min.X+cell.Max.X)/2, (cell.Min.Y+cell.Max.Y)/2
		if zs.MedianFWHM > 0 {
			r := min(max(int(zs.MedianFWHM*scale*3), 3), cell.Dx()/3)
			drawCircle(img, cx, cy, r, color.RGBA{255, 255, 255, 200})
		}
		drawCenteredText(img, face, zs.Label, cx, cy-14, white)
		drawCenteredText(img, face, fmt.Sprintf("FWHM: %.2f", zs.MedianFWHM), cx, cy+2, white)
		drawCenteredText(img, face, fmt.Sprintf("n=%d", zs.Count), cx, cy+16, white)
	}

	grid := color.RGBA{255, 255, 255, 180}
	for x := 0; x < imgW; x++ {
		img.Set(x, yLo, grid)
		img.Set(x, yHi, grid)
	}
	for y := 0; y < imgH; y++ {
		img.Set(xLo, y, grid)
		img.Set(xHi, y, grid)
	}

	if field.BestCorner != "" && field.WorstCorner != "" {
		bx, by := cornerCenter(field.BestCorner, xb, yb)
		wx, wy := cornerCenter(field.WorstCorner, xb, yb)
		red := color.RGBA{255, 80, 80, 255}
		drawLine(img, bx, by, wx, wy, red)
		drawArrowHead(img, bx, by, wx, wy, red)
	}

	grey := color.RGBA{220, 220, 220, 255}
	line1 := fmt.Sprintf("Corner spread: %.1f%%  (worst: %s, best: %s)", field.SpreadPct, field.WorstCorner, field.BestCorner)
	line2 := fmt.Sprintf("Off-axis: %.1f%%", field.OffAxisPct)
	if !field.Reliable {
		line2 += "  [FEW STARS]"
	}
	drawText(img, face, line1, 10, imgH+15, grey)
	drawText(img, face, line2, 10, imgH+33, grey)
	return img, nil
}

// ratioColor runs from green (zone as sharp as the centre) through yellow to
// red (30% or more broader). Empty zones are dark grey.
func ratioColor(zone, center float64) color.RGBA {
	if zone <= 0 || center <= 0 {
		return color.RGBA{40, 40, 40, 255}
	}
	ratio := zone / center
	switch {
	case ratio <= 1.1:
		t := ratio / 1.1
		return color.RGBA{uint8(t * 30), uint8(60 + t*40), 20, 255}
	case ratio <= 1.3:
		t := (ratio - 1.1) / 0.2
		return color.RGBA{uint8(30 + t*170), uint8(100 - t*20), 20, 255}
	}
	t := math.Min((ratio-1.3)/0.3, 1)
	return color.RGBA{uint8(200 + t*55), uint8(80 - t*60), uint8(20 - t*10), 255}
}

func cornerCenter(label string, xb, yb [3][2]int) (int, int) {
	var col, row int
	switch label {
	case "TL":
	case "TR":
		col = 2
	case "BL":
		row = 2
	case "BR":
		col, row = 2, 2
	default:
		return 0, 0
	}
	return (xb[col][0] + xb[col][1]) / 2, (yb[row][0] + yb[row][1]) / 2
}

func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(c), Face: face, Dot: fixed.P(x, y)}
	d.DrawString(s)
}

func drawCenteredText(img *image.RGBA, face font.Face, s string, cx, cy int, c color.RGBA) {
	drawText(img, face, s, cx-font.MeasureString(face, s).Round()/2, cy, c)
}

// drawCircle is the midpoint circle algorithm.
func drawCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	x, y, e := r, 0, 0
	for x >= y {
		for _, p := range [][2]int{{x, y}, {y, x}, {-y, x}, {-x, y}, {-x, -y}, {-y, -x}, {y, -x}, {x, -y}} {
			img.Set(cx+p[0], cy+p[1], c)
		}
		y++
		e += 1 + 2*y
		if 2*(e-x)+1 > 0 {
			x--
			e += 1 - 2*x
		}
	}
}

// drawLine is Bresenham with a 2px pen.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.Set(x0, y0, c)
		img.Set(x0+1, y0, c)
		img.Set(x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func drawArrowHead(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := float64(x1-x0), float64(y1-y0)
	n := math.Hypot(dx, dy)
	if n < 1 {
		return
	}
	dx, dy = dx/n, dy/n
	const size = 15.0
	px, py := float64(x1)-dx*size, float64(y1)-dy*size
	drawLine(img, x1, y1, int(px+dy*size*0.4), int(py-dx*size*0.4), c)
	drawLine(img, x1, y1, int(px-dy*size*0.4), int(py+dx*size*0.4), c)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
