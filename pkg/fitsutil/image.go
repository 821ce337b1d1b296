// Package fitsutil reads and writes the FITS images, masks and headers used
// by the despyastro tools.
package fitsutil

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
)

var (
	ErrNoSuchHDU   = errors.New("fitsutil: no such HDU")
	ErrNotImage    = errors.New("fitsutil: HDU is not an image")
	ErrNotTable    = errors.New("fitsutil: HDU is not a binary table")
	ErrBadGeometry = errors.New("fitsutil: image is not two-dimensional")
)

// File is an open FITS file.
type File struct {
	f    *os.File
	fits *fitsio.File
	Path string
}

// Open opens the FITS file at path for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	fits, err := fitsio.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing FITS file %s: %w", path, err)
	}
	return &File{f: f, fits: fits, Path: path}, nil
}

// Close releases the file.
func (f *File) Close() error {
	err := f.fits.Close()
	if cerr := f.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// NumHDU returns the number of HDUs in the file.
func (f *File) NumHDU() int { return len(f.fits.HDUs()) }

// HDU returns the i-th (0-based) HDU.
func (f *File) HDU(i int) (fitsio.HDU, error) {
	if i < 0 || i >= f.NumHDU() {
		return nil, fmt.Errorf("%w: index %d in %s (%d HDUs)", ErrNoSuchHDU, i, f.Path, f.NumHDU())
	}
	return f.fits.HDU(i), nil
}

// Find resolves ref, either a 0-based index or an EXTNAME (case-insensitive),
// and returns the HDU with its index.
func (f *File) Find(ref string) (fitsio.HDU, int, error) {
	ref = strings.TrimSpace(ref)
	if i, err := strconv.Atoi(ref); err == nil {
		hdu, err := f.HDU(i)
		return hdu, i, err
	}
	for i, hdu := range f.fits.HDUs() {
		if c := hdu.Header().Get("EXTNAME"); c != nil {
			if name, ok := c.Value.(string); ok && strings.EqualFold(strings.TrimSpace(name), ref) {
				return hdu, i, nil
			}
		}
	}
	return nil, -1, fmt.Errorf("%w: EXTNAME %q in %s", ErrNoSuchHDU, ref, f.Path)
}

// Headers returns the header of every HDU in order.
func (f *File) Headers() []*Header {
	hdus := f.fits.HDUs()
	out := make([]*Header, len(hdus))
	for i, hdu := range hdus {
		out[i] = FromFitsio(hdu.Header())
	}
	return out
}

// Plane is a two-dimensional image with its header.
type Plane struct {
	Rows   int
	Cols   int
	Header *Header
}

// FloatPlane holds physical pixel values (BSCALE and BZERO applied).
type FloatPlane struct {
	Plane
	Pix []float32
}

// MaskPlane holds integer bit flags.
type MaskPlane struct {
	Plane
	Bits []uint32
}

// TableOf returns hdu as a binary table.
func TableOf(hdu fitsio.HDU) (*fitsio.Table, error) {
	tbl, ok := hdu.(*fitsio.Table)
	if !ok || hdu.Type() != fitsio.BINARY_TBL {
		return nil, fmt.Errorf("%w: %s", ErrNotTable, hduName(hdu))
	}
	return tbl, nil
}

func imageOf(hdu fitsio.HDU) (fitsio.Image, int, int, error) {
	img, ok := hdu.(fitsio.Image)
	if !ok || hdu.Type() != fitsio.IMAGE_HDU {
		return nil, 0, 0, fmt.Errorf("%w: %s", ErrNotImage, hduName(hdu))
	}
	axes := hdu.Header().Axes()
	if len(axes) != 2 {
		return nil, 0, 0, fmt.Errorf("%w: %s has %d axes", ErrBadGeometry, hduName(hdu), len(axes))
	}
	return img, axes[1], axes[0], nil
}

func hduName(hdu fitsio.HDU) string {
	if c := hdu.Header().Get("EXTNAME"); c != nil {
		return fmt.Sprint(c.Value)
	}
	return "PRIMARY"
}

func scaling(h *fitsio.Header) (bscale, bzero float64) {
	bscale, bzero = 1, 0
	if c := h.Get("BSCALE"); c != nil {
		if v, ok := toFloat(c.Value); ok {
			bscale = v
		}
	}
	if c := h.Get("BZERO"); c != nil {
		if v, ok := toFloat(c.Value); ok {
			bzero = v
		}
	}
	return bscale, bzero
}

// readRaw reads the pixels of img into float64 physical values.
func readRaw(img fitsio.Image, n int) ([]float64, error) {
	h := img.Header()
	bscale, bzero := scaling(h)
	out := make([]float64, n)

	switch bitpix := h.Bitpix(); bitpix {
	case 8:
		raw := make([]uint8, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)*bscale + bzero
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)*bscale + bzero
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)*bscale + bzero
		}
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)*bscale + bzero
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)*bscale + bzero
		}
	case -64:
		raw := make([]float64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = v*bscale + bzero
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX: %d", bitpix)
	}
	return out, nil
}

// ReadFloat reads a 2D image HDU as float32 physical values.
func ReadFloat(hdu fitsio.HDU) (*FloatPlane, error) {
	img, rows, cols, err := imageOf(hdu)
	if err != nil {
		return nil, err
	}
	raw, err := readRaw(img, rows*cols)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", hduName(hdu), err)
	}
	pix := make([]float32, len(raw))
	for i, v := range raw {
		pix[i] = float32(v)
	}
	return &FloatPlane{
		Plane: Plane{Rows: rows, Cols: cols, Header: FromFitsio(hdu.Header())},
		Pix:   pix,
	}, nil
}

// ReadMask reads a 2D integer image HDU as bit flags. Negative values (which
// only occur with a missing BZERO) are reinterpreted as their unsigned bits.
func ReadMask(hdu fitsio.HDU) (*MaskPlane, error) {
	img, rows, cols, err := imageOf(hdu)
	if err != nil {
		return nil, err
	}
	if hdu.Header().Bitpix() < 0 {
		return nil, fmt.Errorf("%w: %s has floating point BITPIX %d", ErrNotImage, hduName(hdu), hdu.Header().Bitpix())
	}
	raw, err := readRaw(img, rows*cols)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", hduName(hdu), err)
	}
	bits := make([]uint32, len(raw))
	for i, v := range raw {
		bits[i] = uint32(int64(v))
	}
	return &MaskPlane{
		Plane: Plane{Rows: rows, Cols: cols, Header: FromFitsio(hdu.Header())},
		Bits:  bits,
	}, nil
}

// Output is one image HDU to write.
type Output struct {
	Name  string
	Cards []fitsio.Card
	// Exactly one of Float and Mask is set.
	Float []float32
	Mask  []uint32
	Rows  int
	Cols  int
}

// WriteImages writes outs as a FITS file at path: the first as the primary
// HDU, the rest as IMAGE extensions. Float planes are written with BITPIX
// -32, masks with BITPIX 32.
func WriteImages(path string, outs []Output) (err error) {
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating FITS file: %w", err)
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fits.Close(); err == nil {
			err = cerr
		}
	}()

	for _, out := range outs {
		if err := writeImage(fits, out); err != nil {
			return fmt.Errorf("writing %s: %w", out.Name, err)
		}
	}
	return nil
}

func writeImage(fits *fitsio.File, out Output) error {
	dims := []int{out.Cols, out.Rows}
	bitpix := -32
	if out.Mask != nil {
		bitpix = 32
	}
	im := fitsio.NewImage(bitpix, dims)
	defer im.Close()

	cards := make([]fitsio.Card, 0, len(out.Cards)+1)
	if out.Name != "" {
		cards = append(cards, fitsio.Card{Name: "EXTNAME", Value: out.Name, Comment: "extension name"})
	}
	for _, c := range out.Cards {
		if structural[c.Name] || c.Name == "EXTNAME" {
			continue
		}
		cards = append(cards, c)
	}
	if err := im.Header().Append(cards...); err != nil {
		return err
	}

	if out.Mask != nil {
		data := make([]int32, len(out.Mask))
		for i, b := range out.Mask {
			data[i] = int32(b)
		}
		if err := im.Write(data); err != nil {
			return err
		}
	} else {
		if err := im.Write(out.Float); err != nil {
			return err
		}
	}
	return fits.Write(im)
}
