package fitsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.fits")
	sci := []float32{1.5, 2, 3, 4, 5, 6}
	msk := []uint32{0, 1, 0, 64, 0, 1 << 20}
	err := WriteImages(path, []Output{
		{Name: "SCI", Rows: 2, Cols: 3, Float: sci, Cards: []fitsio.Card{
			{Name: "OBJECT", Value: "field-1", Comment: "target"},
			{Name: "EXPTIME", Value: 90.0},
			{Name: "BITPIX", Value: 16},
		}},
		{Name: "MSK", Rows: 2, Cols: 3, Mask: msk},
	})
	require.NoError(t, err)
	return path
}

func TestWriteAndReadImages(t *testing.T) {
	path := writeSample(t)

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, 2, f.NumHDU())

	hdu, idx, err := f.Find("sci")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	sci, err := ReadFloat(hdu)
	require.NoError(t, err)
	assert.Equal(t, 2, sci.Rows)
	assert.Equal(t, 3, sci.Cols)
	assert.Equal(t, []float32{1.5, 2, 3, 4, 5, 6}, sci.Pix)
	assert.Equal(t, "field-1", sci.Header.GetString("OBJECT"))
	exptime, ok := sci.Header.GetFloat("exptime")
	assert.True(t, ok)
	assert.Equal(t, 90.0, exptime)
	nx, ny, ok := sci.Header.Dims()
	assert.True(t, ok)
	assert.Equal(t, 3, nx)
	assert.Equal(t, 2, ny)

	hdu, idx, err = f.Find("1")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	msk, err := ReadMask(hdu)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 0, 64, 0, 1 << 20}, msk.Bits)

	_, err = ReadMask(f.fits.HDU(0))
	assert.True(t, errors.Is(err, ErrNotImage))

	_, _, err = f.Find("WGT")
	assert.True(t, errors.Is(err, ErrNoSuchHDU))
	_, _, err = f.Find("5")
	assert.True(t, errors.Is(err, ErrNoSuchHDU))
}

func TestUpdateHeaders(t *testing.T) {
	path := writeSample(t)

	// Enough new cards to push the primary header past one block.
	var many []fitsio.Card
	for i := 0; i < 40; i++ {
		many = append(many, fitsio.Card{Name: fmt.Sprintf("KEY%d", i), Value: i, Comment: "filler"})
	}
	many = append(many,
		fitsio.Card{Name: "OBJECT", Value: "field-2"},
		fitsio.Card{Name: "SCAMPCHI", Value: 1.25, Comment: "SCAMP chi2"},
		fitsio.Card{Name: "SCAMPREF", Value: "GAIA-DR2"},
	)
	err := UpdateHeaders(path, map[int][]fitsio.Card{
		0: many,
		1: {{Name: "FWHM", Value: 3.5}},
	})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size()%blockSize)

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	headers := f.Headers()
	require.Len(t, headers, 2)
	assert.Equal(t, "field-2", headers[0].GetString("OBJECT"))
	assert.Equal(t, "GAIA-DR2", headers[0].GetString("SCAMPREF"))
	chi, ok := headers[0].GetFloat("SCAMPCHI")
	assert.True(t, ok)
	assert.Equal(t, 1.25, chi)
	v, ok := headers[0].GetInt("KEY39")
	assert.True(t, ok)
	assert.Equal(t, 39, v)
	fwhm, ok := headers[1].GetFloat("FWHM")
	assert.True(t, ok)
	assert.Equal(t, 3.5, fwhm)

	hdu, _, err := f.Find("SCI")
	require.NoError(t, err)
	sci, err := ReadFloat(hdu)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 2, 3, 4, 5, 6}, sci.Pix)

	hdu, _, err = f.Find("MSK")
	require.NoError(t, err)
	msk, err := ReadMask(hdu)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 0, 64, 0, 1 << 20}, msk.Bits)
}

func TestUpdateHeadersErrors(t *testing.T) {
	path := writeSample(t)
	err := UpdateHeaders(path, map[int][]fitsio.Card{7: {{Name: "A", Value: 1}}})
	assert.True(t, errors.Is(err, ErrNoSuchHDU))

	bad := filepath.Join(t.TempDir(), "bad.fits")
	require.NoError(t, os.WriteFile(bad, []byte(strings.Repeat(" ", blockSize)), 0o644))
	err = UpdateHeaders(bad, map[int][]fitsio.Card{0: {{Name: "A", Value: 1}}})
	assert.True(t, errors.Is(err, ErrBadHeader))
}

func TestFormatCard(t *testing.T) {
	tests := []struct {
		card fitsio.Card
		want string
	}{
		{fitsio.Card{Name: "naxis", Value: 2}, "NAXIS   =                    2"},
		{fitsio.Card{Name: "EXPTIME", Value: 90.0, Comment: "s"}, "EXPTIME =                 90.0 / s"},
		{fitsio.Card{Name: "PV1_3", Value: 0.0}, "PV1_3   =                  0.0"},
		{fitsio.Card{Name: "SIMPLE", Value: true}, "SIMPLE  =                    T"},
		{fitsio.Card{Name: "FILTER", Value: "g"}, "FILTER  = 'g       '"},
		{fitsio.Card{Name: "OBSERVER", Value: "O'Neil"}, "OBSERVER= 'O''Neil  '"},
		{fitsio.Card{Name: "HISTORY", Value: "zipper"}, "HISTORY zipper"},
	}
	for _, tt := range tests {
		t.Run(tt.card.Name, func(t *testing.T) {
			got, err := FormatCard(tt.card)
			require.NoError(t, err)
			assert.Len(t, got, recordSize)
			assert.Equal(t, tt.want, strings.TrimRight(got, " "))
		})
	}

	_, err := FormatCard(fitsio.Card{Name: "TOOLONGKEY", Value: 1})
	assert.Error(t, err)
	_, err = FormatCard(fitsio.Card{Name: "X", Value: []int{1}})
	assert.Error(t, err)
}

func TestHeaderLookup(t *testing.T) {
	h := NewHeader(
		fitsio.Card{Name: "NAXIS1", Value: 2048},
		fitsio.Card{Name: "NAXIS2", Value: 4096},
		fitsio.Card{Name: "CRVAL1", Value: "12.5"},
		fitsio.Card{Name: "COMMENT", Value: "a"},
		fitsio.Card{Name: "COMMENT", Value: "b"},
		fitsio.Card{Name: "naxis1", Value: 1024},
	)
	assert.Equal(t, 5, h.Len())
	nx, ny, ok := h.Dims()
	assert.True(t, ok)
	assert.Equal(t, 1024, nx)
	assert.Equal(t, 4096, ny)

	v, ok := h.GetFloat("CRVAL1")
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)
	_, ok = h.GetInt("CRVAL1")
	assert.False(t, ok)
	assert.False(t, h.Has("COMMENT"))

	h.Set(fitsio.Card{Name: "ZNAXIS1", Value: 2000})
	h.Set(fitsio.Card{Name: "ZNAXIS2", Value: 4000})
	nx, ny, _ = h.Dims()
	assert.Equal(t, 2000, nx)
	assert.Equal(t, 4000, ny)

	var names []string
	for _, c := range h.Portable() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"CRVAL1", "COMMENT", "COMMENT", "ZNAXIS1", "ZNAXIS2"}, names)
}

func TestDataSize(t *testing.T) {
	rec := func(k string, v int) string {
		s, err := FormatCard(fitsio.Card{Name: k, Value: v})
		require.NoError(t, err)
		return s
	}
	n, err := dataSize([]string{rec("BITPIX", -32), rec("NAXIS", 2), rec("NAXIS1", 10), rec("NAXIS2", 3)})
	require.NoError(t, err)
	assert.Equal(t, int64(120), n)

	n, err = dataSize([]string{rec("BITPIX", 8), rec("NAXIS", 2), rec("NAXIS1", 16), rec("NAXIS2", 5),
		rec("PCOUNT", 100), rec("GCOUNT", 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(180), n)

	n, err = dataSize([]string{rec("BITPIX", 16), rec("NAXIS", 0)})
	require.NoError(t, err)
	assert.Zero(t, n)
}
