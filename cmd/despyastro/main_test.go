package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"despyastro/pkg/fitsutil"
	"despyastro/pkg/imaging"
	"despyastro/pkg/zipper"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

var tanCards = []fitsio.Card{
	{Name: "CTYPE1", Value: "RA---TAN"},
	{Name: "CTYPE2", Value: "DEC--TAN"},
	{Name: "CRPIX1", Value: 3.0},
	{Name: "CRPIX2", Value: 2.5},
	{Name: "CRVAL1", Value: 150.0},
	{Name: "CRVAL2", Value: 2.0},
	{Name: "CD1_1", Value: -0.001},
	{Name: "CD1_2", Value: 0.0},
	{Name: "CD2_1", Value: 0.0},
	{Name: "CD2_2", Value: 0.001},
}

// writeExposure writes a 4x5 SCI/MSK/WGT file with one flagged pixel at
// row 1, column 2.
func writeExposure(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "exp.fits")
	sci := []float32{
		1, 2, 3, 4, 5,
		10, 20, 999, 40, 50,
		1, 2, 3, 4, 5,
		1, 2, 3, 4, 5,
	}
	msk := make([]uint32, len(sci))
	msk[1*5+2] = 1
	wgt := make([]float32, len(sci))
	for i := range wgt {
		wgt[i] = 0.5
	}
	require.NoError(t, fitsutil.WriteImages(path, []fitsutil.Output{
		{Name: "SCI", Rows: 4, Cols: 5, Float: sci, Cards: append([]fitsio.Card{{Name: "OBJECT", Value: "test"}}, tanCards...)},
		{Name: "MSK", Rows: 4, Cols: 5, Mask: msk},
		{Name: "WGT", Rows: 4, Cols: 5, Float: wgt},
	}))
	return path
}

func TestZipperCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeExposure(t, dir)

	out, err := execute(t, "zipper", "--badpix-interp", "64", "--region", in)
	require.NoError(t, err)
	assert.Contains(t, out, "interpolated=1")

	f, err := fitsutil.Open(filepath.Join(dir, "exp_zip.fits"))
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, 3, f.NumHDU())

	hdu, _, err := f.Find("SCI")
	require.NoError(t, err)
	sci, err := fitsutil.ReadFloat(hdu)
	require.NoError(t, err)
	assert.Equal(t, float32(30), sci.Pix[1*5+2])
	assert.Equal(t, "test", sci.Header.GetString("OBJECT"))

	hdu, _, err = f.Find("MSK")
	require.NoError(t, err)
	msk, err := fitsutil.ReadMask(hdu)
	require.NoError(t, err)
	assert.Equal(t, uint32(65), msk.Bits[1*5+2])

	reg, err := os.ReadFile(filepath.Join(dir, "exp_zip.reg"))
	require.NoError(t, err)
	assert.Equal(t, "line 3 2 3 2\n", string(reg))
}

func TestZipperCommandErrors(t *testing.T) {
	dir := t.TempDir()
	in := writeExposure(t, dir)

	_, err := execute(t, "zipper", "--axis", "diagonal", in)
	assert.ErrorIs(t, err, zipper.ErrInvalidAxis)

	_, err = execute(t, "zipper", "--min-run", "0", in)
	assert.ErrorIs(t, err, zipper.ErrInvalidParams)

	_, err = execute(t, "zipper", "-o", filepath.Join(dir, "x.fits"), in, in)
	assert.Error(t, err)

	_, err = execute(t, "zipper", "--msk-hdu", "NOPE", in)
	assert.ErrorIs(t, err, fitsutil.ErrNoSuchHDU)
}

func TestZipperConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "zipper.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
interp_mask: 3
axis: columns
params:
  variant: windowed
  dilate: 2
  block: 4
quicklook:
  stretch: linear
`), 0o644))

	o := &zipperOptions{}
	cmd := zipperCommand(o)
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath, "--dilate", "1"}))
	cfg, err := o.config(cmd)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), cfg.InterpMask)
	assert.Equal(t, "columns", cfg.Axis)
	assert.Equal(t, zipper.VariantWindowed, cfg.Params.Variant)
	assert.Equal(t, 1, cfg.Params.Dilate, "flag overrides file")
	assert.Equal(t, 4, cfg.Params.Block)
	assert.Equal(t, 1, cfg.Params.MinRunLength, "default kept")
	assert.Equal(t, imaging.StretchLinear, cfg.Quicklook.Stretch)
	assert.Equal(t, 30.0, cfg.Quicklook.High)
}

func TestLoadZipperConfigRejectsUnknownKeys(t *testing.T) {
	cfg := defaultZipperConfig()
	err := loadZipperConfig(strings.NewReader("params:\n  dilation: 2\n"), cfg)
	assert.Error(t, err)
	assert.NoError(t, loadZipperConfig(strings.NewReader(""), cfg))
}

func TestParseAxes(t *testing.T) {
	tests := []struct {
		in   string
		want []zipper.Axis
	}{
		{"rows", []zipper.Axis{zipper.AxisRow}},
		{"1", []zipper.Axis{zipper.AxisRow}},
		{"Columns", []zipper.Axis{zipper.AxisColumn}},
		{"2", []zipper.Axis{zipper.AxisColumn}},
		{"both", []zipper.Axis{zipper.AxisRow, zipper.AxisColumn}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAxes(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := parseAxes("3")
	assert.ErrorIs(t, err, zipper.ErrInvalidAxis)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "a/b_zip.fits", outputName("a/b.fits", "_zip"))
	assert.Equal(t, "c_zip.fits", outputName("c.fits.fz", "_zip"))
	assert.Equal(t, "d_zip.fits", outputName("d", "_zip"))
	assert.Equal(t, "e.rows.reg", regionName("e.fits", zipper.AxisRow, true))
	assert.Equal(t, "e.reg", regionName("e.fits", zipper.AxisRow, false))
}

const headFile = `CTYPE1  = 'RA---TPV'           / WCS projection type for this axis
CTYPE2  = 'DEC--TPV'           / WCS projection type for this axis
CRVAL1  =   1.500500000000E+02 / World coordinate on this axis
CRVAL2  =   2.000000000000E+00 / World coordinate on this axis
CRPIX1  =   3.000000000000E+00 / Reference pixel on this axis
CRPIX2  =   2.500000000000E+00 / Reference pixel on this axis
CD1_1   =  -1.000000000000E-03 / Linear projection matrix
CD1_2   =   0.000000000000E+00 / Linear projection matrix
CD2_1   =   0.000000000000E+00 / Linear projection matrix
CD2_2   =   1.000000000000E-03 / Linear projection matrix
PV1_1   =   1.000000000000E+00 / Projection distortion parameter
PV2_1   =   1.000000000000E+00 / Projection distortion parameter
END
`

const hdupcfg = `# field;keyword;type;comment;hdus
CRVAL1;CRVAL1;float;World coordinate on this axis;0
CTYPE1;CTYPE1;str;WCS projection type for this axis;0,MSK
PV1_3;PV1_3;float;Projection distortion parameter;SCI
RACenter;RA_CENT;float;RA center;0
Cross;CROSSRA0;str;Does Image Span RA 0h (Y/N);0
`

func TestUpdateHeadCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeExposure(t, dir)
	head := filepath.Join(dir, "exp.head")
	cfg := filepath.Join(dir, "hdup.cfg")
	outPath := filepath.Join(dir, "exp_wcs.fits")
	require.NoError(t, os.WriteFile(head, []byte(headFile), 0o644))
	require.NoError(t, os.WriteFile(cfg, []byte(hdupcfg), 0o644))

	out, err := execute(t, "update-head", "-i", in, "-o", outPath, "--headfile", head, "--hdupcfg", cfg,
		"--xml", filepath.Join(dir, "missing.xml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Updated 6 keywords in 2 HDUs")

	f, err := fitsutil.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	hdrs := f.Headers()

	crval1, ok := hdrs[0].GetFloat("CRVAL1")
	assert.True(t, ok)
	assert.InDelta(t, 150.05, crval1, 1e-9)
	assert.Equal(t, "RA---TPV", hdrs[0].GetString("CTYPE1"))
	assert.Equal(t, "RA---TPV", hdrs[1].GetString("CTYPE1"))
	pv13, ok := hdrs[0].GetFloat("PV1_3")
	assert.True(t, ok)
	assert.Zero(t, pv13)
	ra, ok := hdrs[0].GetFloat("RA_CENT")
	assert.True(t, ok)
	assert.InDelta(t, 150.05, ra, 0.01)
	assert.Equal(t, "N", hdrs[0].GetString("CROSSRA0"))
	assert.False(t, hdrs[2].Has("CTYPE1"))

	// The input is left untouched.
	f2, err := fitsutil.Open(in)
	require.NoError(t, err)
	defer f2.Close()
	orig, _ := f2.Headers()[0].GetFloat("CRVAL1")
	assert.Equal(t, 150.0, orig)

	_, err = execute(t, "update-head", "-i", in, "-o", in, "--headfile", head, "--hdupcfg", cfg)
	assert.Error(t, err)
	_, err = execute(t, "update-head", "-i", in, "-o", outPath)
	assert.Error(t, err, "required flags")
}

func TestCornersCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeExposure(t, dir)

	out, err := execute(t, "corners", "--hdu", "SCI", "--update", in)
	require.NoError(t, err)
	assert.Contains(t, out, "crosses RA 0h: false")

	f, err := fitsutil.Open(in)
	require.NoError(t, err)
	defer f.Close()
	h := f.Headers()[0]
	dec, ok := h.GetFloat("DEC_CENT")
	assert.True(t, ok)
	assert.InDelta(t, 2.0, dec, 0.01)
	for _, k := range []string{"RAC1", "DECC4", "RACMIN", "DECCMAX"} {
		assert.True(t, h.Has(k), k)
	}
}

func TestFWHMCommandErrors(t *testing.T) {
	path := writeExposure(t, t.TempDir())

	_, err := execute(t, "fwhm", path)
	assert.ErrorIs(t, err, fitsutil.ErrNotTable)

	_, err = execute(t, "fwhm")
	assert.Error(t, err)
}

func TestCoordsCommand(t *testing.T) {
	out, err := execute(t, "coords", "--hours", "10:00:00", "+02:00:00", "150", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "separation 1.0000000 deg")
	assert.Contains(t, out, "10:00:00.0 02:00:00.0")

	_, err = execute(t, "coords", "10:00")
	assert.Error(t, err)
	_, err = execute(t, "coords", "abc", "1")
	assert.Error(t, err)
}
