package scamphead

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"despyastro/pkg/fitsutil"
)

const sampleHead = `EQUINOX =        2000.00000000 / Mean equinox
RADESYS = 'ICRS    '           / Astrometric system
CTYPE1  = 'RA---TPV'           / WCS projection type for this axis
CTYPE2  = 'DEC--TPV'           / WCS projection type for this axis
CUNIT1  = 'deg     '           / Axis unit
CRVAL1  =   3.605000000000E+01 / World coordinate on this axis
CRVAL2  =  -4.500000000000E+00 / World coordinate on this axis
CRPIX1  =   1.024500000000E+03 / Reference pixel on this axis
CRPIX2  =   2.048500000000E+03 / Reference pixel on this axis
CD1_1   =   0.000000000000E+00 / Linear projection matrix
CD1_2   =   7.305555555556E-05 / Linear projection matrix
CD2_1   =  -7.305555555556E-05 / Linear projection matrix
CD2_2   =   0.000000000000E+00 / Linear projection matrix
PV1_0   =   1.000000000000E-05 / Projection distortion parameter
PV1_1   =   1.000000000000E+00 / Projection distortion parameter
PV2_1   =   1.000000000000E+00 / Projection distortion parameter
PV2_3   =   2.500000000000E-04 / Projection distortion parameter
HISTORY   Astrometric solution by SCAMP version 2.0.4
COMMENT   (c) 2010-2015 IAP/CNRS/UPMC
OBJECT  = 'a/b     '           / Field with a slash
FLXSCALE=   1.000000000000E+00 / SCAMP relative flux scale
END
IGNORED =                    1 / after END
`

func TestParseHead(t *testing.T) {
	cards, err := ParseHead(strings.NewReader(sampleHead))
	require.NoError(t, err)
	require.Len(t, cards, 19)

	h := fitsutil.NewHeader(cards...)
	assert.Equal(t, "ICRS", h.GetString("RADESYS"))
	assert.Equal(t, "RA---TPV", h.GetString("CTYPE1"))
	assert.Equal(t, "a/b", h.GetString("OBJECT"))
	assert.False(t, h.Has("HISTORY"))
	assert.False(t, h.Has("IGNORED"))

	c, ok := h.Get("CRVAL2")
	require.True(t, ok)
	assert.Equal(t, "-4.500000000000E+00", c.Value)
	assert.Equal(t, "World coordinate on this axis", c.Comment)

	_, err = ParseHead(strings.NewReader("NOEQUALS\n"))
	assert.Error(t, err)
}

func TestReadHeadAddsPVDefaults(t *testing.T) {
	h, err := ReadHead(strings.NewReader(sampleHead))
	require.NoError(t, err)

	pv13, ok := h.GetFloat("PV1_3")
	assert.True(t, ok)
	assert.Zero(t, pv13)
	c, _ := h.Get("PV1_3")
	assert.Equal(t, "Projection distortion parameter", c.Comment)

	pv23, ok := h.GetFloat("PV2_3")
	assert.True(t, ok)
	assert.Equal(t, 2.5e-4, pv23, "existing value kept")
}

const sampleConfig = `# FieldName;KEYWORD;type;comment;hdus
ZeroPoint;MAGZERO;float;Zero point;0
CType1;CTYPE1;str;WCS projection type for this axis;0,SCI
Seeing;FWHM;float;Median FWHM;0, 1 ,WGT
Count;NFWHMCNT;int;Objects used for FWHM;0
Mystery;FLXSCALE;complex;Unknown type;0
`

func TestParseUpdateConfig(t *testing.T) {
	specs, err := ParseUpdateConfig(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	require.Len(t, specs, 5)

	want := FieldSpec{
		Field:   "Seeing",
		Keyword: "FWHM",
		Type:    "float",
		Comment: "Median FWHM",
		HDUs:    []HDURef{{Index: 0}, {Index: 1}, {Name: "WGT"}},
	}
	if diff := cmp.Diff(want, specs[2]); diff != "" {
		t.Errorf("spec mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "SCI", specs[1].HDUs[1].String())
	assert.Equal(t, "0", specs[1].HDUs[0].String())

	_, err = ParseUpdateConfig(strings.NewReader("A;B;str\n"))
	assert.True(t, errors.Is(err, ErrBadConfig))
}

func TestMerge(t *testing.T) {
	specs, err := ParseUpdateConfig(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	data := fitsutil.NewHeader(
		fitsio.Card{Name: "CTYPE1", Value: "RA---TPV"},
		fitsio.Card{Name: "MAGZERO", Value: "not-a-number"},
		fitsio.Card{Name: "FWHM", Value: 3.1416, Comment: "ignored"},
		fitsio.Card{Name: "NFWHMCNT", Value: "12.6"},
		fitsio.Card{Name: "FLXSCALE", Value: "1.0"},
		fitsio.Card{Name: "UNUSED", Value: 7},
	)

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	got := Merge(specs, data, log)

	want := []Update{
		{HDU: HDURef{Index: 0}, Cards: []fitsio.Card{
			{Name: "CTYPE1", Value: "RA---TPV", Comment: "WCS projection type for this axis"},
			{Name: "FWHM", Value: 3.1416, Comment: "Median FWHM"},
			{Name: "NFWHMCNT", Value: 13, Comment: "Objects used for FWHM"},
		}},
		{HDU: HDURef{Name: "SCI"}, Cards: []fitsio.Card{
			{Name: "CTYPE1", Value: "RA---TPV", Comment: "WCS projection type for this axis"},
		}},
		{HDU: HDURef{Index: 1}, Cards: []fitsio.Card{
			{Name: "FWHM", Value: 3.1416, Comment: "Median FWHM"},
		}},
		{HDU: HDURef{Name: "WGT"}, Cards: []fitsio.Card{
			{Name: "FWHM", Value: 3.1416, Comment: "Median FWHM"},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, logs.String(), "keyword=MAGZERO")
	assert.Contains(t, logs.String(), "keyword=FLXSCALE")
}

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<VOTABLE version="1.1">
 <RESOURCE ID="SCAMP" name="SCAMP">
  <RESOURCE ID="MetaData" name="MetaData">
   <TABLE ID="Fields" name="Fields">
    <FIELD name="Catalog_Name" datatype="char" arraysize="*"/>
    <DATA><TABLEDATA><TR><TD>D00123456_g_c01_scamp.fits</TD></TR></TABLEDATA></DATA>
   </TABLE>
   <TABLE ID="FGroups" name="FGroups">
    <FIELD name="Name" datatype="char" arraysize="*"/>
    <FIELD name="AstromChi2_Reference_HighSN" datatype="float"/>
    <FIELD name="AstromNDets_Reference_HighSN" datatype="int"/>
    <FIELD name="AstRef_Catalog" datatype="char" arraysize="*"/>
    <DATA><TABLEDATA>
     <TR><TD>G1</TD><TD>1.8342</TD><TD>523</TD><TD>Gaïa-DR2</TD></TR>
    </TABLEDATA></DATA>
   </TABLE>
  </RESOURCE>
 </RESOURCE>
</VOTABLE>
`

func TestParseScampXML(t *testing.T) {
	fields, err := ParseScampXML(strings.NewReader(sampleXML), "FGroups")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"name":                         "G1",
		"astromchi2_reference_highsn":  "1.8342",
		"astromndets_reference_highsn": "523",
		"astref_catalog":               "Gaïa-DR2",
	}, fields)

	cards := QAKeywords(fields, nil)
	want := []fitsio.Card{
		{Name: "SCAMPCHI", Value: 1.8342, Comment: "Chi2 value from SCAMP"},
		{Name: "SCAMPNUM", Value: 523, Comment: "Number of matched stars from SCAMP"},
		{Name: "SCAMPREF", Value: "Gaia-DR2", Comment: "Astrometric Reference Catalog used by SCAMP"},
	}
	if diff := cmp.Diff(want, cards); diff != "" {
		t.Errorf("QA keywords mismatch (-want +got):\n%s", diff)
	}

	_, err = ParseScampXML(strings.NewReader(sampleXML), "Missing")
	assert.True(t, errors.Is(err, ErrNoTable))
}

func TestQAKeywordsSkipsBadValues(t *testing.T) {
	cards := QAKeywords(map[string]string{
		"astromchi2_reference_highsn":  "n/a",
		"astromndets_reference_highsn": "17.0",
	}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.Len(t, cards, 1)
	assert.Equal(t, "SCAMPNUM", cards[0].Name)
	assert.Equal(t, 17, cards[0].Value)
}

func TestFWHMKeywords(t *testing.T) {
	cards := FWHMKeywords(3.141592, 0.0512345, 42)
	assert.Equal(t, []fitsio.Card{
		{Name: "FWHM", Value: 3.1416, Comment: "Median FWHM from SCAMP input catalog [pixels]"},
		{Name: "ELLIPTIC", Value: 0.0512, Comment: "Median Ellipticity from SCAMP input catalog"},
		{Name: "NFWHMCNT", Value: 42, Comment: "Number of objects used to find FWHM"},
	}, cards)
}

func TestCollect(t *testing.T) {
	head, err := ReadHead(strings.NewReader(sampleHead))
	require.NoError(t, err)
	science := fitsutil.NewHeader(
		fitsio.Card{Name: "NAXIS1", Value: 2048},
		fitsio.Card{Name: "NAXIS2", Value: 4096},
		fitsio.Card{Name: "FLXSCALE", Value: 9.0},
	)
	extra := FWHMKeywords(4.2, 0.05, 10)
	extra = append(extra, fitsio.Card{Name: "FLXSCALE", Value: 5.0})

	data, err := Collect(head, science, extra)
	require.NoError(t, err)

	for _, k := range []string{"RA_CENT", "DEC_CENT", "RAC1", "DECC4", "RACMIN", "RACMAX", "DECCMIN", "DECCMAX", "CROSSRA0", "FWHM"} {
		assert.True(t, data.Has(k), k)
	}
	nx, _ := data.GetInt("NAXIS1")
	assert.Equal(t, 2048, nx)
	ra0, _ := data.GetFloat("RA_CENT")
	dec0, _ := data.GetFloat("DEC_CENT")
	assert.InDelta(t, 36.05, ra0, 0.01)
	assert.InDelta(t, -4.5, dec0, 0.01)
	assert.Equal(t, "N", data.GetString("CROSSRA0"))
	flx, _ := data.GetFloat("FLXSCALE")
	assert.Equal(t, 1.0, flx, "head wins over extra cards")
}

func TestCollectNeedsWCS(t *testing.T) {
	head := fitsutil.NewHeader(fitsio.Card{Name: "CTYPE1", Value: "RA---TAN"})
	_, err := Collect(head, fitsutil.NewHeader())
	assert.Error(t, err)
}
