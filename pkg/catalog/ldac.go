// Package catalog measures image quality from SExtractor FITS_LDAC
// catalogs: the median FWHM and ellipticity of point sources, and how they
// vary across the field.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/astrogo/fitsio"

	"despyastro/pkg/fitsutil"
)

var ErrMissingColumn = errors.New("catalog: required column missing")

// objectsHDU is the LDAC_OBJECTS extension: primary, LDAC_IMHEAD, LDAC_OBJECTS.
const objectsHDU = 2

var (
	requiredColumns = []string{"FWHM_IMAGE", "ELLIPTICITY", "FLAGS", "MAGERR_AUTO", "CLASS_STAR"}
	optionalColumns = []string{"X_IMAGE", "Y_IMAGE", "IMAFLAGS_ISO"}
)

// Table gives column access to a source catalog.
type Table interface {
	NumRows() int
	HasColumn(name string) bool
	Column(name string) ([]float64, error)
}

// Catalog is an in-memory copy of the catalog columns this package uses.
type Catalog struct {
	rows    int
	columns map[string][]float64
}

// NewCatalog builds a Catalog from column slices, which must all have the
// same length.
func NewCatalog(columns map[string][]float64) (*Catalog, error) {
	c := &Catalog{rows: -1, columns: make(map[string][]float64, len(columns))}
	for name, v := range columns {
		if c.rows >= 0 && len(v) != c.rows {
			return nil, fmt.Errorf("catalog: column %s has %d rows, want %d", name, len(v), c.rows)
		}
		c.rows = len(v)
		c.columns[strings.ToUpper(name)] = v
	}
	if c.rows < 0 {
		c.rows = 0
	}
	return c, nil
}

func (c *Catalog) NumRows() int { return c.rows }

func (c *Catalog) HasColumn(name string) bool {
	_, ok := c.columns[strings.ToUpper(name)]
	return ok
}

func (c *Catalog) Column(name string) ([]float64, error) {
	v, ok := c.columns[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return v, nil
}

// OpenLDAC reads the objects table (HDU 2) of a FITS_LDAC catalog.
func OpenLDAC(path string) (*Catalog, error) {
	f, err := fitsutil.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdu, err := f.HDU(objectsHDU)
	if err != nil {
		return nil, err
	}
	tbl, err := fitsutil.TableOf(hdu)
	if err != nil {
		return nil, err
	}
	return readTable(tbl)
}

func readTable(tbl *fitsio.Table) (*Catalog, error) {
	present := make(map[string]bool)
	for _, col := range tbl.Cols() {
		present[strings.ToUpper(col.Name)] = true
	}
	var names []string
	for _, name := range requiredColumns {
		if !present[name] {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		names = append(names, name)
	}
	for _, name := range optionalColumns {
		if present[name] {
			names = append(names, name)
		}
	}

	n := tbl.NumRows()
	columns := make(map[string][]float64, len(names))
	for _, name := range names {
		columns[name] = make([]float64, 0, n)
	}

	rows, err := tbl.Read(0, n)
	if err != nil {
		return nil, fmt.Errorf("reading catalog rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		row := make(map[string]interface{}, len(names))
		for _, name := range names {
			row[name] = nil
		}
		if err := rows.Scan(&row); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		for _, name := range names {
			v, ok := toFloat(row[name])
			if !ok {
				return nil, fmt.Errorf("catalog: column %s holds %T", name, row[name])
			}
			columns[name] = append(columns[name], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading catalog rows: %w", err)
	}
	return NewCatalog(columns)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
