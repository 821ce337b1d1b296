package scamphead

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/astrogo/fitsio"
	"golang.org/x/text/unicode/norm"
)

var ErrNoTable = errors.New("scamphead: table not found in XML")

type voField struct {
	Name string `xml:"name,attr"`
}

type voTable struct {
	Name   string    `xml:"name,attr"`
	Fields []voField `xml:"FIELD"`
	Rows   []struct {
		Cells []string `xml:"TD"`
	} `xml:"DATA>TABLEDATA>TR"`
}

// ParseScampXML reads the first row of the named VOTable table (SCAMP's
// "FGroups" holds the astrometric QA summary) and returns its cells keyed by
// lower-cased field name.
func ParseScampXML(r io.Reader, table string) (map[string]string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: %s", ErrNoTable, table)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing SCAMP XML: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "TABLE" {
			continue
		}
		var t voTable
		if err := dec.DecodeElement(&t, &se); err != nil {
			return nil, fmt.Errorf("parsing SCAMP XML table: %w", err)
		}
		if t.Name != table {
			continue
		}
		out := make(map[string]string, len(t.Fields))
		if len(t.Rows) == 0 {
			return out, nil
		}
		for i, f := range t.Fields {
			if i < len(t.Rows[0].Cells) {
				out[strings.ToLower(f.Name)] = strings.TrimSpace(t.Rows[0].Cells[i])
			}
		}
		return out, nil
	}
}

// qaKey maps a SCAMP XML field onto a header keyword.
type qaKey struct {
	Keyword string
	Field   string
	Type    string
	Comment string
}

var qaKeys = []qaKey{
	{"SCAMPCHI", "astromchi2_reference_highsn", "float", "Chi2 value from SCAMP"},
	{"SCAMPNUM", "astromndets_reference_highsn", "int", "Number of matched stars from SCAMP"},
	{"SCAMPREF", "astref_catalog", "str", "Astrometric Reference Catalog used by SCAMP"},
}

// asciiFold applies NFKD normalisation and drops everything outside ASCII.
func asciiFold(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, norm.NFKD.String(s))
}

// QAKeywords converts the SCAMP QA fields into header cards. Fields that are
// missing or fail to parse are skipped with a warning.
func QAKeywords(fields map[string]string, log *slog.Logger) []fitsio.Card {
	if log == nil {
		log = slog.Default()
	}
	var cards []fitsio.Card
	for _, k := range qaKeys {
		raw, ok := fields[k.Field]
		if !ok {
			continue
		}
		folded := strings.TrimSpace(asciiFold(raw))
		var value interface{}
		switch k.Type {
		case "str":
			value = folded
		case "float":
			f, err := strconv.ParseFloat(folded, 64)
			if err != nil {
				log.Warn("skipping unparsable SCAMP value", "field", k.Field, "value", raw, "type", k.Type)
				continue
			}
			value = f
		case "int":
			i, err := strconv.Atoi(folded)
			if err != nil {
				f, ferr := strconv.ParseFloat(folded, 64)
				if ferr != nil || f != math.Trunc(f) {
					log.Warn("skipping unparsable SCAMP value", "field", k.Field, "value", raw, "type", k.Type)
					continue
				}
				i = int(f)
			}
			value = i
		}
		cards = append(cards, fitsio.Card{Name: k.Keyword, Value: value, Comment: k.Comment})
	}
	return cards
}
