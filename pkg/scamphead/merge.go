package scamphead

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/samber/lo"

	"despyastro/pkg/fitsutil"
	"despyastro/pkg/wcs"
)

// Update is the set of cards destined for one HDU.
type Update struct {
	HDU   HDURef
	Cards []fitsio.Card
}

// Merge types every keyword of data that the configuration names and
// groups the results by target HDU. Cards carry the configured comment and
// are sorted by keyword within each HDU; HDUs keep the order in which the
// configuration first mentions them. Keywords with values that cannot be
// converted to the configured type are skipped with a warning.
func Merge(specs []FieldSpec, data *fitsutil.Header, log *slog.Logger) []Update {
	if log == nil {
		log = slog.Default()
	}

	byHDU := make(map[HDURef]map[string]fitsio.Card)
	var order []HDURef
	for _, card := range data.Cards() {
		matching := lo.Filter(specs, func(s FieldSpec, _ int) bool {
			return s.Keyword == card.Name
		})
		for _, spec := range matching {
			value, ok := convert(card.Value, spec.Type)
			if !ok {
				log.Warn("skipping keyword", "keyword", card.Name, "type", spec.Type, "value", card.Value)
				continue
			}
			for _, hdu := range spec.HDUs {
				if _, seen := byHDU[hdu]; !seen {
					byHDU[hdu] = make(map[string]fitsio.Card)
					order = append(order, hdu)
				}
				byHDU[hdu][card.Name] = fitsio.Card{Name: card.Name, Value: value, Comment: spec.Comment}
			}
		}
	}

	sortHDUs(order, specs)
	updates := make([]Update, 0, len(order))
	for _, hdu := range order {
		keys := lo.Keys(byHDU[hdu])
		sort.Strings(keys)
		cards := lo.Map(keys, func(k string, _ int) fitsio.Card { return byHDU[hdu][k] })
		updates = append(updates, Update{HDU: hdu, Cards: cards})
	}
	return updates
}

// sortHDUs orders refs by their first mention in the configuration.
func sortHDUs(refs []HDURef, specs []FieldSpec) {
	rank := make(map[HDURef]int)
	for _, s := range specs {
		for _, h := range s.HDUs {
			if _, ok := rank[h]; !ok {
				rank[h] = len(rank)
			}
		}
	}
	sort.SliceStable(refs, func(i, j int) bool { return rank[refs[i]] < rank[refs[j]] })
}

func convert(v interface{}, typ string) (interface{}, bool) {
	switch typ {
	case "str":
		switch x := v.(type) {
		case string:
			return x, true
		case nil:
			return nil, false
		default:
			s := formatAny(x)
			return s, s != ""
		}
	case "int", "float":
		f, ok := number(v)
		if !ok {
			return nil, false
		}
		if typ == "int" {
			return int(math.Round(f)), true
		}
		return f, true
	}
	return nil, false
}

func number(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		return 0, false
	case string:
		f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(x), "D", "E", 1), 64)
		return f, err == nil
	}
	return 0, false
}

func formatAny(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'G', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return "T"
		}
		return "F"
	}
	return ""
}

// CornerKeywords returns the centre, corner and extent cards.
func CornerKeywords(c *wcs.Corners) []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "RA_CENT", Value: c.RA0, Comment: "RA center"},
		{Name: "DEC_CENT", Value: c.Dec0, Comment: "DEC center"},
	}
	for i := 0; i < 4; i++ {
		n := strconv.Itoa(i + 1)
		cards = append(cards,
			fitsio.Card{Name: "RAC" + n, Value: c.RA[i], Comment: "RA corner " + n},
			fitsio.Card{Name: "DECC" + n, Value: c.Dec[i], Comment: "DEC corner " + n},
		)
	}
	e := c.Extent()
	cross := "N"
	if e.CrossRA0 {
		cross = "Y"
	}
	return append(cards,
		fitsio.Card{Name: "RACMIN", Value: e.RACMin, Comment: "Minimum extent of image in RA"},
		fitsio.Card{Name: "RACMAX", Value: e.RACMax, Comment: "Maximum extent of image in RA"},
		fitsio.Card{Name: "DECCMIN", Value: e.DecCMin, Comment: "Minimum extent of image in Declination"},
		fitsio.Card{Name: "DECCMAX", Value: e.DecCMax, Comment: "Maximum extent of image in Declination"},
		fitsio.Card{Name: "CROSSRA0", Value: cross, Comment: "Does Image Span RA 0h (Y/N)"},
	)
}

// FWHMKeywords returns the seeing cards, rounded to four decimals.
func FWHMKeywords(fwhm, ellipticity float64, count int) []fitsio.Card {
	round4 := func(v float64) float64 { return math.Round(v*1e4) / 1e4 }
	return []fitsio.Card{
		{Name: "FWHM", Value: round4(fwhm), Comment: "Median FWHM from SCAMP input catalog [pixels]"},
		{Name: "ELLIPTIC", Value: round4(ellipticity), Comment: "Median Ellipticity from SCAMP input catalog"},
		{Name: "NFWHMCNT", Value: count, Comment: "Number of objects used to find FWHM"},
	}
}

// Collect assembles the keyword data for Merge: the extra cards (FWHM, QA)
// first, then the .head solution, the image size taken from the science
// header, and the corner keywords computed from the new solution. Later
// sources win when a keyword repeats.
func Collect(head, science *fitsutil.Header, extra ...[]fitsio.Card) (*fitsutil.Header, error) {
	data := fitsutil.NewHeader()
	for _, cards := range extra {
		for _, c := range cards {
			data.Set(c)
		}
	}
	for _, c := range head.Cards() {
		data.Set(c)
	}
	if nx, ny, ok := science.Dims(); ok {
		data.Set(fitsio.Card{Name: "NAXIS1", Value: nx})
		data.Set(fitsio.Card{Name: "NAXIS2", Value: ny})
	}

	w, err := wcs.FromHeader(data)
	if err != nil {
		return nil, err
	}
	corners, err := w.Corners(0)
	if err != nil {
		return nil, err
	}
	for _, c := range CornerKeywords(corners) {
		data.Set(c)
	}
	return data, nil
}
