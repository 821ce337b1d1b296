package fitsutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
)

// Header is an ordered set of FITS cards with case-insensitive lookup.
type Header struct {
	cards []fitsio.Card
	index map[string]int
}

// NewHeader creates a Header holding cards. Later cards replace earlier ones
// with the same name, except COMMENT and HISTORY which are never indexed.
func NewHeader(cards ...fitsio.Card) *Header {
	h := &Header{index: make(map[string]int)}
	for _, c := range cards {
		h.Set(c)
	}
	return h
}

// FromFitsio copies the cards of a fitsio header.
func FromFitsio(fh *fitsio.Header) *Header {
	h := NewHeader()
	for _, key := range fh.Keys() {
		if c := fh.Get(key); c != nil {
			h.Set(*c)
		}
	}
	// fitsio keeps the axis lengths outside the card list.
	for i, n := range fh.Axes() {
		key := fmt.Sprintf("NAXIS%d", i+1)
		if !h.Has(key) {
			h.Set(fitsio.Card{Name: key, Value: n})
		}
	}
	return h
}

// Set inserts c, or replaces the card with the same name in place.
func (h *Header) Set(c fitsio.Card) {
	c.Name = strings.ToUpper(strings.TrimSpace(c.Name))
	if isCommentary(c.Name) {
		h.cards = append(h.cards, c)
		return
	}
	if i, ok := h.index[c.Name]; ok {
		h.cards[i] = c
		return
	}
	h.index[c.Name] = len(h.cards)
	h.cards = append(h.cards, c)
}

// Cards returns the cards in order.
func (h *Header) Cards() []fitsio.Card { return h.cards }

// Len is the number of cards.
func (h *Header) Len() int { return len(h.cards) }

// Get returns the card named key.
func (h *Header) Get(key string) (fitsio.Card, bool) {
	i, ok := h.index[strings.ToUpper(key)]
	if !ok {
		return fitsio.Card{}, false
	}
	return h.cards[i], true
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	_, ok := h.index[strings.ToUpper(key)]
	return ok
}

func (h *Header) GetString(key string) string {
	c, ok := h.Get(key)
	if !ok || c.Value == nil {
		return ""
	}
	switch v := c.Value.(type) {
	case string:
		return strings.TrimRight(v, " ")
	default:
		return fmt.Sprint(v)
	}
}

func (h *Header) GetFloat(key string) (float64, bool) {
	c, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	return toFloat(c.Value)
}

func (h *Header) GetInt(key string) (int, bool) {
	f, ok := h.GetFloat(key)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Dims returns NAXIS1 and NAXIS2, preferring ZNAXIS1/ZNAXIS2 so that
// tile-compressed images report their uncompressed size.
func (h *Header) Dims() (nx, ny int, ok bool) {
	if nx, ok1 := h.GetInt("ZNAXIS1"); ok1 {
		if ny, ok2 := h.GetInt("ZNAXIS2"); ok2 {
			return nx, ny, true
		}
	}
	nx, ok1 := h.GetInt("NAXIS1")
	ny, ok2 := h.GetInt("NAXIS2")
	return nx, ny, ok1 && ok2
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
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(x), "D", "E", 1), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func isCommentary(name string) bool {
	return name == "COMMENT" || name == "HISTORY" || name == ""
}

// structural keywords describe the layout of an HDU and are regenerated by
// the writer, so they are never copied between files.
var structural = map[string]bool{
	"SIMPLE": true, "XTENSION": true, "BITPIX": true, "NAXIS": true, "NAXIS1": true,
	"NAXIS2": true, "NAXIS3": true, "EXTEND": true, "PCOUNT": true, "GCOUNT": true,
	"BZERO": true, "BSCALE": true, "END": true, "CHECKSUM": true, "DATASUM": true,
}

// Portable returns the cards of h that can be carried over to a freshly
// written HDU.
func (h *Header) Portable() []fitsio.Card {
	out := make([]fitsio.Card, 0, len(h.cards))
	for _, c := range h.cards {
		if structural[c.Name] || c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
