// Package scamphead turns SCAMP astrometric solutions into FITS header
// updates: it reads .head files, SCAMP XML QA summaries and the header
// update configuration, and merges them into per-HDU keyword lists.
package scamphead

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/astrogo/fitsio"

	"despyastro/pkg/fitsutil"
)

// ParseHead reads a SCAMP .head file. HISTORY and COMMENT lines are skipped
// and reading stops at END. Values are kept as strings with surrounding
// quotes removed; Merge converts them to the configured types.
func ParseHead(r io.Reader) ([]fitsio.Card, error) {
	var cards []fitsio.Card
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.HasPrefix(line, "HISTORY") || strings.HasPrefix(line, "COMMENT") {
			continue
		}
		if strings.HasPrefix(line, "END") {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, rest, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("head line %d: no '=' in %q", lineNo, line)
		}
		value, comment := splitValue(rest)
		cards = append(cards, fitsio.Card{
			Name:    strings.TrimSpace(key),
			Value:   value,
			Comment: comment,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading head file: %w", err)
	}
	return cards, nil
}

// splitValue separates "value / comment", honouring slashes inside quoted
// strings.
func splitValue(s string) (value, comment string) {
	s = strings.TrimSpace(s)
	cut := -1
	if strings.HasPrefix(s, "'") {
		if end := strings.Index(s[1:], "'"); end >= 0 {
			if i := strings.Index(s[end+2:], "/"); i >= 0 {
				cut = end + 2 + i
			}
		}
	} else {
		cut = strings.Index(s, "/")
	}
	if cut >= 0 {
		value, comment = s[:cut], strings.TrimSpace(s[cut+1:])
	} else {
		value = s
	}
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "'") {
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(value, "'"), "'"))
	}
	return value, comment
}

// ReadHead parses a .head file into a header and adds the PV1_3 and PV2_3
// terms, which SCAMP omits when they are zero.
func ReadHead(r io.Reader) (*fitsutil.Header, error) {
	cards, err := ParseHead(r)
	if err != nil {
		return nil, err
	}
	h := fitsutil.NewHeader(cards...)
	for _, k := range []string{"PV1_3", "PV2_3"} {
		if !h.Has(k) {
			h.Set(fitsio.Card{Name: k, Value: 0.0, Comment: "Projection distortion parameter"})
		}
	}
	return h, nil
}
