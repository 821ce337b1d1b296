package scamphead

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrBadConfig = errors.New("scamphead: malformed header update configuration")

// HDURef names an HDU either by 0-based index or by EXTNAME.
type HDURef struct {
	Index int
	Name  string
}

func (r HDURef) String() string {
	if r.Name != "" {
		return r.Name
	}
	return strconv.Itoa(r.Index)
}

// FieldSpec is one line of the header update configuration:
//
//	FieldName;KEYWORD;type;comment;hdu[,hdu...]
type FieldSpec struct {
	Field   string
	Keyword string
	Type    string
	Comment string
	HDUs    []HDURef
}

// ParseUpdateConfig reads the semicolon separated header update
// configuration. Lines starting with '#' are comments.
func ParseUpdateConfig(r io.Reader) ([]FieldSpec, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var specs []FieldSpec
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 5 {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d fields, want 5", ErrBadConfig, line, len(rec))
		}
		spec := FieldSpec{
			Field:   strings.TrimSpace(rec[0]),
			Keyword: strings.ToUpper(strings.TrimSpace(rec[1])),
			Type:    strings.TrimSpace(rec[2]),
			Comment: strings.TrimSpace(rec[3]),
		}
		for _, item := range strings.Split(rec[4], ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if i, err := strconv.Atoi(item); err == nil {
				spec.HDUs = append(spec.HDUs, HDURef{Index: i})
			} else {
				spec.HDUs = append(spec.HDUs, HDURef{Name: item})
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
