package fitsutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
)

const (
	blockSize  = 2880
	recordSize = 80
)

var ErrBadHeader = errors.New("fitsutil: malformed FITS header")

// rawHDU is one header/data unit as it sits in the file.
type rawHDU struct {
	records []string // header records without END
	data    []byte   // data section including padding
}

// UpdateHeaders rewrites the headers of the FITS file at path, upserting
// the given cards into the HDUs keyed by their 0-based index. Data sections
// are copied byte for byte, so tile-compressed files keep working. The file
// is replaced atomically.
func UpdateHeaders(path string, updates map[int][]fitsio.Card) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading FITS file: %w", err)
	}
	hdus, err := splitHDUs(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for i, cards := range updates {
		if i < 0 || i >= len(hdus) {
			return fmt.Errorf("%w: index %d in %s (%d HDUs)", ErrNoSuchHDU, i, path, len(hdus))
		}
		for _, c := range cards {
			rec, err := FormatCard(c)
			if err != nil {
				return err
			}
			hdus[i].upsert(strings.ToUpper(strings.TrimSpace(c.Name)), rec)
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(raw) + blockSize)
	for _, h := range hdus {
		h.writeTo(&buf)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".fitsutil-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func splitHDUs(raw []byte) ([]*rawHDU, error) {
	var hdus []*rawHDU
	r := bytes.NewReader(raw)
	block := make([]byte, blockSize)
	for r.Len() > 0 {
		h := &rawHDU{}
		ended := false
		for !ended {
			if _, err := io.ReadFull(r, block); err != nil {
				return nil, fmt.Errorf("%w: truncated header in HDU %d", ErrBadHeader, len(hdus))
			}
			for i := 0; i < blockSize/recordSize; i++ {
				rec := string(block[i*recordSize : (i+1)*recordSize])
				if strings.TrimSpace(rec[:8]) == "END" {
					ended = true
					break
				}
				h.records = append(h.records, rec)
			}
		}
		if len(h.records) == 0 {
			return nil, fmt.Errorf("%w: empty header in HDU %d", ErrBadHeader, len(hdus))
		}
		key := strings.TrimSpace(h.records[0][:8])
		if (len(hdus) == 0 && key != "SIMPLE") || (len(hdus) > 0 && key != "XTENSION") {
			return nil, fmt.Errorf("%w: HDU %d starts with %q", ErrBadHeader, len(hdus), key)
		}

		size, err := dataSize(h.records)
		if err != nil {
			return nil, fmt.Errorf("HDU %d: %w", len(hdus), err)
		}
		padded := (size + blockSize - 1) / blockSize * blockSize
		if padded > int64(r.Len()) {
			// Some writers omit the final padding.
			padded = int64(r.Len())
		}
		h.data = make([]byte, padded)
		if _, err := io.ReadFull(r, h.data); err != nil {
			return nil, fmt.Errorf("%w: truncated data in HDU %d", ErrBadHeader, len(hdus))
		}
		hdus = append(hdus, h)
	}
	return hdus, nil
}

// dataSize computes the data section length from BITPIX, NAXISn, PCOUNT and
// GCOUNT.
func dataSize(records []string) (int64, error) {
	vals := make(map[string]int64)
	for _, rec := range records {
		key := strings.TrimSpace(rec[:8])
		if key != "BITPIX" && key != "PCOUNT" && key != "GCOUNT" && !strings.HasPrefix(key, "NAXIS") {
			continue
		}
		v, err := strconv.ParseInt(rawValue(rec), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrBadHeader, strings.TrimSpace(rec))
		}
		vals[key] = v
	}
	bitpix, ok := vals["BITPIX"]
	if !ok {
		return 0, fmt.Errorf("%w: missing BITPIX", ErrBadHeader)
	}
	naxis := vals["NAXIS"]
	if naxis == 0 {
		return 0, nil
	}
	n := int64(1)
	for i := int64(1); i <= naxis; i++ {
		n *= vals["NAXIS"+strconv.FormatInt(i, 10)]
	}
	gcount := int64(1)
	if g, ok := vals["GCOUNT"]; ok {
		gcount = g
	}
	bytesPer := bitpix / 8
	if bytesPer < 0 {
		bytesPer = -bytesPer
	}
	return bytesPer * gcount * (vals["PCOUNT"] + n), nil
}

// rawValue extracts the value field of a fixed-format record.
func rawValue(rec string) string {
	if len(rec) < 10 || rec[8:10] != "= " {
		return ""
	}
	v := rec[10:]
	if strings.HasPrefix(strings.TrimSpace(v), "'") {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(strings.SplitN(v, "/", 2)[0])
}

func (h *rawHDU) upsert(key, rec string) {
	if !isCommentary(key) {
		for i, old := range h.records {
			if strings.TrimSpace(old[:8]) == key {
				h.records[i] = rec
				return
			}
		}
	}
	// Insert ahead of trailing blank records.
	end := len(h.records)
	for end > 0 && strings.TrimSpace(h.records[end-1]) == "" {
		end--
	}
	h.records = append(h.records, "")
	copy(h.records[end+1:], h.records[end:])
	h.records[end] = rec
}

func (h *rawHDU) writeTo(buf *bytes.Buffer) {
	for _, rec := range h.records {
		buf.WriteString(rec)
	}
	buf.WriteString(pad("END", recordSize))
	if rem := (len(h.records) + 1) % (blockSize / recordSize); rem != 0 {
		buf.WriteString(strings.Repeat(" ", (blockSize/recordSize-rem)*recordSize))
	}
	buf.Write(h.data)
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// FormatCard renders c as an 80-character fixed-format header record.
func FormatCard(c fitsio.Card) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(c.Name))
	if name == "" || len(name) > 8 {
		return "", fmt.Errorf("%w: keyword %q", ErrBadHeader, c.Name)
	}
	if name == "COMMENT" || name == "HISTORY" {
		return pad(pad(name, 8)+fmt.Sprint(c.Value), recordSize), nil
	}

	var value string
	switch v := c.Value.(type) {
	case nil:
		value = ""
	case string:
		s := "'" + strings.ReplaceAll(v, "'", "''")
		if len(v) < 8 {
			s += strings.Repeat(" ", 8-len(v))
		}
		value = s + "'"
	case bool:
		value = fmt.Sprintf("%20s", map[bool]string{true: "T", false: "F"}[v])
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		value = fmt.Sprintf("%20d", v)
	case float32:
		value = fmt.Sprintf("%20s", formatFloat(float64(v)))
	case float64:
		value = fmt.Sprintf("%20s", formatFloat(v))
	default:
		return "", fmt.Errorf("%w: unsupported value %T for %s", ErrBadHeader, c.Value, name)
	}

	rec := pad(name, 8) + "= " + value
	if c.Comment != "" {
		rec += " / " + c.Comment
	}
	return pad(rec, recordSize), nil
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'G', -1, 64)
	if !strings.ContainsAny(s, ".EIN") {
		s += ".0"
	}
	return s
}
