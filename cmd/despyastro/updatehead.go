package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/astrogo/fitsio"
	"github.com/spf13/cobra"

	"despyastro/pkg/catalog"
	"despyastro/pkg/fitsutil"
	"despyastro/pkg/scamphead"
)

type updateHeadOptions struct {
	input    string
	output   string
	headfile string
	hdupcfg  string
	fwhm     string
	xml      string
}

func newUpdateHeadCmd() *cobra.Command {
	o := &updateHeadOptions{}
	cmd := &cobra.Command{
		Use:   "update-head",
		Short: "Copy an image and update its headers from a SCAMP solution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdateHead(cmd.OutOrStdout(), o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "input image")
	f.StringVarP(&o.output, "output", "o", "", "output image (updated copy of input)")
	f.StringVar(&o.headfile, "headfile", "", "SCAMP .head file")
	f.StringVar(&o.hdupcfg, "hdupcfg", "", "header update configuration")
	f.StringVarP(&o.fwhm, "fwhm", "f", "", "FITS_LDAC catalog used to measure FWHM (optional)")
	f.StringVar(&o.xml, "xml", "", "SCAMP XML output with QA values (optional)")
	for _, name := range []string{"input", "output", "headfile", "hdupcfg"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runUpdateHead(out io.Writer, o *updateHeadOptions) error {
	log := slog.Default()

	var extra [][]fitsio.Card
	if o.fwhm != "" {
		cat, err := catalog.OpenLDAC(o.fwhm)
		if err != nil {
			return fmt.Errorf("FWHM catalog: %w", err)
		}
		seeing, _, err := catalog.Measure(cat)
		if err != nil {
			return fmt.Errorf("FWHM catalog: %w", err)
		}
		log.Info("measured seeing", "fwhm", seeing.FWHM, "ellipticity", seeing.Ellipticity, "count", seeing.Count)
		extra = append(extra, scamphead.FWHMKeywords(seeing.FWHM, seeing.Ellipticity, seeing.Count))
	}
	if o.xml != "" {
		extra = append(extra, readQA(o.xml, log))
	}

	specs, err := readConfig(o.hdupcfg)
	if err != nil {
		return err
	}
	head, err := readHead(o.headfile)
	if err != nil {
		return err
	}
	science, err := scienceHeader(o.input)
	if err != nil {
		return err
	}
	data, err := scamphead.Collect(head, science, extra...)
	if err != nil {
		return fmt.Errorf("computing corners: %w", err)
	}
	c, _ := data.GetFloat("RA_CENT")
	d, _ := data.GetFloat("DEC_CENT")
	log.Debug("new solution", "ra_cent", c, "dec_cent", d, "crossra0", data.GetString("CROSSRA0"))

	updates := scamphead.Merge(specs, data, log)

	if err := copyFile(o.input, o.output); err != nil {
		return err
	}
	byIndex, err := resolveUpdates(o.output, updates)
	if err != nil {
		return err
	}
	if err := fitsutil.UpdateHeaders(o.output, byIndex); err != nil {
		return err
	}

	n := 0
	for _, u := range updates {
		n += len(u.Cards)
	}
	fmt.Fprintf(out, "Updated %d keywords in %d HDUs of %s\n", n, len(byIndex), o.output)
	return nil
}

// readQA never fails: missing QA only costs the SCAMP* keywords.
func readQA(path string, log *slog.Logger) []fitsio.Card {
	f, err := os.Open(path)
	if err != nil {
		log.Warn("cannot read SCAMP XML", "path", path, "err", err)
		return nil
	}
	defer f.Close()
	fields, err := scamphead.ParseScampXML(f, "FGroups")
	if err != nil {
		log.Warn("cannot read SCAMP XML", "path", path, "err", err)
		return nil
	}
	return scamphead.QAKeywords(fields, log)
}

func readConfig(path string) ([]scamphead.FieldSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("header update configuration: %w", err)
	}
	defer f.Close()
	return scamphead.ParseUpdateConfig(f)
}

func readHead(path string) (*fitsutil.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("head file: %w", err)
	}
	defer f.Close()
	return scamphead.ReadHead(f)
}

// scienceHeader returns the first header that carries the image size,
// which is the primary HDU for plain images and the first extension for
// tile-compressed ones.
func scienceHeader(path string) (*fitsutil.Header, error) {
	f, err := fitsutil.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	headers := f.Headers()
	for _, h := range headers {
		if nx, ny, ok := h.Dims(); ok && nx > 0 && ny > 0 {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%s: no HDU with NAXIS1/NAXIS2", path)
}

func copyFile(src, dst string) error {
	sa, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	da, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if sa == da {
		return fmt.Errorf("input and output are the same file: %s", src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// resolveUpdates maps each update's HDU reference onto an index in path.
func resolveUpdates(path string, updates []scamphead.Update) (map[int][]fitsio.Card, error) {
	f, err := fitsutil.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := make(map[int][]fitsio.Card, len(updates))
	for _, u := range updates {
		_, idx, err := f.Find(u.HDU.String())
		if err != nil {
			return nil, err
		}
		out[idx] = append(out[idx], u.Cards...)
	}
	return out, nil
}
