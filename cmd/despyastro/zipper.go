package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"despyastro/pkg/fitsutil"
	"despyastro/pkg/imaging"
	"despyastro/pkg/zipper"
)

// zipperConfig is the YAML layout of --config.
type zipperConfig struct {
	InterpMask uint32          `yaml:"interp_mask"`
	Axis       string          `yaml:"axis"`
	SciHDU     string          `yaml:"sci_hdu"`
	MskHDU     string          `yaml:"msk_hdu"`
	WgtHDU     string          `yaml:"wgt_hdu"`
	Params     zipper.Params   `yaml:"params"`
	Quicklook  imaging.Options `yaml:"quicklook"`
}

func defaultZipperConfig() *zipperConfig {
	return &zipperConfig{
		InterpMask: 1,
		Axis:       "rows",
		SciHDU:     "SCI",
		MskHDU:     "MSK",
		WgtHDU:     "WGT",
		Params:     *zipper.NewParams(),
		Quicklook:  imaging.DefaultOptions(),
	}
}

func loadZipperConfig(r io.Reader, cfg *zipperConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing zipper config: %w", err)
	}
	return nil
}

func parseAxes(s string) ([]zipper.Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rows", "row", "1":
		return []zipper.Axis{zipper.AxisRow}, nil
	case "columns", "column", "cols", "2":
		return []zipper.Axis{zipper.AxisColumn}, nil
	case "both":
		return []zipper.Axis{zipper.AxisRow, zipper.AxisColumn}, nil
	}
	return nil, fmt.Errorf("%w: %q", zipper.ErrInvalidAxis, s)
}

type zipperOptions struct {
	configPath string
	output     string
	suffix     string
	jobs       int
	region     bool
	quicklook  string

	interpMask     uint32
	axis           string
	sciHDU         string
	mskHDU         string
	wgtHDU         string
	variant        string
	badpixInterp   uint32
	invalidMask    uint32
	minRun         int
	maxRun         int
	block          int
	crossBlock     int
	dilate         int
	addNoise       bool
	noiseThreshold float64
	seed           uint64
}

func newZipperCmd() *cobra.Command { return zipperCommand(&zipperOptions{}) }

func zipperCommand(o *zipperOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zipper [flags] FILE...",
		Short: "Interpolate over masked pixel runs",
		Long: "Replaces runs of pixels flagged in the mask plane with values taken from\n" +
			"their neighbours, scanning along rows, columns or both.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config(cmd)
			if err != nil {
				return err
			}
			if o.output != "" && len(args) > 1 {
				return errors.New("--output needs exactly one input file")
			}
			return runZipper(cmd.Context(), cmd.OutOrStdout(), cfg, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "YAML file with interpolation settings")
	f.StringVarP(&o.output, "output", "o", "", "output file (single input only)")
	f.StringVar(&o.suffix, "suffix", "_zip", "suffix added to input names to form output names")
	f.IntVarP(&o.jobs, "jobs", "j", runtime.NumCPU(), "files processed in parallel")
	f.BoolVar(&o.region, "region", false, "write a region file of interpolated spans next to each output")
	f.StringVar(&o.quicklook, "quicklook", "", "also write a quicklook image with this extension (png, jpg, tiff)")

	f.Uint32Var(&o.interpMask, "interp-mask", 1, "mask bits selecting pixels to interpolate")
	f.StringVar(&o.axis, "axis", "rows", "scan direction: rows, columns or both")
	f.StringVar(&o.sciHDU, "sci-hdu", "SCI", "science HDU (EXTNAME or index)")
	f.StringVar(&o.mskHDU, "msk-hdu", "MSK", "mask HDU (EXTNAME or index)")
	f.StringVar(&o.wgtHDU, "wgt-hdu", "WGT", "weight HDU copied to the output when present")
	f.StringVar(&o.variant, "variant", "basic", "value estimate: basic or windowed")
	f.Uint32Var(&o.badpixInterp, "badpix-interp", 0, "mask bits set on interpolated pixels")
	f.Uint32Var(&o.invalidMask, "invalid-mask", 0, "mask bits that disqualify a neighbour (rows only)")
	f.IntVar(&o.minRun, "min-run", 1, "shortest run to interpolate")
	f.IntVar(&o.maxRun, "max-run", 0, "longest run to interpolate (0 = unbounded)")
	f.IntVar(&o.block, "block", 1, "window depth along the scan axis (windowed)")
	f.IntVar(&o.crossBlock, "cross-block", 0, "window half-width across the scan axis (windowed)")
	f.IntVar(&o.dilate, "dilate", 0, "pixels added to both ends of every written span")
	f.BoolVar(&o.addNoise, "add-noise", false, "replace values with Poisson draws")
	f.Float64Var(&o.noiseThreshold, "noise-threshold", 1.0, "values at or below this are written without noise")
	f.Uint64Var(&o.seed, "seed", 0, "noise seed")
	return cmd
}

// config merges defaults, the --config file and explicitly set flags, in
// that order.
func (o *zipperOptions) config(cmd *cobra.Command) (*zipperConfig, error) {
	cfg := defaultZipperConfig()
	if o.configPath != "" {
		data, err := os.ReadFile(o.configPath)
		if err != nil {
			return nil, err
		}
		if err := loadZipperConfig(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", o.configPath, err)
		}
	}

	f := cmd.Flags()
	p := &cfg.Params
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("interp-mask", func() { cfg.InterpMask = o.interpMask })
	set("axis", func() { cfg.Axis = o.axis })
	set("sci-hdu", func() { cfg.SciHDU = o.sciHDU })
	set("msk-hdu", func() { cfg.MskHDU = o.mskHDU })
	set("wgt-hdu", func() { cfg.WgtHDU = o.wgtHDU })
	set("badpix-interp", func() { p.BadpixInterp = o.badpixInterp })
	set("invalid-mask", func() { p.InvalidMask = o.invalidMask })
	set("min-run", func() { p.MinRunLength = o.minRun })
	set("max-run", func() { p.MaxRunLength = o.maxRun })
	set("block", func() { p.Block = o.block })
	set("cross-block", func() { p.CrossBlock = o.crossBlock })
	set("dilate", func() { p.Dilate = o.dilate })
	set("add-noise", func() { p.AddNoise = o.addNoise })
	set("noise-threshold", func() { p.NoiseThreshold = o.noiseThreshold })
	set("seed", func() { p.NoiseSeed = o.seed })
	if f.Changed("variant") {
		if err := p.Variant.UnmarshalText([]byte(o.variant)); err != nil {
			return nil, err
		}
	}

	if _, err := parseAxes(cfg.Axis); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runZipper(ctx context.Context, out io.Writer, cfg *zipperConfig, o *zipperOptions, inputs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	axes, err := parseAxes(cfg.Axis)
	if err != nil {
		return err
	}
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.jobs, 1))
	for _, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dst := o.output
			if dst == "" {
				dst = outputName(in, o.suffix)
			}
			summary, err := zipFile(cfg, axes, in, dst, o)
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprint(out, summary)
			return err
		})
	}
	return g.Wait()
}

// outputName inserts suffix before the FITS extension; compressed inputs
// produce uncompressed outputs.
func outputName(in, suffix string) string {
	base := strings.TrimSuffix(in, ".fz")
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".fits"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + suffix + ext
}

func stem(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func zipFile(cfg *zipperConfig, axes []zipper.Axis, in, dst string, o *zipperOptions) (string, error) {
	log := slog.Default().With("file", filepath.Base(in))

	f, err := fitsutil.Open(in)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sciHDU, _, err := f.Find(cfg.SciHDU)
	if err != nil {
		return "", err
	}
	mskHDU, _, err := f.Find(cfg.MskHDU)
	if err != nil {
		return "", err
	}
	sci, err := fitsutil.ReadFloat(sciHDU)
	if err != nil {
		return "", err
	}
	msk, err := fitsutil.ReadMask(mskHDU)
	if err != nil {
		return "", err
	}
	var wgt *fitsutil.FloatPlane
	if cfg.WgtHDU != "" {
		if hdu, _, err := f.Find(cfg.WgtHDU); err == nil {
			if wgt, err = fitsutil.ReadFloat(hdu); err != nil {
				return "", err
			}
		} else if !errors.Is(err, fitsutil.ErrNoSuchHDU) {
			return "", err
		}
	}

	img := &zipper.Image{Rows: sci.Rows, Cols: sci.Cols, Pix: sci.Pix}
	mask := &zipper.Mask{Rows: msk.Rows, Cols: msk.Cols, Bits: msk.Bits}
	footprint := make([]bool, sci.Rows*sci.Cols)

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s -> %s ===\n", in, dst)
	for _, axis := range axes {
		p := cfg.Params
		p.Logger = log
		if o.region {
			p.RegionFile = regionName(dst, axis, len(axes) > 1)
		}
		res, err := zipper.Interpolate(img, mask, cfg.InterpMask, axis, &p)
		if err != nil {
			return "", err
		}
		for i, on := range zipper.Footprint(res.Runs, axis, img.Rows, img.Cols) {
			footprint[i] = footprint[i] || on
		}
		img, mask = res.Image, res.Mask
		s := res.Stats
		fmt.Fprintf(&sb, "  %-8s runs=%d interpolated=%d pixels=%d border=%d out-of-range=%d no-neighbours=%d\n",
			axis, s.Detected, s.Interpolated, s.PixelsWritten, s.OnBorder, s.OutOfRange, s.NoNeighbors)
	}

	outs := []fitsutil.Output{
		{Name: "SCI", Cards: sci.Header.Portable(), Float: img.Pix, Rows: img.Rows, Cols: img.Cols},
		{Name: "MSK", Cards: msk.Header.Portable(), Mask: mask.Bits, Rows: mask.Rows, Cols: mask.Cols},
	}
	if wgt != nil {
		outs = append(outs, fitsutil.Output{Name: "WGT", Cards: wgt.Header.Portable(), Float: wgt.Pix, Rows: wgt.Rows, Cols: wgt.Cols})
	}
	if err := fitsutil.WriteImages(dst, outs); err != nil {
		return "", err
	}

	if o.quicklook != "" {
		ql := stem(dst) + ".ql." + strings.TrimPrefix(o.quicklook, ".")
		if err := imaging.WriteQuicklook(ql, img.Pix, img.Rows, img.Cols, footprint, cfg.Quicklook); err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "  quicklook: %s\n", ql)
	}
	log.Debug("wrote output", "path", dst, "hdus", len(outs))
	return sb.String(), nil
}

func regionName(dst string, axis zipper.Axis, perAxis bool) string {
	if perAxis {
		return stem(dst) + "." + axis.String() + ".reg"
	}
	return stem(dst) + ".reg"
}
