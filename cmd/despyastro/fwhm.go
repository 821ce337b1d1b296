package main

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"despyastro/pkg/catalog"
)

func newFWHMCmd() *cobra.Command {
	var (
		width, height int
		overlay       string
	)
	cmd := &cobra.Command{
		Use:   "fwhm CATALOG",
		Short: "Measure the median FWHM and ellipticity of stars in a FITS_LDAC catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFWHM(cmd.OutOrStdout(), args[0], width, height, overlay)
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "image width for zone analysis (default: from source positions)")
	cmd.Flags().IntVar(&height, "height", 0, "image height for zone analysis (default: from source positions)")
	cmd.Flags().StringVar(&overlay, "overlay", "", "write a JPEG zone map to this path")
	return cmd
}

func runFWHM(out io.Writer, path string, width, height int, overlay string) error {
	cat, err := catalog.OpenLDAC(path)
	if err != nil {
		return err
	}
	seeing, sources, err := catalog.Measure(cat)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "=== Seeing (%s) ===\n", path)
	fmt.Fprintf(out, "  Rows in catalog:  %d\n", cat.NumRows())
	fmt.Fprintf(out, "  FWHM=%.4f\n", seeing.FWHM)
	fmt.Fprintf(out, "  ELLIPTIC=%.4f\n", seeing.Ellipticity)
	fmt.Fprintf(out, "  NFWHMCNT=%d\n", seeing.Count)

	if !cat.HasColumn("X_IMAGE") || !cat.HasColumn("Y_IMAGE") || len(sources) == 0 {
		return nil
	}
	if width <= 0 || height <= 0 {
		var maxX, maxY float64
		for _, s := range sources {
			maxX, maxY = math.Max(maxX, s.X), math.Max(maxY, s.Y)
		}
		width, height = int(math.Ceil(maxX)), int(math.Ceil(maxY))
	}
	field := catalog.AnalyzeField(sources, width, height)
	if field == nil {
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Field Analysis (3x3) ===")
	zones := []catalog.Zone{
		catalog.ZoneTopLeft, catalog.ZoneTop, catalog.ZoneTopRight,
		catalog.ZoneLeft, catalog.ZoneCenter, catalog.ZoneRight,
		catalog.ZoneBottomLeft, catalog.ZoneBottom, catalog.ZoneBottomRight,
	}
	for i, z := range zones {
		zs := field.Zones[z]
		fmt.Fprintf(out, "  %-8s FWHM=%.3f  ELL=%.3f  n=%d\n", zs.Label, zs.MedianFWHM, zs.MedianEllipticity, zs.Count)
		if (i+1)%3 == 0 && i < 8 {
			fmt.Fprintln(out, "  ---")
		}
	}
	fmt.Fprintf(out, "\n  Corner spread: %.1f%% (best: %s, worst: %s)\n", field.SpreadPct, field.BestCorner, field.WorstCorner)
	fmt.Fprintf(out, "  Off-axis:      %.1f%%\n", field.OffAxisPct)
	if !field.Reliable {
		fmt.Fprintln(out, "  [FEW STARS - UNRELIABLE]")
	}

	if overlay != "" {
		if err := catalog.WriteOverlayFile(overlay, field, width, height); err != nil {
			return err
		}
		fmt.Fprintf(out, "  overlay: %s\n", overlay)
	}
	return nil
}
