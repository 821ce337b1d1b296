package main

import (
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
	"github.com/spf13/cobra"

	"despyastro/pkg/astrometry"
	"despyastro/pkg/fitsutil"
	"despyastro/pkg/scamphead"
	"despyastro/pkg/wcs"
)

func newCornersCmd() *cobra.Command {
	var (
		hdu    string
		border int
		update bool
	)
	cmd := &cobra.Command{
		Use:   "corners FILE",
		Short: "Compute the sky coordinates of the image centre and corners",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCorners(cmd.OutOrStdout(), args[0], hdu, border, update)
		},
	}
	cmd.Flags().StringVar(&hdu, "hdu", "0", "HDU holding the WCS (EXTNAME or index)")
	cmd.Flags().IntVar(&border, "border", 0, "pixels to move each corner inwards")
	cmd.Flags().BoolVar(&update, "update", false, "write the corner keywords into the HDU")
	return cmd
}

func runCorners(out io.Writer, path, ref string, border int, update bool) error {
	f, err := fitsutil.Open(path)
	if err != nil {
		return err
	}
	hdu, idx, err := f.Find(ref)
	if err != nil {
		f.Close()
		return err
	}
	h := fitsutil.FromFitsio(hdu.Header())
	f.Close()

	w, err := wcs.FromHeader(h)
	if err != nil {
		return err
	}
	c, err := w.Corners(border)
	if err != nil {
		return err
	}
	e := c.Extent()
	area, err := astrometry.SkyArea(c.RA[:], c.Dec[:])
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "=== Corners of %s[%d] ===\n", path, idx)
	fmt.Fprintf(out, "  centre   %12.7f %12.7f  (%s %s)\n", c.RA0, c.Dec0,
		astrometry.Dec2Deg(c.RA0/15, astrometry.FormLong, ":"), astrometry.Dec2Deg(c.Dec0, astrometry.FormLong, ":"))
	for i := range c.RA {
		fmt.Fprintf(out, "  corner %d %12.7f %12.7f\n", i+1, c.RA[i], c.Dec[i])
	}
	fmt.Fprintf(out, "  RA  %12.7f .. %12.7f  crosses RA 0h: %v\n", e.RACMin, e.RACMax, e.CrossRA0)
	fmt.Fprintf(out, "  Dec %12.7f .. %12.7f\n", e.DecCMin, e.DecCMax)
	fmt.Fprintf(out, "  area %.6f deg2\n", area)

	if !update {
		return nil
	}
	return fitsutil.UpdateHeaders(path, map[int][]fitsio.Card{idx: scamphead.CornerKeywords(c)})
}
