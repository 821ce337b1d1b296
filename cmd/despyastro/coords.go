package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"despyastro/pkg/astrometry"
)

func newCoordsCmd() *cobra.Command {
	var hours bool
	cmd := &cobra.Command{
		Use:   "coords RA DEC [RA2 DEC2]",
		Short: "Convert coordinates between decimal and sexagesimal, and measure separations",
		Long: "Coordinates may be decimal degrees or sexagesimal DD:MM:SS. With --hours,\n" +
			"sexagesimal right ascensions are read as HH:MM:SS.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 && len(args) != 4 {
				return fmt.Errorf("want 2 or 4 arguments, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoords(cmd.OutOrStdout(), args, hours)
		},
	}
	cmd.Flags().BoolVar(&hours, "hours", false, "sexagesimal RA is in hours")
	return cmd
}

func parseAngle(s string, scale float64) (float64, error) {
	if strings.Contains(s, ":") {
		v, err := astrometry.Deg2Dec(s, ":")
		return v * scale, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", astrometry.ErrBadSexagesimal, s)
	}
	return v, nil
}

func runCoords(out io.Writer, args []string, hours bool) error {
	raScale := 1.0
	if hours {
		raScale = 15
	}
	var pts []astrometry.Coord
	for i := 0; i < len(args); i += 2 {
		ra, err := parseAngle(args[i], raScale)
		if err != nil {
			return err
		}
		dec, err := parseAngle(args[i+1], 1)
		if err != nil {
			return err
		}
		pts = append(pts, astrometry.Coord{RA: ra, Dec: dec})
		fmt.Fprintf(out, "%12.7f %12.7f  %s %s\n", ra, dec,
			astrometry.Dec2Deg(ra/15, astrometry.FormLong, ":"), astrometry.Dec2Deg(dec, astrometry.FormLong, ":"))
	}
	if len(pts) == 2 {
		fmt.Fprintf(out, "separation %.7f deg\n", astrometry.Separation(pts[0], pts[1]).Degrees())
	}
	return nil
}
