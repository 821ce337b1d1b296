package catalog

import (
	"math"

	"github.com/samber/lo"
)

const (
	zoneEdgeFraction  = 0.25
	minStarsPerZone   = 3
	minStarsReliable  = 20
	emptyZoneSentinel = 0
)

// Zone identifies a cell of the 3x3 field grid as displayed, with north
// (large Y_IMAGE) at the top.
type Zone int

const (
	ZoneTopLeft Zone = iota
	ZoneTop
	ZoneTopRight
	ZoneLeft
	ZoneCenter
	ZoneRight
	ZoneBottomLeft
	ZoneBottom
	ZoneBottomRight
)

var allZones = []Zone{
	ZoneTopLeft, ZoneTop, ZoneTopRight,
	ZoneLeft, ZoneCenter, ZoneRight,
	ZoneBottomLeft, ZoneBottom, ZoneBottomRight,
}

var cornerZones = []Zone{ZoneTopLeft, ZoneTopRight, ZoneBottomLeft, ZoneBottomRight}

var zoneLabels = map[Zone]string{
	ZoneTopLeft:     "TL",
	ZoneTop:         "T",
	ZoneTopRight:    "TR",
	ZoneLeft:        "L",
	ZoneCenter:      "Center",
	ZoneRight:       "R",
	ZoneBottomLeft:  "BL",
	ZoneBottom:      "B",
	ZoneBottomRight: "BR",
}

func (z Zone) String() string { return zoneLabels[z] }

// ZoneStats holds the seeing of one zone.
type ZoneStats struct {
	Label             string
	MedianFWHM        float64
	MedianEllipticity float64
	Count             int
}

// FieldSeeing describes how the seeing changes across the detector.
//
// SpreadPct compares the worst and best populated corners against the
// centre; OffAxisPct compares the mean of all populated outer zones against
// the centre. Both are percentages of the central FWHM.
type FieldSeeing struct {
	Zones       map[Zone]ZoneStats
	SpreadPct   float64
	OffAxisPct  float64
	BestCorner  string
	WorstCorner string
	Reliable    bool
}

// AnalyzeField buckets sources into a 3x3 grid over a width x height image
// (1-based SExtractor pixel coordinates) and compares each zone's median
// FWHM to the centre. It returns nil when there are no sources.
func AnalyzeField(sources []Source, width, height int) *FieldSeeing {
	if len(sources) == 0 || width <= 0 || height <= 0 {
		return nil
	}

	xLo := float64(width) * zoneEdgeFraction
	xHi := float64(width) * (1 - zoneEdgeFraction)
	yLo := float64(height) * zoneEdgeFraction
	yHi := float64(height) * (1 - zoneEdgeFraction)

	buckets := lo.GroupBy(sources, func(s Source) Zone {
		return classifyZone(s.X-1, s.Y-1, xLo, xHi, yLo, yHi)
	})
	zones := make(map[Zone]ZoneStats, len(allZones))
	for _, z := range allZones {
		zones[z] = zoneStats(z, buckets[z])
	}

	res := &FieldSeeing{Zones: zones}
	center := zones[ZoneCenter].MedianFWHM
	if center <= emptyZoneSentinel {
		return res
	}

	var best, worst Zone
	bestFWHM, worstFWHM := math.MaxFloat64, 0.0
	valid := 0
	for _, z := range cornerZones {
		zs := zones[z]
		if zs.Count < minStarsPerZone {
			continue
		}
		valid++
		if zs.MedianFWHM < bestFWHM {
			bestFWHM, best = zs.MedianFWHM, z
		}
		if zs.MedianFWHM > worstFWHM {
			worstFWHM, worst = zs.MedianFWHM, z
		}
	}
	if valid >= 2 {
		res.SpreadPct = (worstFWHM - bestFWHM) / center * 100
		res.BestCorner = best.String()
		res.WorstCorner = worst.String()
	}

	outer := lo.Filter(allZones, func(z Zone, _ int) bool {
		return z != ZoneCenter && zones[z].Count >= minStarsPerZone
	})
	if len(outer) > 0 {
		mean := lo.SumBy(outer, func(z Zone) float64 { return zones[z].MedianFWHM }) / float64(len(outer))
		res.OffAxisPct = (mean - center) / center * 100
	}

	res.Reliable = len(sources) >= minStarsReliable && valid == len(cornerZones) &&
		zones[ZoneCenter].Count >= minStarsPerZone
	return res
}

// classifyZone takes 0-based coordinates; row 0 is the top (high y).
func classifyZone(x, y, xLo, xHi, yLo, yHi float64) Zone {
	col := band(x, xLo, xHi)
	row := 2 - band(y, yLo, yHi)
	return allZones[row*3+col]
}

func band(v, low, high float64) int {
	switch {
	case v < low:
		return 0
	case v < high:
		return 1
	}
	return 2
}

func zoneStats(z Zone, sources []Source) ZoneStats {
	zs := ZoneStats{Label: z.String(), Count: len(sources)}
	if len(sources) == 0 {
		return zs
	}
	zs.MedianFWHM = median(lo.Map(sources, func(s Source, _ int) float64 { return s.FWHM }))
	zs.MedianEllipticity = median(lo.Map(sources, func(s Source, _ int) float64 { return s.Ellipticity }))
	return zs
}
