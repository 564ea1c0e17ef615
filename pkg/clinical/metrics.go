// Package clinical converts a located landmark set and a pixel-to-millimeter
// scale into named cephalometric measurements: the SNA/SNB/ANB sagittal
// angles, the FMA mandibular plane angle, facial height distances and the
// Jarabak ratio, each compared against configured normal ranges.
package clinical

import (
	"math"

	"cephalyzer/internal/models"
)

// Unit is the physical unit of a metric value.
type Unit string

const (
	Degrees     Unit = "degrees"
	Millimeters Unit = "mm"
	Percent     Unit = "percent"
)

// Status classifies a determined value against its normal range.
type Status string

const (
	StatusLow     Status = "low"
	StatusNormal  Status = "normal"
	StatusHigh    Status = "high"
	StatusUnknown Status = ""
)

// Metric is one named clinical measurement. Undetermined marks a metric
// whose required landmarks were invalid or whose calibration was missing;
// an undetermined metric is reported explicitly, never as zero and never
// omitted.
type Metric struct {
	Name         string
	Value        float64
	Unit         Unit
	Undetermined bool
	NormalRange  [2]float64
	HasRange     bool
	Status       Status
}

// MetricNames lists every metric the calculator produces, in report order.
var MetricNames = []string{"SNA", "SNB", "ANB", "FMA", "N-Me", "S-Go", "S-Go/N-Me"}

// Calculator computes the full metric catalog. It is stateless apart from
// the configured normal ranges and safe for concurrent use.
type Calculator struct {
	normalRanges map[string][2]float64
}

// NewCalculator returns a calculator using the given normal ranges. Metrics
// without a configured range are still computed, just not statused.
func NewCalculator(normalRanges map[string][2]float64) *Calculator {
	return &Calculator{normalRanges: normalRanges}
}

// Compute derives every metric from the landmark set. mmPerPixel is the
// physical scale; pass 0 when no calibration is available, in which case
// millimeter distances come back undetermined while angles and ratios are
// still computed.
func (c *Calculator) Compute(set *models.LandmarkSet, mmPerPixel float64) map[string]Metric {
	out := make(map[string]Metric, len(MetricNames))

	sna := c.threePointAngle(set, "SNA", models.Sella, models.Nasion, models.PointA)
	snb := c.threePointAngle(set, "SNB", models.Sella, models.Nasion, models.PointB)
	out["SNA"] = sna
	out["SNB"] = snb

	// ANB is derived from the same SNA/SNB measurements, signed: a
	// negative value indicates mandibular prognathism.
	anb := Metric{Name: "ANB", Unit: Degrees}
	if sna.Undetermined || snb.Undetermined {
		anb.Undetermined = true
	} else {
		anb.Value = sna.Value - snb.Value
	}
	out["ANB"] = c.assess(anb)

	out["FMA"] = c.linePairAngle(set, "FMA",
		models.Porion, models.Orbitale, models.Gonion, models.Menton)

	nme := c.distanceMM(set, "N-Me", models.Nasion, models.Menton, mmPerPixel)
	sgo := c.distanceMM(set, "S-Go", models.Sella, models.Gonion, mmPerPixel)
	out["N-Me"] = nme
	out["S-Go"] = sgo

	// The Jarabak ratio is derived from the same two facial height
	// measurements. The scale factor cancels, so it stays determined
	// even without calibration as long as the landmarks are valid.
	ratio := Metric{Name: "S-Go/N-Me", Unit: Percent}
	anterior, okA := pixelDistance(set, models.Nasion, models.Menton)
	posterior, okP := pixelDistance(set, models.Sella, models.Gonion)
	if !okA || !okP || anterior == 0 {
		ratio.Undetermined = true
	} else {
		ratio.Value = posterior / anterior * 100
	}
	out["S-Go/N-Me"] = c.assess(ratio)

	return out
}

// threePointAngle measures the angle at vertex between the rays to a and b,
// in degrees within [0, 180]. Collinear landmarks yield exactly 180 (or 0
// for coincident ray directions), never NaN.
func (c *Calculator) threePointAngle(set *models.LandmarkSet, name string,
	a, vertex, b models.LandmarkName) Metric {

	m := Metric{Name: name, Unit: Degrees}
	pa, pv, pb, ok := threeValid(set, a, vertex, b)
	if !ok {
		m.Undetermined = true
		return c.assess(m)
	}

	v1x, v1y := pa.X-pv.X, pa.Y-pv.Y
	v2x, v2y := pb.X-pv.X, pb.Y-pv.Y

	cross := v1x*v2y - v1y*v2x
	dot := v1x*v2x + v1y*v2y
	m.Value = math.Atan2(math.Abs(cross), dot) * 180 / math.Pi
	return c.assess(m)
}

// linePairAngle measures the angle between the lines a1-a2 and b1-b2 folded
// into [0, 180] degrees.
func (c *Calculator) linePairAngle(set *models.LandmarkSet, name string,
	a1, a2, b1, b2 models.LandmarkName) Metric {

	m := Metric{Name: name, Unit: Degrees}
	points, ok := allValid(set, a1, a2, b1, b2)
	if !ok {
		m.Undetermined = true
		return c.assess(m)
	}

	ang1 := math.Atan2(points[1].Y-points[0].Y, points[1].X-points[0].X) * 180 / math.Pi
	ang2 := math.Atan2(points[3].Y-points[2].Y, points[3].X-points[2].X) * 180 / math.Pi

	diff := math.Abs(ang1 - ang2)
	if diff > 180 {
		diff = 360 - diff
	}
	m.Value = diff
	return c.assess(m)
}

// distanceMM measures the Euclidean distance between two landmarks in
// millimeters. Without calibration the metric is undetermined.
func (c *Calculator) distanceMM(set *models.LandmarkSet, name string,
	a, b models.LandmarkName, mmPerPixel float64) Metric {

	m := Metric{Name: name, Unit: Millimeters}
	px, ok := pixelDistance(set, a, b)
	if !ok || mmPerPixel <= 0 {
		m.Undetermined = true
		return c.assess(m)
	}
	m.Value = px * mmPerPixel
	return c.assess(m)
}

// pixelDistance returns the distance in pixel space and whether both
// landmarks were valid.
func pixelDistance(set *models.LandmarkSet, a, b models.LandmarkName) (float64, bool) {
	points, ok := allValid(set, a, b)
	if !ok {
		return 0, false
	}
	return math.Hypot(points[1].X-points[0].X, points[1].Y-points[0].Y), true
}

// assess fills in the normal range and status for determined values.
func (c *Calculator) assess(m Metric) Metric {
	r, ok := c.normalRanges[m.Name]
	if !ok {
		return m
	}
	m.NormalRange = r
	m.HasRange = true
	if m.Undetermined {
		return m
	}
	switch {
	case m.Value < r[0]:
		m.Status = StatusLow
	case m.Value > r[1]:
		m.Status = StatusHigh
	default:
		m.Status = StatusNormal
	}
	return m
}

func threeValid(set *models.LandmarkSet, a, vertex, b models.LandmarkName) (pa, pv, pb models.LandmarkPoint, ok bool) {
	points, ok := allValid(set, a, vertex, b)
	if !ok {
		return
	}
	return points[0], points[1], points[2], true
}

// allValid fetches the named points and reports false if any is invalid or
// has zero confidence.
func allValid(set *models.LandmarkSet, names ...models.LandmarkName) ([]models.LandmarkPoint, bool) {
	points := make([]models.LandmarkPoint, len(names))
	for i, name := range names {
		p, err := set.Point(name)
		if err != nil || !p.Valid || p.Confidence <= 0 {
			return nil, false
		}
		points[i] = p
	}
	return points, true
}
