package heatmap

import (
	"cephalyzer/internal/models"
)

// Extractor converts response maps into sub-pixel landmark coordinates.
type Extractor struct {
	// Radius is the half-width of the weighted-centroid window around the
	// peak cell. The window is clipped at map borders, never an error.
	Radius int

	// MinActivation is the peak value below which a map is treated as
	// degenerate: no usable peak, confidence 0, point invalid.
	MinActivation float64

	// Downscale is the fixed resolution ratio between image space and
	// response-map space. Extracted coordinates are multiplied by it.
	Downscale int
}

// NewExtractor returns an extractor with the given calibration constants.
// A downscale below 1 is treated as 1 (map and image share resolution).
func NewExtractor(radius int, minActivation float64, downscale int) *Extractor {
	if downscale < 1 {
		downscale = 1
	}
	if radius < 0 {
		radius = 0
	}
	return &Extractor{
		Radius:        radius,
		MinActivation: minActivation,
		Downscale:     downscale,
	}
}

// Extract locates the landmark encoded by the map. Degenerate maps (peak
// below MinActivation, including all-zero) yield the map's geometric center
// with confidence 0 and the point flagged invalid; this is an explicit
// signal, never a silent fallback.
func (e *Extractor) Extract(m *ResponseMap, name models.LandmarkName) models.LandmarkPoint {
	peakIdx, peak := 0, m.Data[0]
	for i, v := range m.Data {
		// Strict comparison keeps the lowest row-major index on ties.
		if v > peak {
			peak = v
			peakIdx = i
		}
	}

	if peak < e.MinActivation {
		return e.toImageSpace(models.LandmarkPoint{
			Name: name,
			X:    float64(m.Width-1) / 2,
			Y:    float64(m.Height-1) / 2,
		}, m)
	}

	px := peakIdx % m.Width
	py := peakIdx / m.Width

	// Intensity-weighted centroid over the window around the peak,
	// clipped to valid indices.
	x0, x1 := px-e.Radius, px+e.Radius
	y0, y1 := py-e.Radius, py+e.Radius
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > m.Width-1 {
		x1 = m.Width - 1
	}
	if y1 > m.Height-1 {
		y1 = m.Height - 1
	}

	var sum, sumX, sumY float64
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			w := m.At(x, y)
			sum += w
			sumX += w * float64(x)
			sumY += w * float64(y)
		}
	}

	cx, cy := float64(px), float64(py)
	if sum > 0 {
		cx = sumX / sum
		cy = sumY / sum
	}

	conf := peak
	if conf > 1 {
		conf = 1
	}

	return e.toImageSpace(models.LandmarkPoint{
		Name:       name,
		X:          cx,
		Y:          cy,
		Confidence: conf,
		Valid:      true,
	}, m)
}

// ExtractAll runs extraction over a full stack, in canonical channel order.
func (e *Extractor) ExtractAll(s Stack) (*models.LandmarkSet, error) {
	set := models.NewLandmarkSet()
	for i, m := range s {
		p := e.Extract(m, models.LandmarkNames[i])
		if err := set.SetPoint(p); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// toImageSpace rescales map coordinates to image pixel space and clips the
// result into image bounds.
func (e *Extractor) toImageSpace(p models.LandmarkPoint, m *ResponseMap) models.LandmarkPoint {
	p.X *= float64(e.Downscale)
	p.Y *= float64(e.Downscale)
	return p.Clip(m.Width*e.Downscale, m.Height*e.Downscale)
}
