package localizer

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/config"
	"cephalyzer/pkg/heatmap"
)

// MeanShape is a heuristic localization backend. It synthesizes Gaussian
// response maps at the positions of a population mean shape, optionally
// aligned to two user-supplied anchor points (Or and Po, the Frankfort
// horizontal) by a 2D similarity transform, with an optional seeded jitter.
// It lets the rest of the pipeline run, and be tested, without a trained
// network.
type MeanShape struct {
	// norm holds the mean-shape positions normalized to [0, 1].
	norm map[models.LandmarkName][2]float64

	anchors map[models.LandmarkName][2]float64

	sigma       float64
	jitterSigma float64
	seed        int64

	inW, inH   int
	mapW, mapH int
	downscale  int
}

type meanShapeFile struct {
	Landmarks map[string][2]float64 `json:"landmarks"`
}

// NewMeanShape builds the backend from configuration. Anchors may be nil;
// when both Or and Po are present the mean shape is aligned to them before
// map synthesis. A missing mean-shape file falls back to the built-in shape.
func NewMeanShape(cfg *config.Config, anchors map[models.LandmarkName][2]float64) (*MeanShape, error) {
	norm, err := loadMeanShape(cfg.Localizer.MeanShapePath)
	if err != nil {
		return nil, err
	}

	d := cfg.Image.HeatmapDownscale
	if d < 1 {
		d = 1
	}
	mapW, mapH := mapDims(cfg)

	return &MeanShape{
		norm:        norm,
		anchors:     anchors,
		sigma:       cfg.Heatmap.Sigma,
		jitterSigma: cfg.Localizer.JitterSigma,
		seed:        cfg.Localizer.Seed,
		inW:         cfg.Image.Width,
		inH:         cfg.Image.Height,
		mapW:        mapW,
		mapH:        mapH,
		downscale:   d,
	}, nil
}

// loadMeanShape reads normalized landmark positions from a JSON file. An
// empty path or a missing file yields the built-in default shape.
func loadMeanShape(path string) (map[models.LandmarkName][2]float64, error) {
	if path == "" {
		return defaultMeanShape(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultMeanShape(), nil
		}
		return nil, fmt.Errorf("failed to read mean shape: %w", err)
	}

	var file meanShapeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse mean shape: %w", err)
	}

	norm := make(map[models.LandmarkName][2]float64, models.NumLandmarks)
	for _, name := range models.LandmarkNames {
		pos, ok := file.Landmarks[string(name)]
		if !ok {
			return nil, fmt.Errorf("mean shape missing landmark %q", name)
		}
		norm[name] = pos
	}
	return norm, nil
}

// Predict synthesizes the response stack for the image.
func (ms *MeanShape) Predict(img *models.Image) (heatmap.Stack, error) {
	if err := checkShape(img, ms.inW, ms.inH); err != nil {
		return nil, err
	}

	// Scale the mean shape into image pixel space.
	pts := make(map[models.LandmarkName][2]float64, models.NumLandmarks)
	for name, n := range ms.norm {
		pts[name] = [2]float64{n[0] * float64(ms.inW), n[1] * float64(ms.inH)}
	}

	// Align to the Frankfort horizontal when both anchors are given.
	if or, okOr := ms.anchors[models.Orbitale]; okOr {
		if po, okPo := ms.anchors[models.Porion]; okPo {
			pts = similarityTransform(pts, pts[models.Orbitale], pts[models.Porion], or, po)
		}
	}

	// Seeded jitter keeps repeated predictions identical.
	if ms.jitterSigma > 0 {
		rng := rand.New(rand.NewSource(ms.seed))
		for _, name := range models.LandmarkNames {
			p := pts[name]
			p[0] += rng.NormFloat64() * ms.jitterSigma
			p[1] += rng.NormFloat64() * ms.jitterSigma
			pts[name] = p
		}
	}

	stack := make(heatmap.Stack, models.NumLandmarks)
	scale := float64(ms.downscale)
	for i, name := range models.LandmarkNames {
		p := pts[name]
		cx := clampF(p[0], 0, float64(ms.inW-1)) / scale
		cy := clampF(p[1], 0, float64(ms.inH-1)) / scale
		stack[i] = heatmap.EncodeGaussian(cx, cy, ms.mapW, ms.mapH, ms.sigma)
	}
	return stack, nil
}

// MapSize returns the response-map resolution.
func (ms *MeanShape) MapSize() (int, int) {
	return ms.mapW, ms.mapH
}

// Close is a no-op; the backend holds no external resources.
func (ms *MeanShape) Close() error {
	return nil
}

// similarityTransform maps every point through the translation, rotation and
// scale that carries the source anchor pair onto the destination pair.
func similarityTransform(points map[models.LandmarkName][2]float64,
	srcA, srcB, dstA, dstB [2]float64) map[models.LandmarkName][2]float64 {

	srcDX, srcDY := srcB[0]-srcA[0], srcB[1]-srcA[1]
	dstDX, dstDY := dstB[0]-dstA[0], dstB[1]-dstA[1]

	srcDist := math.Hypot(srcDX, srcDY)
	dstDist := math.Hypot(dstDX, dstDY)
	if srcDist == 0 || dstDist == 0 {
		return points
	}

	scale := dstDist / srcDist
	rot := math.Atan2(dstDY, dstDX) - math.Atan2(srcDY, srcDX)
	cosR, sinR := math.Cos(rot), math.Sin(rot)

	out := make(map[models.LandmarkName][2]float64, len(points))
	for name, p := range points {
		tx, ty := p[0]-srcA[0], p[1]-srcA[1]
		rx := scale * (cosR*tx - sinR*ty)
		ry := scale * (sinR*tx + cosR*ty)
		out[name] = [2]float64{rx + dstA[0], ry + dstA[1]}
	}
	return out
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// defaultMeanShape returns the built-in normalized mean shape derived from a
// reference tracing.
func defaultMeanShape() map[models.LandmarkName][2]float64 {
	return map[models.LandmarkName][2]float64{
		models.Nasion:         {0.585, 0.192},
		models.Sella:          {0.425, 0.315},
		models.Articulare:     {0.385, 0.445},
		models.Orbitale:       {0.515, 0.318},
		models.Porion:         {0.345, 0.355},
		models.PointA:         {0.635, 0.485},
		models.PointB:         {0.605, 0.625},
		models.UpperIncisor:   {0.668, 0.528},
		models.LabraleSup:     {0.725, 0.515},
		models.SoftPogonion:   {0.735, 0.695},
		models.Gonion:         {0.405, 0.605},
		models.Pogonion:       {0.655, 0.665},
		models.Menton:         {0.605, 0.705},
		models.AnteriorNasal:  {0.645, 0.465},
		models.PosteriorNasal: {0.485, 0.475},
		models.Gnathion:       {0.625, 0.695},
		models.LowerIncisor:   {0.645, 0.585},
		models.LabraleInf:     {0.695, 0.585},
		models.Pronasale:      {0.755, 0.455},
	}
}
