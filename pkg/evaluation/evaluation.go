// Package evaluation computes landmark localization accuracy statistics:
// mean radial error, success detection rates at multiple thresholds and
// PCK at normalized ratios, globally and broken down per landmark.
package evaluation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"cephalyzer/internal/models"
)

// Accumulator aggregates paired predicted/reference landmark sets across a
// batch of cases. Its state is consistent at every case boundary: Report may
// be called after any number of Add calls, including between cases of a
// partially processed (or cancelled) batch.
type Accumulator struct {
	thresholdsMM []float64
	pckRatios    []float64

	// errorsMM and normErrors hold per-instance radial errors grouped by
	// landmark channel index.
	errorsMM   [models.NumLandmarks][]float64
	normErrors [models.NumLandmarks][]float64

	excluded int
}

// NewAccumulator returns an empty accumulator for the given SDR thresholds
// (millimeters) and PCK ratios.
func NewAccumulator(thresholdsMM, pckRatios []float64) *Accumulator {
	return &Accumulator{
		thresholdsMM: append([]float64(nil), thresholdsMM...),
		pckRatios:    append([]float64(nil), pckRatios...),
	}
}

// Add folds one case into the aggregates. mmPerPixel converts pixel errors
// to physical units; refScalePX is the per-image normalization reference for
// PCK (typically the image diagonal, in pixels). Instances where either the
// predicted or the reference point is invalid are excluded from every
// aggregate and counted, never silently dropped.
func (a *Accumulator) Add(pred, ref *models.LandmarkSet, mmPerPixel, refScalePX float64) error {
	if pred == nil || ref == nil {
		return fmt.Errorf("both predicted and reference sets are required")
	}
	if mmPerPixel <= 0 {
		return fmt.Errorf("physical scale required for evaluation, got %g", mmPerPixel)
	}
	if refScalePX <= 0 {
		return fmt.Errorf("positive PCK reference scale required, got %g", refScalePX)
	}

	predPoints := pred.Points()
	refPoints := ref.Points()
	for i := range predPoints {
		if !predPoints[i].Valid || !refPoints[i].Valid {
			a.excluded++
			continue
		}
		px := math.Hypot(predPoints[i].X-refPoints[i].X, predPoints[i].Y-refPoints[i].Y)
		a.errorsMM[i] = append(a.errorsMM[i], px*mmPerPixel)
		a.normErrors[i] = append(a.normErrors[i], px/refScalePX)
	}
	return nil
}

// DiagonalPX returns the image diagonal in pixels, the default PCK
// normalization reference.
func DiagonalPX(width, height int) float64 {
	return math.Hypot(float64(width), float64(height))
}

// LandmarkReport holds the accuracy statistics of a single landmark.
type LandmarkReport struct {
	// Count is the number of valid instances aggregated.
	Count int

	// MRE is the mean radial error in millimeters.
	MRE float64

	// SDR maps each threshold (mm) to the percentage of instances with
	// error strictly below it.
	SDR map[float64]float64

	// PCK maps each ratio to the percentage of instances whose
	// normalized error is below it.
	PCK map[float64]float64
}

// Report holds the batch-level statistics plus per-landmark breakdowns.
type Report struct {
	// ValidCount and ExcludedCount partition every landmark instance
	// seen by the accumulator.
	ValidCount    int
	ExcludedCount int

	MRE float64
	SDR map[float64]float64
	PCK map[float64]float64

	// PerLandmark breaks all three statistics down by landmark name,
	// since per-landmark difficulty varies.
	PerLandmark map[models.LandmarkName]LandmarkReport
}

// Report computes the statistics over everything added so far.
func (a *Accumulator) Report() *Report {
	r := &Report{
		ExcludedCount: a.excluded,
		SDR:           make(map[float64]float64, len(a.thresholdsMM)),
		PCK:           make(map[float64]float64, len(a.pckRatios)),
		PerLandmark:   make(map[models.LandmarkName]LandmarkReport, models.NumLandmarks),
	}

	var allMM, allNorm []float64
	for i, name := range models.LandmarkNames {
		lr := LandmarkReport{
			Count: len(a.errorsMM[i]),
			SDR:   make(map[float64]float64, len(a.thresholdsMM)),
			PCK:   make(map[float64]float64, len(a.pckRatios)),
		}
		if lr.Count > 0 {
			lr.MRE = stat.Mean(a.errorsMM[i], nil)
		}
		for _, t := range a.thresholdsMM {
			lr.SDR[t] = belowPercent(a.errorsMM[i], t)
		}
		for _, ratio := range a.pckRatios {
			lr.PCK[ratio] = belowPercent(a.normErrors[i], ratio)
		}
		r.PerLandmark[name] = lr

		allMM = append(allMM, a.errorsMM[i]...)
		allNorm = append(allNorm, a.normErrors[i]...)
	}

	r.ValidCount = len(allMM)
	if r.ValidCount > 0 {
		r.MRE = stat.Mean(allMM, nil)
	}
	for _, t := range a.thresholdsMM {
		r.SDR[t] = belowPercent(allMM, t)
	}
	for _, ratio := range a.pckRatios {
		r.PCK[ratio] = belowPercent(allNorm, ratio)
	}
	return r
}

// belowPercent returns the percentage of values strictly below the bound.
func belowPercent(values []float64, bound float64) float64 {
	if len(values) == 0 {
		return 0
	}
	hits := 0
	for _, v := range values {
		if v < bound {
			hits++
		}
	}
	return float64(hits) / float64(len(values)) * 100
}
