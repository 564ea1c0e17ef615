package evaluation

import (
	"math"
	"testing"

	"cephalyzer/internal/models"
)

// fullSet builds a landmark set with every point valid, offset from a base
// position by the channel index.
func fullSet(t *testing.T, baseX, baseY float64) *models.LandmarkSet {
	t.Helper()
	set := models.NewLandmarkSet()
	for i, name := range models.LandmarkNames {
		err := set.SetPoint(models.LandmarkPoint{
			Name: name,
			X:    baseX + float64(10*i),
			Y:    baseY + float64(5*i),
			Confidence: 1, Valid: true,
		})
		if err != nil {
			t.Fatalf("SetPoint failed: %v", err)
		}
	}
	return set
}

// shiftSet returns a copy of the set with every point translated.
func shiftSet(t *testing.T, src *models.LandmarkSet, dx, dy float64) *models.LandmarkSet {
	t.Helper()
	out := models.NewLandmarkSet()
	for _, p := range src.Points() {
		p.X += dx
		p.Y += dy
		if err := out.SetPoint(p); err != nil {
			t.Fatalf("SetPoint failed: %v", err)
		}
	}
	return out
}

// TestMREIdenticalAndSymmetric verifies MRE is exactly 0 on identical sets
// and symmetric in the argument order.
func TestMREIdenticalAndSymmetric(t *testing.T) {
	ref := fullSet(t, 50, 60)

	acc := NewAccumulator([]float64{2.0}, []float64{0.05})
	if err := acc.Add(ref, ref, 0.1, DiagonalPX(512, 512)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if got := acc.Report().MRE; got != 0 {
		t.Errorf("identical sets: expected MRE 0, got %v", got)
	}

	pred := shiftSet(t, ref, 3, -4)

	fwd := NewAccumulator(nil, nil)
	rev := NewAccumulator(nil, nil)
	if err := fwd.Add(pred, ref, 0.1, 100); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := rev.Add(ref, pred, 0.1, 100); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if fwd.Report().MRE != rev.Report().MRE {
		t.Errorf("MRE must be symmetric: %v vs %v", fwd.Report().MRE, rev.Report().MRE)
	}
	// Uniform (3,-4) shift at 0.1 mm/px is exactly 0.5mm per instance
	if got := fwd.Report().MRE; math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected MRE 0.5mm, got %v", got)
	}
}

// TestSDRThresholdScenario reproduces the reference scenario: error
// sqrt(4+9)=3.6056px at 0.1 mm/px is 0.36056mm, a success at t=2.5mm.
func TestSDRThresholdScenario(t *testing.T) {
	ref := fullSet(t, 100, 50)
	pred := shiftSet(t, ref, 2, 3)

	acc := NewAccumulator([]float64{0.1, 0.36055512754639, 2.5}, nil)
	if err := acc.Add(pred, ref, 0.1, 100); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	r := acc.Report()

	if got := r.SDR[2.5]; got != 100 {
		t.Errorf("SDR@2.5mm: expected 100%%, got %v", got)
	}
	if got := r.SDR[0.1]; got != 0 {
		t.Errorf("SDR@0.1mm: expected 0%%, got %v", got)
	}
	// The comparison is strict: an error exactly at the threshold is
	// not a success
	if got := r.SDR[0.36055512754639]; got != 0 {
		t.Errorf("SDR at exact error value must be 0%% (strict), got %v", got)
	}
}

// TestSDRMonotonic verifies SDR is non-decreasing in the threshold.
func TestSDRMonotonic(t *testing.T) {
	ref := fullSet(t, 100, 100)
	acc := NewAccumulator([]float64{0.5, 1.0, 2.0, 4.0, 8.0}, nil)

	// Several cases with varying error magnitudes
	for i, d := range []float64{1, 5, 12, 30, 55} {
		pred := shiftSet(t, ref, d, 0)
		if err := acc.Add(pred, ref, 0.1, 100); err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
	}

	r := acc.Report()
	prev := -1.0
	for _, th := range []float64{0.5, 1.0, 2.0, 4.0, 8.0} {
		if r.SDR[th] < prev {
			t.Errorf("SDR@%v dropped below SDR at the previous threshold", th)
		}
		prev = r.SDR[th]
	}
}

// TestPCKBounds verifies PCK stays within [0, 100] and that PCK@0 is 0
// unless the error is exactly 0.
func TestPCKBounds(t *testing.T) {
	ref := fullSet(t, 100, 100)
	pred := shiftSet(t, ref, 7, 0)

	acc := NewAccumulator(nil, []float64{0, 0.01, 0.05, 0.5, 10})
	if err := acc.Add(pred, ref, 0.1, DiagonalPX(512, 512)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	r := acc.Report()

	for ratio, v := range r.PCK {
		if v < 0 || v > 100 {
			t.Errorf("PCK@%v out of range: %v", ratio, v)
		}
	}
	if r.PCK[0] != 0 {
		t.Errorf("PCK@0 with nonzero error must be 0, got %v", r.PCK[0])
	}
	if r.PCK[10] != 100 {
		t.Errorf("PCK at a huge ratio must be 100, got %v", r.PCK[10])
	}
}

// TestInvalidReferenceExclusion verifies the exclusion accounting: one
// invalid reference point in a batch of 10 cases removes exactly one
// instance, and the removal is visible in the counts.
func TestInvalidReferenceExclusion(t *testing.T) {
	acc := NewAccumulator([]float64{2.0}, nil)

	for c := 0; c < 10; c++ {
		ref := fullSet(t, 100, 100)
		if c == 0 {
			// Mark one reference landmark invalid in the first case
			if err := ref.SetPoint(models.LandmarkPoint{Name: models.Gonion, Valid: false}); err != nil {
				t.Fatalf("SetPoint failed: %v", err)
			}
		}
		pred := shiftSet(t, ref, 1, 1)
		if err := acc.Add(pred, ref, 0.1, 100); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	r := acc.Report()
	want := 10*models.NumLandmarks - 1
	if r.ValidCount != want {
		t.Errorf("expected %d valid instances, got %d", want, r.ValidCount)
	}
	if r.ExcludedCount != 1 {
		t.Errorf("expected exactly 1 excluded instance, got %d", r.ExcludedCount)
	}
	if got := r.PerLandmark[models.Gonion].Count; got != 9 {
		t.Errorf("Gonion should have 9 instances, got %d", got)
	}
}

// TestPerLandmarkBreakdown verifies grouped statistics differ per landmark
// when errors differ per landmark.
func TestPerLandmarkBreakdown(t *testing.T) {
	ref := fullSet(t, 100, 100)
	pred := models.NewLandmarkSet()
	for i, p := range ref.Points() {
		// Error grows with the channel index: 0px, 1px, 2px, ...
		p.X += float64(i)
		if err := pred.SetPoint(p); err != nil {
			t.Fatalf("SetPoint failed: %v", err)
		}
	}

	acc := NewAccumulator([]float64{0.05}, nil)
	if err := acc.Add(pred, ref, 0.1, 100); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	r := acc.Report()

	first := r.PerLandmark[models.LandmarkNames[0]]
	last := r.PerLandmark[models.LandmarkNames[models.NumLandmarks-1]]
	if first.MRE != 0 {
		t.Errorf("first landmark has no error, MRE should be 0, got %v", first.MRE)
	}
	if math.Abs(last.MRE-1.8) > 1e-12 {
		t.Errorf("last landmark error is 18px = 1.8mm, got %v", last.MRE)
	}
	if first.SDR[0.05] != 100 || last.SDR[0.05] != 0 {
		t.Errorf("per-landmark SDR breakdown incorrect: %v / %v",
			first.SDR[0.05], last.SDR[0.05])
	}
}

// TestAddValidation verifies the scale preconditions.
func TestAddValidation(t *testing.T) {
	ref := fullSet(t, 0, 0)
	acc := NewAccumulator(nil, nil)

	if err := acc.Add(ref, ref, 0, 100); err == nil {
		t.Errorf("missing physical scale should be rejected")
	}
	if err := acc.Add(ref, ref, 0.1, 0); err == nil {
		t.Errorf("missing PCK reference scale should be rejected")
	}
	if err := acc.Add(nil, ref, 0.1, 100); err == nil {
		t.Errorf("nil predicted set should be rejected")
	}
}
