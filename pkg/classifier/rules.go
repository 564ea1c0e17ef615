package classifier

import (
	"math"

	"cephalyzer/internal/models"
)

// Rules is the clinical threshold backend: the ANB angle alone separates the
// three skeletal classes, with confidence shaped by the distance from the
// class boundary.
type Rules struct {
	// ANBLow and ANBHigh bound the Class I range. ANB above the high
	// bound indicates Class II, below the low bound Class III.
	ANBLow, ANBHigh float64
}

// NewRules returns the threshold backend with the given ANB bounds.
func NewRules(anbLow, anbHigh float64) *Rules {
	return &Rules{ANBLow: anbLow, ANBHigh: anbHigh}
}

// Probabilities applies the threshold rule. An undetermined (masked) ANB
// gives the uniform distribution: the rule has no evidence either way.
func (r *Rules) Probabilities(features []float64) ([models.NumClasses]float64, error) {
	var probs [models.NumClasses]float64
	if err := checkSchema(features); err != nil {
		return probs, err
	}

	if features[anbMaskIndex] == 0 {
		for i := range probs {
			probs[i] = 1.0 / models.NumClasses
		}
		return probs, nil
	}

	anb := features[anbIndex]
	var class models.ClassLabel
	var confidence float64

	switch {
	case anb > r.ANBHigh:
		class = models.ClassII
		confidence = math.Min(0.95, 0.6+(anb-r.ANBHigh)*0.1)
	case anb < r.ANBLow:
		class = models.ClassIII
		confidence = math.Min(0.95, 0.6+(r.ANBLow-anb)*0.1)
	default:
		class = models.ClassI
		center := (r.ANBLow + r.ANBHigh) / 2
		halfWidth := (r.ANBHigh - r.ANBLow) / 2
		confidence = 0.9
		if halfWidth > 0 {
			confidence = 0.9 - math.Abs(anb-center)/halfWidth*0.3
		}
		confidence = math.Max(0.6, confidence)
	}

	// Remaining mass splits evenly over the other two classes
	rest := (1 - confidence) / 2
	for i := range probs {
		probs[i] = rest
	}
	probs[class] = confidence
	return probs, nil
}
