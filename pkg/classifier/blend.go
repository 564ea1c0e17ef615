package classifier

import (
	"fmt"

	"cephalyzer/internal/models"
)

// Blend combines the rule-based probabilities with a model backend by fixed
// weights, renormalizing the result.
type Blend struct {
	rules *Rules
	model Classifier

	ruleWeight  float64
	modelWeight float64
}

// NewBlend returns the ensemble backend. Weights must be non-negative and
// not both zero; they are normalized internally.
func NewBlend(rules *Rules, model Classifier, ruleWeight, modelWeight float64) (*Blend, error) {
	if ruleWeight < 0 || modelWeight < 0 || ruleWeight+modelWeight == 0 {
		return nil, fmt.Errorf("invalid blend weights: rule=%g model=%g", ruleWeight, modelWeight)
	}
	total := ruleWeight + modelWeight
	return &Blend{
		rules:       rules,
		model:       model,
		ruleWeight:  ruleWeight / total,
		modelWeight: modelWeight / total,
	}, nil
}

// Probabilities evaluates both components and mixes them.
func (b *Blend) Probabilities(features []float64) ([models.NumClasses]float64, error) {
	var probs [models.NumClasses]float64

	rp, err := b.rules.Probabilities(features)
	if err != nil {
		return probs, err
	}
	mp, err := b.model.Probabilities(features)
	if err != nil {
		return probs, err
	}

	sum := 0.0
	for i := range probs {
		probs[i] = b.ruleWeight*rp[i] + b.modelWeight*mp[i]
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}
