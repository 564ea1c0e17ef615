// Package classifier maps a fixed-schema feature vector of clinical metrics
// to a probability distribution over the three skeletal classes. Backends
// (threshold rules, a small feed-forward network, or a blend of both) sit
// behind one interface and are selected by configuration.
package classifier

import (
	"fmt"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/clinical"
	"cephalyzer/pkg/config"
)

// FeatureMetrics lists the clinical metrics entering the feature vector, in
// schema order.
var FeatureMetrics = []string{"SNA", "SNB", "ANB", "FMA", "N-Me", "S-Go"}

// NumFeatures is the fixed feature vector length: one value per metric plus
// one validity-mask entry per metric. Undetermined metrics are imputed with
// a sentinel and masked, so the classifier never sees a silent placeholder
// indistinguishable from a real measurement.
var NumFeatures = 2 * len(FeatureMetrics)

// anbIndex and anbMaskIndex locate the ANB angle inside the schema.
const (
	anbIndex     = 2
	anbMaskIndex = 8
)

// ClassifierInputError reports a feature vector violating the schema. It is
// fatal for the case's classification only; landmark detection results are
// unaffected.
type ClassifierInputError struct {
	Want, Got int
}

func (e *ClassifierInputError) Error() string {
	return fmt.Sprintf("feature vector length mismatch: expected %d, got %d", e.Want, e.Got)
}

// Classifier is the features-to-probabilities contract. The returned
// probabilities sum to 1 within floating tolerance. Implementations are
// read-only after construction and safe for concurrent use.
type Classifier interface {
	Probabilities(features []float64) ([models.NumClasses]float64, error)
}

// New constructs the backend selected by the configuration.
func New(cfg *config.Config) (Classifier, error) {
	switch cfg.Classifier.Backend {
	case "rules":
		return NewRules(cfg.Classifier.ANBLow, cfg.Classifier.ANBHigh), nil
	case "mlp":
		return LoadMLP(cfg.Classifier.WeightsPath)
	case "blend":
		mlp, err := LoadMLP(cfg.Classifier.WeightsPath)
		if err != nil {
			return nil, err
		}
		return NewBlend(
			NewRules(cfg.Classifier.ANBLow, cfg.Classifier.ANBHigh),
			mlp,
			cfg.Classifier.RuleWeight, cfg.Classifier.ModelWeight)
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Classifier.Backend)
	}
}

// Features builds the schema vector from computed metrics, applying the
// imputation policy: an undetermined or missing metric contributes the
// sentinel value and a 0 mask entry, a determined one its value and a 1.
func Features(metrics map[string]clinical.Metric, sentinel float64) []float64 {
	features := make([]float64, NumFeatures)
	for i, name := range FeatureMetrics {
		m, ok := metrics[name]
		if !ok || m.Undetermined {
			features[i] = sentinel
			features[len(FeatureMetrics)+i] = 0
			continue
		}
		features[i] = m.Value
		features[len(FeatureMetrics)+i] = 1
	}
	return features
}

// Argmax returns the predicted class. Ties resolve to the class earliest in
// the fixed priority order (Class I, Class II, Class III).
func Argmax(probs [models.NumClasses]float64) models.ClassLabel {
	best := 0
	for i := 1; i < models.NumClasses; i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return models.ClassLabel(best)
}

// checkSchema validates the feature vector length.
func checkSchema(features []float64) error {
	if len(features) != NumFeatures {
		return &ClassifierInputError{Want: NumFeatures, Got: len(features)}
	}
	return nil
}
