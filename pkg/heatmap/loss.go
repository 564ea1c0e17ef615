package heatmap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// WingLoss is the robust localization loss: non-linear (logarithmic, more
// sensitive) for small errors to sharpen sub-pixel precision, linear for
// large errors so outliers do not dominate.
type WingLoss struct {
	// Epsilon controls the curvature of the non-linear region.
	Epsilon float64

	// Width is the error magnitude where the loss switches from the
	// logarithmic to the linear regime.
	Width float64

	// c keeps the two pieces continuous at |e| = Width.
	c float64
}

// NewWingLoss returns a wing loss with the given shape parameters.
func NewWingLoss(epsilon, width float64) (*WingLoss, error) {
	if epsilon <= 0 || width <= 0 {
		return nil, fmt.Errorf("wing loss parameters must be positive: epsilon=%g width=%g", epsilon, width)
	}
	return &WingLoss{
		Epsilon: epsilon,
		Width:   width,
		c:       width - width*math.Log(1+width/epsilon),
	}, nil
}

// Value evaluates the loss for a single error term.
func (l *WingLoss) Value(err float64) float64 {
	abs := math.Abs(err)
	if abs < l.Width {
		return l.Width * math.Log(1+abs/l.Epsilon)
	}
	return abs - l.c
}

// Mean evaluates the mean loss over elementwise prediction errors.
func (l *WingLoss) Mean(pred, target []float64) (float64, error) {
	if len(pred) != len(target) {
		return 0, fmt.Errorf("length mismatch: %d vs %d", len(pred), len(target))
	}
	if len(pred) == 0 {
		return 0, nil
	}
	sum := 0.0
	for i := range pred {
		sum += l.Value(pred[i] - target[i])
	}
	return sum / float64(len(pred)), nil
}

// MSE is the pointwise regression loss over response values.
func MSE(pred, target []float64) (float64, error) {
	if len(pred) != len(target) {
		return 0, fmt.Errorf("length mismatch: %d vs %d", len(pred), len(target))
	}
	if len(pred) == 0 {
		return 0, nil
	}
	d := floats.Distance(pred, target, 2)
	return d * d / float64(len(pred)), nil
}

// CombinedLoss mixes the robust localization loss with the pointwise
// regression loss by a fixed weighting.
type CombinedLoss struct {
	Wing       *WingLoss
	WingWeight float64
	MSEWeight  float64
}

// Value evaluates the combined loss over one predicted/target map pair.
func (l *CombinedLoss) Value(pred, target *ResponseMap) (float64, error) {
	if pred.Width != target.Width || pred.Height != target.Height {
		return 0, fmt.Errorf("map size mismatch: %dx%d vs %dx%d",
			pred.Width, pred.Height, target.Width, target.Height)
	}
	wing, err := l.Wing.Mean(pred.Data, target.Data)
	if err != nil {
		return 0, err
	}
	mse, err := MSE(pred.Data, target.Data)
	if err != nil {
		return 0, err
	}
	return l.WingWeight*wing + l.MSEWeight*mse, nil
}
