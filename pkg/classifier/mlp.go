package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"cephalyzer/internal/models"
)

// MLP is a small feed-forward backend: one tanh hidden layer followed by a
// softmax output over the three classes. Weights are trained elsewhere and
// loaded from a JSON file.
type MLP struct {
	w1 *mat.Dense
	b1 *mat.VecDense
	w2 *mat.Dense
	b2 *mat.VecDense

	hidden int
}

// mlpWeightsFile is the on-disk weight layout: row-major matrices with
// shapes hidden x input and classes x hidden.
type mlpWeightsFile struct {
	InputSize  int         `json:"input_size"`
	HiddenSize int         `json:"hidden_size"`
	W1         [][]float64 `json:"w1"`
	B1         []float64   `json:"b1"`
	W2         [][]float64 `json:"w2"`
	B2         []float64   `json:"b2"`
}

// LoadMLP reads network weights from a JSON file.
func LoadMLP(path string) (*MLP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier weights: %w", err)
	}
	var file mlpWeightsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse classifier weights: %w", err)
	}

	if file.InputSize != NumFeatures {
		return nil, fmt.Errorf("weights expect %d inputs, feature schema has %d",
			file.InputSize, NumFeatures)
	}
	w1, err := denseFromRows(file.W1, file.HiddenSize, file.InputSize)
	if err != nil {
		return nil, fmt.Errorf("w1: %w", err)
	}
	w2, err := denseFromRows(file.W2, models.NumClasses, file.HiddenSize)
	if err != nil {
		return nil, fmt.Errorf("w2: %w", err)
	}
	if len(file.B1) != file.HiddenSize || len(file.B2) != models.NumClasses {
		return nil, fmt.Errorf("bias lengths %d/%d do not match layer sizes %d/%d",
			len(file.B1), len(file.B2), file.HiddenSize, models.NumClasses)
	}

	return NewMLP(w1, mat.NewVecDense(file.HiddenSize, file.B1),
		w2, mat.NewVecDense(models.NumClasses, file.B2)), nil
}

// NewMLP wraps pre-built weight matrices.
func NewMLP(w1 *mat.Dense, b1 *mat.VecDense, w2 *mat.Dense, b2 *mat.VecDense) *MLP {
	hidden, _ := w1.Dims()
	return &MLP{w1: w1, b1: b1, w2: w2, b2: b2, hidden: hidden}
}

// Probabilities runs the forward pass and returns softmax outputs.
func (n *MLP) Probabilities(features []float64) ([models.NumClasses]float64, error) {
	var probs [models.NumClasses]float64
	if err := checkSchema(features); err != nil {
		return probs, err
	}

	x := mat.NewVecDense(NumFeatures, append([]float64(nil), features...))

	h := mat.NewVecDense(n.hidden, nil)
	h.MulVec(n.w1, x)
	h.AddVec(h, n.b1)
	for i := 0; i < n.hidden; i++ {
		h.SetVec(i, math.Tanh(h.AtVec(i)))
	}

	logits := mat.NewVecDense(models.NumClasses, nil)
	logits.MulVec(n.w2, h)
	logits.AddVec(logits, n.b2)

	// Numerically stable softmax
	raw := logits.RawVector().Data
	maxLogit := floats.Max(raw)
	sum := 0.0
	for i, v := range raw {
		probs[i] = math.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// denseFromRows flattens a row-major matrix after checking its shape.
func denseFromRows(rows [][]float64, wantRows, wantCols int) (*mat.Dense, error) {
	if len(rows) != wantRows {
		return nil, fmt.Errorf("expected %d rows, got %d", wantRows, len(rows))
	}
	flat := make([]float64, 0, wantRows*wantCols)
	for i, row := range rows {
		if len(row) != wantCols {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i, wantCols, len(row))
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(wantRows, wantCols, flat), nil
}
