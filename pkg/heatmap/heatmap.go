// Package heatmap implements the dense spatial response representation used
// for landmark localization: Gaussian target encoding, the training loss
// contracts, and sub-pixel coordinate extraction from response maps.
package heatmap

import (
	"fmt"
	"math"

	"cephalyzer/internal/models"
)

// ResponseMap is one 2D non-negative scalar field per landmark. Its peak
// region encodes the estimated landmark location.
type ResponseMap struct {
	// Data holds the response values in row-major order.
	Data []float64

	// Width and Height are the map dimensions in cells.
	Width, Height int
}

// NewResponseMap returns a zero-valued map of the given dimensions.
func NewResponseMap(width, height int) *ResponseMap {
	return &ResponseMap{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the response value at (x, y).
func (m *ResponseMap) At(x, y int) float64 {
	return m.Data[y*m.Width+x]
}

// Set stores the response value at (x, y).
func (m *ResponseMap) Set(x, y int, v float64) {
	m.Data[y*m.Width+x] = v
}

// Stack is the 19-channel response output of the localization network, one
// map per landmark in canonical order.
type Stack []*ResponseMap

// NewStack returns a stack of 19 zero-valued maps.
func NewStack(width, height int) Stack {
	s := make(Stack, models.NumLandmarks)
	for i := range s {
		s[i] = NewResponseMap(width, height)
	}
	return s
}

// Validate checks that the stack holds exactly one map per landmark and that
// all maps share the expected dimensions.
func (s Stack) Validate(width, height int) error {
	if len(s) != models.NumLandmarks {
		return fmt.Errorf("expected %d response maps, got %d", models.NumLandmarks, len(s))
	}
	for i, m := range s {
		if m == nil {
			return fmt.Errorf("response map %d is nil", i)
		}
		if m.Width != width || m.Height != height {
			return fmt.Errorf("response map %d: expected %dx%d, got %dx%d",
				i, width, height, m.Width, m.Height)
		}
	}
	return nil
}

// EncodeGaussian writes a 2D Gaussian blob centered at (cx, cy) into a new
// response map. The blob peaks at 1.0 and decays with the given spread. This
// is the supervision target encoding for a single landmark.
func EncodeGaussian(cx, cy float64, width, height int, sigma float64) *ResponseMap {
	m := NewResponseMap(width, height)
	if sigma <= 0 {
		return m
	}
	denom := 2 * sigma * sigma
	for y := 0; y < height; y++ {
		dy := float64(y) - cy
		for x := 0; x < width; x++ {
			dx := float64(x) - cx
			m.Data[y*width+x] = math.Exp(-(dx*dx + dy*dy) / denom)
		}
	}
	return m
}
